package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePathTemplate_Apply(t *testing.T) {
	tests := []struct {
		template string
		key      string
		want     string
	}{
		{"{dir[0]}/{filename}", "/a/b/c.txt", "/a/c.txt"},
		{"", "/a/b/c.txt", "/a/b/c.txt"},
		{"/archive/{key}", "/a/b/c.txt", "/archive/a/b/c.txt"},
		{"{dir[1]}/{stem}-copy.{ext}", "/a/b/c.txt", "/b/c-copy.txt"},
		{"flat/{filename}", "a/b/c.txt", "/flat/c.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			tpl, err := CompilePathTemplate(tt.template)
			require.NoError(t, err)

			out, err := tpl.Apply(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCompilePathTemplate_Invalid(t *testing.T) {
	for _, tpl := range []string{"{capture:.*}", "{dir[x]}/{filename}", "{filename"} {
		_, err := CompilePathTemplate(tpl)
		assert.Error(t, err, tpl)
	}
}

func TestPathTemplate_DirOutOfRange(t *testing.T) {
	tpl, err := CompilePathTemplate("{dir[2]}/{filename}")
	require.NoError(t, err)

	_, err = tpl.Apply("/a/b.txt")
	require.Error(t, err)
}

func TestPathTemplate_NoFileName(t *testing.T) {
	tpl, err := CompilePathTemplate("{dir[0]}/")
	require.NoError(t, err)

	_, err = tpl.Apply("/a/b.txt")
	require.Error(t, err)
}
