package cmd

import (
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/zonestore/pkg/provider"
)

func TestChecksum(t *testing.T) {
	path := writeFile(t, t.TempDir(), "f.txt", "hello")

	out, err := execute(t, nil, "checksum", path)
	require.NoError(t, err)
	assert.Equal(t, provider.Checksum([]byte("hello"))+"  "+path+"\n", out)
	assert.Equal(t, strings.ToUpper(out[:64]), out[:64])

	out, err = execute(t, strings.NewReader("hello"), "checksum", "-")
	require.NoError(t, err)
	assert.Equal(t, provider.Checksum([]byte("hello"))+"  -\n", out)

	_, err = execute(t, nil, "checksum", path+".missing")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, ExitCode(err))
}
