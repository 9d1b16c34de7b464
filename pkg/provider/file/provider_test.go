package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/zonestore/pkg/provider"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, p *Provider, key, content string) {
	t.Helper()
	full := filepath.Join(p.BaseDir(), filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "missing base dir", config: Config{}, wantErr: true},
		{name: "blank base dir", config: Config{BaseDir: "   "}, wantErr: true},
		{name: "valid", config: Config{BaseDir: "/tmp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNew_DoesNotCreateBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "store")
	p, err := New(Config{BaseDir: base})
	require.NoError(t, err)
	assert.Equal(t, base, p.BaseDir())
	assert.NoDirExists(t, base)
}

func TestProvider_GetHas(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	writeFile(t, p, "docs/readme.txt", "hello")

	f, err := p.Get(ctx, "/docs/readme.txt")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "readme.txt", f.Name)
	assert.Equal(t, []byte("hello"), f.Data)
	assert.Contains(t, f.ContentType, "text/plain")

	missing, err := p.Get(ctx, "docs/missing.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dir, err := p.Get(ctx, "docs/")
	require.NoError(t, err)
	assert.Nil(t, dir)

	ok, err := p.Has(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Has(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not objects")
}

func TestProvider_PutRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	in := &provider.File{Name: "data.bin", ContentType: "application/octet-stream", Data: []byte{0, 1, 2, 3}}
	out, err := p.Put(ctx, "nested/deep/data.bin", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	got, err := p.Get(ctx, "nested/deep/data.bin")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in.Data, got.Data)

	require.NoError(t, p.Set(ctx, "nested/deep/data.bin", &provider.File{Data: []byte("v2")}))
	got, err = p.Get(ctx, "nested/deep/data.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got.Data)

	_, err = p.Put(ctx, "dir/", &provider.File{Data: []byte("x")})
	assert.Error(t, err)

	_, err = p.Put(ctx, "a.txt", nil)
	assert.Error(t, err)
}

func TestProvider_PathTraversal(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	require.NoError(t, p.Set(ctx, "../../escape.txt", &provider.File{Data: []byte("x")}))

	_, err := os.Stat(filepath.Join(p.BaseDir(), "escape.txt"))
	assert.NoError(t, err, "key is confined to the base dir")
}

func TestProvider_List(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	writeFile(t, p, "logs/b.log", "bb")
	writeFile(t, p, "logs/a.log", "a")
	writeFile(t, p, "logs/c.json", "{}")
	writeFile(t, p, "logs/archive/old.log", "old")

	page, err := p.List(ctx, provider.ListOptions{Prefix: "logs"})
	require.NoError(t, err)
	keys := make([]string, 0, len(page.Files))
	for _, f := range page.Files {
		keys = append(keys, f.Key)
		assert.Nil(t, f.Metadata)
	}
	assert.Equal(t, []string{"/logs/a.log", "/logs/b.log", "/logs/c.json"}, keys)
	assert.Empty(t, page.Cursor)

	withMeta, err := p.List(ctx, provider.ListOptions{Prefix: "/logs/", IncludeMetadata: true, Limit: provider.Limit(2)})
	require.NoError(t, err)
	require.Len(t, withMeta.Files, 2)
	assert.Equal(t, "2", withMeta.Cursor)
	require.NotNil(t, withMeta.Files[1].Metadata)
	assert.Equal(t, "b.log", withMeta.Files[1].Metadata.Name)
	assert.Equal(t, int64(2), withMeta.Files[1].Metadata.Size)
	assert.NotZero(t, withMeta.Files[1].Metadata.LastModified)

	rest, err := p.List(ctx, provider.ListOptions{Prefix: "/logs/", Limit: provider.Limit(2), Cursor: withMeta.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Files, 1)
	assert.Equal(t, "/logs/c.json", rest.Files[0].Key)
	assert.Empty(t, rest.Cursor)

	empty, err := p.List(ctx, provider.ListOptions{Prefix: "nope"})
	require.NoError(t, err)
	assert.Empty(t, empty.Files)

	_, err = p.List(ctx, provider.ListOptions{Limit: provider.Limit(-1)})
	assert.True(t, provider.IsInputValidation(err))

	_, err = p.List(ctx, provider.ListOptions{Cursor: "abc"})
	assert.True(t, provider.IsInputValidation(err))
}

func TestProvider_Remove(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	writeFile(t, p, "a.txt", "a")
	writeFile(t, p, "dir/b.txt", "b")
	writeFile(t, p, "dir/sub/c.txt", "c")

	require.NoError(t, p.Remove(ctx, "a.txt"))
	ok, err := p.Has(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	err = p.Remove(ctx, "a.txt")
	assert.True(t, provider.IsNotFound(err), "removing a missing key is an error")

	require.NoError(t, p.Remove(ctx, "dir/"))
	_, err = os.Stat(filepath.Join(p.BaseDir(), "dir"))
	assert.True(t, os.IsNotExist(err))

	for _, root := range []string{"", "/"} {
		err := p.Remove(ctx, root)
		assert.True(t, provider.IsPreserveRoot(err))
	}
}

func TestProvider_RemoveRootWhenGuardDisabled(t *testing.T) {
	ctx := context.Background()
	preserve := false
	p, err := New(Config{BaseDir: t.TempDir(), PreserveRoot: &preserve})
	require.NoError(t, err)
	writeFile(t, p, "a.txt", "a")
	writeFile(t, p, "dir/b.txt", "b")

	require.NoError(t, p.Remove(ctx, "/"))

	entries, err := os.ReadDir(p.BaseDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProvider_CancelledContext(t *testing.T) {
	p := newTestProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Get(ctx, "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}
