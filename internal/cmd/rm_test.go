package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/zonestore/pkg/output"
)

func TestRm(t *testing.T) {
	store := t.TempDir()
	writeFile(t, store, "a.txt", "a")
	writeFile(t, store, "dir/b.txt", "b")
	writeFile(t, store, "dir/sub/c.txt", "c")

	out, err := execute(t, nil, fileArgs(store, "rm", "/a.txt", "/dir/")...)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt", "/dir/"}, lines(out))
	assert.NoFileExists(t, filepath.Join(store, "a.txt"))
	assert.NoDirExists(t, filepath.Join(store, "dir"))
}

func TestRm_Missing(t *testing.T) {
	_, err := execute(t, nil, fileArgs(t.TempDir(), "rm", "/missing.txt")...)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, ExitCode(err))
}

func TestRm_Root(t *testing.T) {
	store := t.TempDir()
	writeFile(t, store, "keep.txt", "x")

	_, err := execute(t, nil, fileArgs(store, "rm", "/")...)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
	assert.FileExists(t, filepath.Join(store, "keep.txt"))

	_, err = execute(t, nil, fileArgs(store, "--allow-root-delete", "rm", "/")...)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(store, "keep.txt"))
	assert.DirExists(t, store)
}

func TestRm_ReadOnly(t *testing.T) {
	store := t.TempDir()
	writeFile(t, store, "keep.txt", "x")
	_, err := execute(t, nil, fileArgs(store, "--readonly", "rm", "/keep.txt")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readonly")
	assert.FileExists(t, filepath.Join(store, "keep.txt"))
}

func TestRm_JSONL(t *testing.T) {
	store := t.TempDir()
	writeFile(t, store, "a.txt", "a")

	out, err := execute(t, nil, fileArgs(store, "rm", "--jsonl", "--parallel", "1", "/a.txt", "/missing.txt")...)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, ExitCode(err))

	types := map[string]int{}
	var failed output.ErrorRecord
	for _, r := range decodeRecords(t, out) {
		types[r.Type]++
		if r.Type == output.TypeError {
			require.NoError(t, json.Unmarshal(r.Data, &failed))
		}
	}
	assert.Equal(t, 1, types[output.TypeResult])
	assert.Equal(t, 1, types[output.TypeError])
	assert.Equal(t, 1, types[output.TypeSummary])
	assert.Equal(t, "/missing.txt", failed.Key)
	assert.Equal(t, output.ErrCodeNotFound, failed.Code)
}
