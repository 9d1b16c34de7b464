package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/zonestore/internal/config"
	"github.com/3leaps/zonestore/pkg/provider"
	"github.com/3leaps/zonestore/pkg/provider/file"
	"github.com/3leaps/zonestore/pkg/provider/zone"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("zone", func(t *testing.T) {
		store, err := newStore(ctx, config.StorageConfig{
			Backend: "zone",
			Timeout: time.Second,
			Zone:    config.ZoneConfig{AccessKey: "k", Name: "media", Endpoint: "https://ny.storage.bunnycdn.com"},
		}, nil)
		require.NoError(t, err)
		adapter, ok := store.(*zone.Adapter)
		require.True(t, ok)
		assert.Equal(t, "media", adapter.StorageZone())
		assert.Equal(t, "https://ny.storage.bunnycdn.com/media/a.txt", adapter.ObjectURL("/a.txt"))
	})

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		store, err := newStore(ctx, config.StorageConfig{Backend: "file", File: config.FileConfig{BaseDir: dir}}, nil)
		require.NoError(t, err)
		fp, ok := store.(*file.Provider)
		require.True(t, ok)
		assert.Equal(t, dir, fp.BaseDir())
	})

	t.Run("missing zone name", func(t *testing.T) {
		_, err := newStore(ctx, config.StorageConfig{Backend: "zone", Zone: config.ZoneConfig{AccessKey: "k"}}, nil)
		var cfgErr *config.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "storage.zone.name", cfgErr.Field)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := newStore(ctx, config.StorageConfig{Backend: "ftp"}, nil)
		require.Error(t, err)
	})
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"input", &provider.InputValidationError{Field: "limit"}, foundry.ExitInvalidArgument},
		{"root", &provider.PreserveRootError{Key: "/"}, foundry.ExitInvalidArgument},
		{"not found", provider.ErrNotFound, foundry.ExitFileNotFound},
		{"transport", &provider.TransportError{StatusCode: 500}, foundry.ExitExternalServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}
