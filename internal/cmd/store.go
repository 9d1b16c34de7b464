package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/config"
	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/provider"
	"github.com/3leaps/zonestore/pkg/provider/file"
	"github.com/3leaps/zonestore/pkg/provider/s3"
	"github.com/3leaps/zonestore/pkg/provider/zone"
)

// newStore builds the backend selected by cfg.Backend.
func newStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (provider.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, _ := provider.ParseProviderType(cfg.Backend)

	switch backend {
	case provider.ProviderZone:
		return zone.New(zone.Config{
			AccessKey:         cfg.Zone.AccessKey,
			StorageZone:       cfg.Zone.Name,
			Endpoint:          cfg.Zone.Endpoint,
			GenerateChecksums: zone.Bool(cfg.GenerateChecksums),
			PreserveRoot:      zone.Bool(cfg.PreserveRoot),
			HTTPClient:        &http.Client{Timeout: cfg.Timeout},
			Logger:            log,
		})
	case provider.ProviderFile:
		return file.New(file.Config{
			BaseDir:      cfg.File.BaseDir,
			PreserveRoot: zone.Bool(cfg.PreserveRoot),
		})
	case provider.ProviderS3:
		return s3.New(ctx, s3.Config{
			Bucket:            cfg.S3.Bucket,
			Region:            cfg.S3.Region,
			Endpoint:          cfg.S3.Endpoint,
			Profile:           cfg.S3.Profile,
			AccessKeyID:       cfg.S3.AccessKeyID,
			SecretAccessKey:   cfg.S3.SecretAccessKey,
			ForcePathStyle:    cfg.S3.ForcePathStyle,
			MaxKeys:           cfg.S3.MaxKeys,
			GenerateChecksums: zone.Bool(cfg.GenerateChecksums),
			PreserveRoot:      zone.Bool(cfg.PreserveRoot),
			Logger:            log,
		})
	}
	return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

// openStore loads configuration and opens the configured store for a CLI
// command. Failures are returned as exit errors.
func openStore(cmd *cobra.Command) (provider.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, nil, exitError(foundry.ExitInvalidArgument, "Invalid storage configuration", err)
	}

	store, err := newStore(cmd.Context(), cfg.Storage, observability.CLILogger)
	if err != nil {
		observability.CLILogger.Error("Failed to create store", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
		return nil, nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open storage backend", err)
	}
	observability.CLILogger.Debug("Opened store", zap.String("backend", cfg.Storage.Backend))
	return store, cfg, nil
}

// exitCodeFor maps a store error onto a CLI exit code.
func exitCodeFor(err error) int {
	switch {
	case provider.IsInputValidation(err), provider.IsPreserveRoot(err):
		return foundry.ExitInvalidArgument
	case provider.IsNotFound(err):
		return foundry.ExitFileNotFound
	}
	return foundry.ExitExternalServiceUnavailable
}

// recordCode maps a store error onto an output.ErrorRecord code.
func recordCode(err error) string {
	switch {
	case provider.IsPreserveRoot(err):
		return output.ErrCodePreserveRoot
	case provider.IsInputValidation(err):
		return output.ErrCodeInvalidArgument
	case provider.IsNotFound(err):
		return output.ErrCodeNotFound
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return output.ErrCodeLocalIO
	}
	return output.ErrCodeBackend
}

// storeError wraps a failed store call for the CLI.
func storeError(message string, err error) error {
	return exitError(exitCodeFor(err), message, err)
}
