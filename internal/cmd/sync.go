package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/config"
	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/manifest"
	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/preflight"
	"github.com/3leaps/zonestore/pkg/provider"
	"github.com/3leaps/zonestore/pkg/transfer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy or move a directory between two stores",
	Long: `Copy or move the files of one directory between two stores, as described
by a YAML or JSON sync manifest.

Only the files directly under source.prefix are synced; subdirectories are
not descended into. Preflight checks run first so missing permissions fail
before any file is written. Progress is reported as JSONL records to stdout
or to the manifest's output destination.

Examples:
  zonestore sync -m sync.yaml
  zonestore sync -m sync.yaml --plan
  zonestore sync -m sync.yaml --dry-run -o file:./sync.jsonl`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var (
	syncManifestPath string
	syncOutput       string
	syncPlan         bool
	syncDryRun       bool
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&syncManifestPath, "manifest", "m", "", "Path to the sync manifest (required)")
	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", "", "Override output destination (stdout or file:<path>)")
	syncCmd.Flags().BoolVar(&syncPlan, "plan", false, "Validate the manifest and print the plan without contacting any store")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Run preflight and report what would be synced without writing")

	_ = syncCmd.MarkFlagRequired("manifest")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := manifest.Load(syncManifestPath)
	if err != nil {
		observability.CLILogger.Error("Invalid sync manifest", zap.String("path", syncManifestPath), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid sync manifest", err)
	}
	if syncOutput != "" {
		m.Output.Destination = syncOutput
	}

	matcher, filter, err := m.Match.Compile()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid match configuration", err)
	}
	txCfg := m.TransferConfig(filter, syncDryRun)
	if err := txCfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid sync configuration", err)
	}
	pfMode, err := preflight.ParseMode(m.Sync.Preflight.Mode)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid preflight mode", err)
	}

	if syncPlan {
		return showSyncPlan(cmd.OutOrStdout(), m)
	}
	if pfMode == preflight.ModePlanOnly {
		// plan-only never contacts a store.
		if syncDryRun {
			return showSyncPlan(cmd.OutOrStdout(), m)
		}
		return exitError(foundry.ExitInvalidArgument, "preflight.mode=plan-only cannot execute a sync",
			fmt.Errorf("set sync.preflight.mode to read-safe or write-probe, or use --plan"))
	}
	if IsReadOnly() && !syncDryRun {
		return exitError(foundry.ExitInvalidArgument, "readonly mode enabled: refusing sync",
			fmt.Errorf("use --dry-run, disable --readonly or unset %s", readOnlyEnv))
	}

	base, err := loadConfig(cmd)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	src, err := openConnection(ctx, base.Storage, m.Source)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open source", err)
	}
	dst, err := openConnection(ctx, base.Storage, m.Target)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open target", err)
	}

	writer, cleanup, err := createSyncWriter(cmd.OutOrStdout(), m)
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	log := observability.CLILogger.With(
		zap.String("source", m.Source.Label()+provider.NormalizePrefix(m.Source.Prefix)),
		zap.String("target", m.Target.Label()+provider.NormalizePrefix(m.Target.Prefix)))

	// The source is never probed for writes, and neither is the target of a
	// dry run.
	targetMode := pfMode
	if syncDryRun {
		targetMode = preflight.ModeReadSafe
	}
	checks := []struct {
		store provider.Store
		spec  preflight.Spec
	}{
		{src, preflight.Spec{Mode: preflight.ModeReadSafe, Role: "source", Prefix: m.Source.Prefix}},
		{dst, preflight.Spec{Mode: targetMode, Role: "target", Prefix: m.Target.Prefix, ProbePrefix: m.Sync.Preflight.ProbePrefix}},
	}
	for _, c := range checks {
		rec, pfErr := preflight.Check(ctx, c.store, c.spec)
		_ = writer.WritePreflight(ctx, rec)
		if pfErr != nil {
			log.Error("Preflight failed", zap.String("role", c.spec.Role), zap.Error(pfErr))
			return exitError(exitCodeFor(pfErr), "Preflight failed for "+c.spec.Role, pfErr)
		}
		log.Debug("Preflight passed", zap.String("role", c.spec.Role), zap.String("mode", string(c.spec.Mode)))
	}

	tx, err := transfer.New(src, dst, matcher, writer, txCfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid sync configuration", err)
	}

	log.Info("Sync started", zap.String("mode", txCfg.Mode), zap.Bool("dry_run", syncDryRun))
	sum, runErr := tx.Run(ctx)

	_ = writer.WriteSummary(context.WithoutCancel(ctx), &output.SummaryRecord{
		Op:       txCfg.Mode,
		Count:    sum.ObjectsTransferred,
		Skipped:  sum.ObjectsSkipped,
		Bytes:    sum.BytesTransferred,
		Errors:   sum.Errors,
		Duration: sum.Duration.String(),
	})
	log.Info("Sync finished",
		zap.Int64("listed", sum.ObjectsListed),
		zap.Int64("matched", sum.ObjectsMatched),
		zap.Int64("transferred", sum.ObjectsTransferred),
		zap.Int64("skipped", sum.ObjectsSkipped),
		zap.Int64("errors", sum.Errors),
		zap.Duration("duration", sum.Duration))

	switch {
	case errors.Is(runErr, context.Canceled):
		return exitError(foundry.ExitSignalInt, "Sync interrupted", runErr)
	case runErr != nil:
		return storeError("Sync failed", runErr)
	case sum.Errors > 0:
		return exitError(foundry.ExitExternalServiceUnavailable, "Sync finished with errors",
			fmt.Errorf("%d of %d files failed", sum.Errors, sum.ObjectsMatched))
	}
	return nil
}

func showSyncPlan(w io.Writer, m *manifest.Manifest) error {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format+"\n", a...) }

	p("=== Sync Plan ===")
	p("")
	p("Source:    %s%s", m.Source.Label(), provider.NormalizePrefix(m.Source.Prefix))
	p("Target:    %s%s", m.Target.Label(), provider.NormalizePrefix(m.Target.Prefix))
	p("Mode:      %s", m.Sync.Mode)
	if len(m.Match.Includes) > 0 {
		p("Includes:  %s", strings.Join(m.Match.Includes, ", "))
	}
	if len(m.Match.Excludes) > 0 {
		p("Excludes:  %s", strings.Join(m.Match.Excludes, ", "))
	}
	p("Workers:   %d", m.Sync.Concurrency)
	p("OnExists:  %s (compare=%s)", m.Sync.OnExists, m.Sync.Compare)
	if m.Sync.RateLimit > 0 {
		p("RateLimit: %g files/s", m.Sync.RateLimit)
	}
	if m.Sync.PathTemplate != "" {
		p("Template:  %s", m.Sync.PathTemplate)
	}
	p("Preflight: mode=%s probe_prefix=%s", m.Sync.Preflight.Mode, m.Sync.Preflight.ProbePrefix)
	p("Output:    %s", m.Output.Destination)
	p("")
	p("Manifest validated successfully. Remove --plan to execute.")
	return nil
}

// createSyncWriter opens the manifest's output destination.
func createSyncWriter(stdout io.Writer, m *manifest.Manifest) (*output.JSONLWriter, func(), error) {
	dest := m.Output.Destination
	backend := m.Source.Backend

	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(stdout, runID, backend)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	w := output.NewJSONLWriter(f, runID, backend)
	return w, func() {
		_ = w.Close()
		_ = f.Close()
	}, nil
}

// openConnection opens the store a manifest connection names. base supplies
// everything the manifest leaves unset.
func openConnection(ctx context.Context, base config.StorageConfig, conn manifest.Connection) (provider.Store, error) {
	cfg, err := connectionStorage(base, conn)
	if err != nil {
		return nil, err
	}
	return newStore(ctx, cfg, observability.CLILogger.With(zap.String("store", conn.Label())))
}

func connectionStorage(base config.StorageConfig, conn manifest.Connection) (config.StorageConfig, error) {
	cfg := base
	cfg.Backend = conn.Backend

	timeout, err := conn.TimeoutDuration()
	if err != nil {
		return cfg, err
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}

	switch conn.Backend {
	case "zone":
		cfg.Zone.Name = conn.Zone
		if conn.Endpoint != "" {
			cfg.Zone.Endpoint = conn.Endpoint
		}
		if key := os.Getenv(conn.AccessKeyEnv); key != "" {
			cfg.Zone.AccessKey = key
		}
		if cfg.Zone.AccessKey == "" {
			return cfg, fmt.Errorf("zone %q: access key not set (export %s)", conn.Zone, conn.AccessKeyEnv)
		}
	case "file":
		cfg.File.BaseDir = conn.BaseDir
	case "s3":
		cfg.S3.Bucket = conn.Bucket
		cfg.S3.Region = conn.Region
		cfg.S3.Profile = conn.Profile
		cfg.S3.Endpoint = conn.Endpoint
		cfg.S3.ForcePathStyle = conn.ForcePathStyle || conn.Endpoint != ""
	}
	return cfg, cfg.Validate()
}
