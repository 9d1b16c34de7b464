package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/preflight"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight [prefix]",
	Short: "Check store permissions before running a job",
	Long: `Check which capabilities the configured store grants under a directory
prefix (default "/"). A zonestore.preflight.v1 JSONL record is written to
stdout listing every check that ran.

Modes:
  plan-only    no store calls
  read-safe    list and existence checks only (default)
  write-probe  also write, read back and remove one probe file under
               --probe-prefix; refused in --readonly mode

Examples:
  zonestore preflight /images/
  zonestore preflight /images/ --mode write-probe
  zonestore --backend s3 --bucket media preflight --mode write-probe --probe-prefix /tmp/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreflight,
}

var (
	preflightMode        string
	preflightProbePrefix string
)

func init() {
	rootCmd.AddCommand(preflightCmd)
	preflightCmd.Flags().StringVar(&preflightMode, "mode", string(preflight.ModeReadSafe), "Preflight mode: plan-only, read-safe or write-probe")
	preflightCmd.Flags().StringVar(&preflightProbePrefix, "probe-prefix", preflight.DefaultProbePrefix, "Directory the write probe uses")
}

func runPreflight(cmd *cobra.Command, args []string) error {
	prefix := "/"
	if len(args) == 1 {
		prefix = args[0]
	}
	mode, err := preflight.ParseMode(preflightMode)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --mode value", err)
	}
	if mode == preflight.ModeWriteProbe && IsReadOnly() {
		return exitError(foundry.ExitInvalidArgument, "readonly mode enabled: refusing write-probe",
			fmt.Errorf("use --mode read-safe, disable --readonly or unset %s", readOnlyEnv))
	}

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}

	spec := preflight.Spec{Mode: mode, Prefix: prefix, ProbePrefix: preflightProbePrefix}
	rec, pfErr := preflight.Check(cmd.Context(), store, spec)

	w := output.NewJSONLWriter(cmd.OutOrStdout(), runID, cfg.Storage.Backend)
	defer func() { _ = w.Close() }()
	if err := w.WritePreflight(cmd.Context(), rec); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}

	if pfErr != nil {
		observability.CLILogger.Error("Preflight failed",
			zap.String("prefix", prefix),
			zap.String("mode", string(mode)),
			zap.Error(pfErr))
		return storeError("Preflight failed", pfErr)
	}
	observability.CLILogger.Debug("Preflight passed",
		zap.String("prefix", prefix),
		zap.String("mode", string(mode)),
		zap.Int("checks", len(rec.Results)))
	return nil
}
