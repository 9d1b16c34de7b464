package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/provider"
)

var rmCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Delete files or directories",
	Long: `Delete one or more keys. A key ending in "/" removes the directory and
everything under it.

Deleting a key that does not exist is an error. The root key is refused
unless --allow-root-delete is given.

Examples:
  zonestore rm /notes/today.txt
  zonestore rm /tmp/ /cache/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

var (
	rmParallel int
	rmJSONL    bool
)

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().IntVar(&rmParallel, "parallel", 4, "Max concurrent deletes")
	rmCmd.Flags().BoolVar(&rmJSONL, "jsonl", false, "Emit one JSONL result record per key plus a summary")
}

func runRm(cmd *cobra.Command, args []string) error {
	if IsReadOnly() {
		return exitError(foundry.ExitInvalidArgument, "readonly mode enabled: refusing rm", fmt.Errorf("disable --readonly or unset %s", readOnlyEnv))
	}
	if rmParallel < 1 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --parallel value", fmt.Errorf("parallel must be >= 1"))
	}

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	report := newReporter(cmd.OutOrStdout(), "rm", cfg.Storage.Backend, rmJSONL)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(rmParallel)
	for _, key := range args {
		g.Go(func() error {
			if err := store.Remove(ctx, key); err != nil {
				observability.CLILogger.Error("Remove failed", zap.String("key", key), zap.Error(err))
				report.fail(ctx, provider.NormalizeKey(key), err)
				return err
			}
			observability.CLILogger.Debug("Removed", zap.String("key", key))
			return report.ok(ctx, &output.ResultRecord{Key: provider.NormalizeKey(key)})
		})
	}
	err = g.Wait()
	if cerr := report.close(cmd.Context()); err == nil {
		err = cerr
	}
	if err != nil {
		return storeError("Failed to remove", err)
	}
	return nil
}
