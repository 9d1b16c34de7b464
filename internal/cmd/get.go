package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/provider"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Download a file",
	Long: `Download the file stored at <key>.

The content is written to stdout unless --output names a file.

Examples:
  zonestore get /images/logo.png -o logo.png
  zonestore get /notes/today.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var getOutput string

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "Write content to this file instead of stdout")
}

func runGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}

	f, err := store.Get(cmd.Context(), key)
	if err != nil {
		observability.CLILogger.Error("Get failed", zap.String("key", key), zap.Error(err))
		return storeError("Failed to get object", err)
	}
	if f == nil {
		return exitError(foundry.ExitFileNotFound, "Object not found", fmt.Errorf("%w: %s", provider.ErrNotFound, provider.NormalizeKey(key)))
	}

	observability.CLILogger.Debug("Downloaded object",
		zap.String("key", key),
		zap.String("content_type", f.ContentType),
		zap.Int64("size", f.Size()))

	if getOutput == "" {
		if _, err := cmd.OutOrStdout().Write(f.Data); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
		return nil
	}
	if err := os.WriteFile(getOutput, f.Data, 0o644); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output file", err)
	}
	return nil
}
