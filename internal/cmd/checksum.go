package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/zonestore/pkg/provider"
)

var checksumCmd = &cobra.Command{
	Use:   "checksum <file>...",
	Short: "Print the upload checksum of local files",
	Long: `Print the uppercase hex SHA-256 digest sent with uploads, one line per
file in the form "<digest>  <file>". Use "-" to read stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChecksum,
}

func init() {
	rootCmd.AddCommand(checksumCmd)
}

func runChecksum(cmd *cobra.Command, args []string) error {
	for _, name := range args {
		var (
			data []byte
			err  error
		)
		if name == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			code := foundry.ExitFileReadError
			if os.IsNotExist(err) {
				code = foundry.ExitFileNotFound
			}
			return exitError(code, "Failed to read "+name, err)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", provider.Checksum(data), name); err != nil {
			return err
		}
	}
	return nil
}
