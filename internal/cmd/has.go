package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// exitAbsent is returned by has when the key does not exist.
const exitAbsent = 1

var hasCmd = &cobra.Command{
	Use:   "has <key>",
	Short: "Check whether a file exists",
	Long: `Print "true" and exit 0 when a file exists at <key>, otherwise print
"false" and exit 1.`,
	Args: cobra.ExactArgs(1),
	RunE: runHas,
}

func init() {
	rootCmd.AddCommand(hasCmd)
}

func runHas(cmd *cobra.Command, args []string) error {
	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}

	ok, err := store.Has(cmd.Context(), args[0])
	if err != nil {
		return storeError("Failed to check object", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), ok); err != nil {
		return err
	}
	if !ok {
		return exitError(exitAbsent, "Object not found", fmt.Errorf("no file at %s", args[0]))
	}
	return nil
}
