package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kioskctl",
	Short: "Converge a display appliance to its declared configuration",
	Long: `kioskctl reconciles one local host against one local desired-state file:
it compares each configured subsystem with the declared settings, applies the
minimal change with a backup, and records what it did.`,
}

var verboseCount int

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep stdout clean for piping; all decoration goes to stderr.
	pterm.SetDefaultOutput(os.Stderr)
	pterm.Success.Writer = os.Stderr
	pterm.Info.Writer = os.Stderr
	pterm.Error.Writer = os.Stderr
	pterm.Warning.Writer = os.Stderr

	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "Increase verbosity level (-v, -vv)")
}
