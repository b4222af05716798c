package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last-applied state of every configuration item",
	Run: func(cmd *cobra.Command, args []string) {
		stateDir, _ := cmd.Flags().GetString("state-dir")

		ledger, err := state.NewLedger(filepath.Join(stateDir, "state"), &core.RealFS{}, true)
		if err != nil {
			pterm.Error.Printf("Could not open state ledger: %v\n", err)
			os.Exit(1)
		}

		entries, err := ledger.Entries()
		if err != nil {
			pterm.Error.Printf("Could not read state ledger: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			pterm.Info.Println("No configuration has been applied yet.")
			return
		}

		configured := make(map[string]string)
		var items [][2]string
		var lastRun string
		for _, e := range entries {
			switch {
			case e[0] == "last_run":
				lastRun = e[1]
			case e[0] == "last_run_id":
				// Shown only with the timestamp.
			case strings.HasSuffix(e[0], "_configured"):
				configured[strings.TrimSuffix(e[0], "_configured")] = e[1]
			default:
				items = append(items, e)
			}
		}

		if lastRun != "" {
			pterm.Info.Printf("Last run: %s\n", lastRun)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ITEM\tVALUE\tCONFIGURED AT")
		fmt.Fprintln(w, "----\t-----\t-------------")
		for _, e := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e[0], e[1], configured[e[0]])
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("state-dir", defaultStateDir, "Directory for the state ledger and backups")
}
