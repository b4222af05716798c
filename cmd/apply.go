package cmd

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kioskworks/kioskctl/internal/adapters/firewall"
	"github.com/kioskworks/kioskctl/internal/adapters/pkgmgr"
	"github.com/kioskworks/kioskctl/internal/adapters/service"
	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/items"
	"github.com/kioskworks/kioskctl/internal/state"
	"github.com/kioskworks/kioskctl/internal/system"
)

const (
	defaultSettingsPath = "/etc/kioskctl/settings.conf"
	defaultStateDir     = "/var/lib/kioskctl"

	// rebootWait bounds the confirmation prompt; on timeout we proceed.
	rebootWait = 15 * time.Second
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile the system against the desired-state file",
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		force, _ := cmd.Flags().GetBool("force")
		settingsPath, _ := cmd.Flags().GetString("settings")
		stateDir, _ := cmd.Flags().GetString("state-dir")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		settings, err := config.Load(settingsPath)
		if err != nil {
			pterm.Error.Printf("Settings error: %v\n", err)
			os.Exit(1)
		}

		rc := core.NewRunContext(ctx, dryRun, force)
		if verboseCount > 0 {
			rc.Logger.SetLevel(core.LevelDebug)
		}

		ledger, err := state.NewLedger(filepath.Join(stateDir, "state"), rc.FS, dryRun)
		if err != nil {
			pterm.Error.Printf("State ledger error: %v\n", err)
			os.Exit(1)
		}
		rc.Ledger = ledger

		backups, err := state.NewArchive(filepath.Join(stateDir, "backups"), rc.FS, rc.Started, dryRun)
		if err != nil {
			pterm.Error.Printf("Backup archive error: %v\n", err)
			os.Exit(1)
		}
		rc.Backups = backups

		scheme := system.DetectMemoryScheme(rc.FS, settings.GPUMem, settings.CMASize)
		deps := items.Deps{
			Services: service.NewSystemd(rc.Runner),
			Packages: pkgmgr.NewApt(rc.Runner),
			Firewall: firewall.NewUFW(rc.Runner),
		}

		mode := "apply"
		if dryRun {
			mode = "preview"
		}
		pterm.DefaultSection.Printf("kioskctl %s (run %s)\n", mode, rc.RunID)

		engine := core.NewEngine(rc, items.ForSettings(settings, scheme, deps)...)
		summary, err := engine.Run()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				pterm.Error.Println("Aborted by operator.")
				os.Exit(130)
			}
			pterm.Error.Printf("Reconciliation failed: %v\n", err)
			os.Exit(1)
		}

		if dryRun {
			reportPreview(summary)
			return
		}

		if !summary.Changed {
			pterm.Success.Println("Already converged; no changes needed.")
			return
		}

		pterm.Success.Println("Reconciliation complete; changes were applied.")
		if summary.RebootRequired {
			pterm.Warning.Println("A reboot is required for boot parameters and kernel tunables to take effect.")
		} else {
			pterm.Info.Println("A reboot is recommended to restart affected services cleanly.")
		}

		if settings.RebootOnChange {
			if confirmWithTimeout("Reboot now?", rebootWait) {
				pterm.Info.Println("Rebooting.")
				if out, err := rc.Runner.Run(rc, "reboot"); err != nil {
					pterm.Error.Printf("Reboot failed: %v: %s\n", err, out)
					os.Exit(1)
				}
			} else {
				pterm.Info.Println("Reboot skipped; changes take effect at next boot.")
			}
		}
	},
}

func reportPreview(summary *core.Summary) {
	pending := 0
	for _, item := range summary.Items {
		if item.Result.Changed() {
			pending++
		}
	}
	if pending == 0 {
		pterm.Success.Println("Preview complete: system already converged.")
		return
	}
	pterm.Warning.Printf("Preview complete: %d item(s) would change. No mutation was performed.\n", pending)
}

// confirmWithTimeout asks on the terminal and proceeds by default after the
// bounded wait, so an unattended appliance never hangs on the prompt.
func confirmWithTimeout(question string, wait time.Duration) bool {
	pterm.Printf("%s [Y/n] (auto-yes in %s): ", question, wait)

	answers := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		answers <- strings.TrimSpace(strings.ToLower(line))
	}()

	select {
	case a := <-answers:
		return a == "" || a == "y" || a == "yes"
	case <-time.After(wait):
		pterm.Println()
		return true
	}
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().Bool("dry-run", false, "Preview changes without mutating anything")
	applyCmd.Flags().Bool("force", false, "Treat every item as needing update")
	applyCmd.Flags().String("settings", defaultSettingsPath, "Desired-state file path")
	applyCmd.Flags().String("state-dir", defaultStateDir, "Directory for the state ledger and backups")
}
