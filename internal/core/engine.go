package core

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
)

// Applier converges one configuration item's artifact to desired state.
// Implementations compose the change detectors, the backup archive and the
// ledger; they must not mutate anything when the run context is dry-run.
type Applier interface {
	Name() string
	Apply(rc *RunContext) (Result, error)
}

// ItemVerdict pairs an item name with the result of its reconciliation.
type ItemVerdict struct {
	Item   string
	Result Result
}

// Summary is the aggregate outcome of one reconciliation run.
type Summary struct {
	// Changed is the OR of every item verdict; it drives the terminal
	// reboot/restart decision.
	Changed bool
	// RebootRequired is set when any updated item needs a reboot to take
	// full effect (boot parameters, swap, kernel tunables).
	RebootRequired bool
	Items          []ItemVerdict
}

// Engine sequences the item appliers in dependency order and aggregates
// their verdicts. Strictly sequential: items share mutable files and have
// ordering constraints, so there is nothing to parallelize safely.
type Engine struct {
	rc       *RunContext
	appliers []Applier
}

func NewEngine(rc *RunContext, appliers ...Applier) *Engine {
	return &Engine{rc: rc, appliers: appliers}
}

// Run reconciles every item in order. The first applier error aborts the
// run: every mutation is preceded by its backup and followed by its ledger
// write, so a resumed run perceives which items already converged.
func (e *Engine) Run() (*Summary, error) {
	summary := &Summary{}

	for _, a := range e.appliers {
		if err := e.rc.Err(); err != nil {
			return summary, err
		}

		res, err := a.Apply(e.rc)
		if err != nil {
			return summary, fmt.Errorf("item %s: %w", a.Name(), err)
		}

		summary.Items = append(summary.Items, ItemVerdict{Item: a.Name(), Result: res})
		if res.Changed() {
			summary.Changed = true
			if res.Reboot {
				summary.RebootRequired = true
			}
		}
		e.report(a.Name(), res)
	}

	if !e.rc.DryRun {
		if err := e.rc.Ledger.Set("last_run", e.rc.Started.Format(time.RFC3339)); err != nil {
			return summary, fmt.Errorf("record last_run: %w", err)
		}
		if err := e.rc.Ledger.Set("last_run_id", e.rc.RunID); err != nil {
			return summary, fmt.Errorf("record last_run_id: %w", err)
		}
	}

	return summary, nil
}

func (e *Engine) report(item string, res Result) {
	switch res.Verdict {
	case Updated:
		pterm.Success.Printf("[%s] %s\n", item, res.Message)
	case WouldUpdate:
		pterm.Warning.Printf("[%s] would apply: %s\n", item, res.Message)
		if res.Diff != "" {
			pterm.Println(res.Diff)
		}
	default:
		pterm.Info.Printf("[%s] unchanged\n", item)
	}
}

// BestEffort downgrades a cleanup failure to a log line. Only for operations
// whose failure is semantically equivalent to success (unit already absent,
// file already removed); real errors must propagate instead.
func BestEffort(rc *RunContext, what string, err error) {
	if err != nil {
		rc.Logger.Debug(fmt.Sprintf("%s: %v (ignored)", what, err))
	}
}
