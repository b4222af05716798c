package core

// Verdict is the terminal state of one item's reconciliation.
type Verdict int

const (
	// Unchanged means the item's artifact already matched desired state.
	Unchanged Verdict = iota
	// Updated means the artifact was mutated to match desired state.
	Updated
	// WouldUpdate means dry-run detected drift but made no change.
	WouldUpdate
)

func (v Verdict) String() string {
	switch v {
	case Updated:
		return "updated"
	case WouldUpdate:
		return "would update"
	default:
		return "unchanged"
	}
}

// Result is what an applier returns: the verdict, a human-readable message,
// an optional diff preview, and whether the change wants a reboot to take
// full effect.
type Result struct {
	Verdict Verdict
	Message string
	Diff    string
	Reboot  bool
}

// Changed reports whether this result counts toward the aggregate
// "changes made" flag. WouldUpdate counts: dry-run must report the same set
// of changing items a real run would apply.
func (r Result) Changed() bool {
	return r.Verdict != Unchanged
}

// NoChange returns an Unchanged result.
func NoChange(msg string) Result {
	return Result{Verdict: Unchanged, Message: msg}
}

// Applied returns an Updated result.
func Applied(msg string) Result {
	return Result{Verdict: Updated, Message: msg}
}

// Preview returns a WouldUpdate result for dry-run reporting.
func Preview(msg string) Result {
	return Result{Verdict: WouldUpdate, Message: msg}
}
