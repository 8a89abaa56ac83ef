package constants

// RunState is the canonical state of one document processing run.
type RunState string

// Stable values (persisted alongside snapshots).
const (
	RunQueued      RunState = "queued"
	RunExtracting  RunState = "extracting"
	RunDetecting   RunState = "detecting_tables"
	RunIdentifying RunState = "extracting_identifiers"
	RunAttributing RunState = "attributing"
	RunAggregating RunState = "aggregating"
	RunArbitrating RunState = "arbitrating"
	RunMerged      RunState = "merged"
	RunCompleted   RunState = "completed"
	RunWithIssues  RunState = "completed_with_issues"
	RunFailed      RunState = "failed"
)

// Terminal reports whether a run state is final.
func (s RunState) Terminal() bool {
	switch s {
	case RunCompleted, RunWithIssues, RunFailed:
		return true
	}
	return false
}
