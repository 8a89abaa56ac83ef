// Package pipeline coordinates the extraction stages for one statement:
// text extraction, table detection, identifier scanning, attribution,
// aggregation, optional arbitration, and the final merge.
package pipeline

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/common"
	"github.com/clearfolio/statement-parser/internal/portfolio"
)

// Options tune one run. Zero values fall back to configured defaults.
type Options struct {
	Languages           []string
	ValueTolerance      float64
	ConfidenceThreshold float64
	ArbitrationEnabled  bool
	ArbitrationTimeout  time.Duration
}

func (o Options) withDefaults(cfg common.PipelineConfig, arb common.ArbitrationConfig) Options {
	if len(o.Languages) == 0 {
		o.Languages = cfg.Languages
	}
	if o.ValueTolerance <= 0 {
		o.ValueTolerance = cfg.ValueTolerance
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = cfg.ConfidenceThreshold
	}
	if o.ArbitrationTimeout <= 0 {
		o.ArbitrationTimeout = arb.Timeout
	}
	return o
}

// run tracks the state machine of one processing run. Transitions only move
// forward; terminal states are never left.
type run struct {
	id      uuid.UUID
	docID   uuid.UUID
	state   constants.RunState
	started time.Time
	issues  []portfolio.Issue
	logger  *slog.Logger
}

func newRun(docID uuid.UUID, logger *slog.Logger) *run {
	return &run{
		id:      uuid.New(),
		docID:   docID,
		state:   constants.RunQueued,
		started: time.Now(),
		logger:  logger,
	}
}

func (r *run) to(next constants.RunState) {
	if r.state.Terminal() {
		return
	}
	r.logger.Info("pipeline.state",
		"run_id", r.id,
		"document_id", r.docID,
		"from", r.state,
		"to", next,
	)
	r.state = next
}

func (r *run) addIssues(issues ...portfolio.Issue) {
	r.issues = append(r.issues, issues...)
}

// terminalState decides the final state from the collected issues. Info-level
// findings do not taint a run.
func (r *run) terminalState() constants.RunState {
	for _, is := range r.issues {
		if is.Severity == constants.SeverityWarning || is.Severity == constants.SeverityError {
			return constants.RunWithIssues
		}
	}
	return constants.RunCompleted
}
