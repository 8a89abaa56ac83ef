// Package arbitrate resolves low-confidence or conflicting extracted fields
// through an external reasoning service. Arbitration is optional: every
// implementation may report itself unavailable and the pipeline keeps its
// best pre-arbitration values.
package arbitrate

import (
	"context"
	"errors"
)

// ErrUnavailable signals that no verdict could be obtained; the caller keeps
// its current values and the related issue stays open.
var ErrUnavailable = errors.New("arbitration unavailable")

// Candidate is one competing value for a field, with its origin.
type Candidate struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Source     string  `json:"source"` // e.g. "table/stream/p2", "text/p4"
	Confidence float64 `json:"confidence"`
}

// Evidence is the compact bundle sent to the reasoning service: the
// identifier, the competing values, and the raw text around the identifier.
type Evidence struct {
	Identifier  string      `json:"identifier"`
	Candidates  []Candidate `json:"candidates"`
	ContextText string      `json:"contextText"`
}

// Verdict is the reconciled answer for one field. The rationale is stored
// as provenance, not re-interpreted.
type Verdict struct {
	Field     string `json:"field"`
	Value     string `json:"value"`
	Rationale string `json:"rationale"`
}

// Arbitrator is the capability interface for the external service.
// Implementations must honor ctx cancellation and deadlines.
type Arbitrator interface {
	Arbitrate(ctx context.Context, ev Evidence) (Verdict, error)
}

// Noop always reports unavailable. It substitutes the real service in
// offline runs and tests.
type Noop struct{}

func (Noop) Arbitrate(context.Context, Evidence) (Verdict, error) {
	return Verdict{}, ErrUnavailable
}
