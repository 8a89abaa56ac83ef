// Package portfolio defines the records the pipeline emits: securities keyed
// by ISIN, portfolio aggregates, and validation issues. Values never leave
// decimal arithmetic.
package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/clearfolio/statement-parser/constants"
)

// Source records which stage/candidate contributed a field value.
type Source struct {
	Page       int     `json:"page"`
	Strategy   string  `json:"strategy,omitempty"` // empty for free-text provenance
	FromTable  bool    `json:"from_table"`
	RowSupport int     `json:"row_support,omitempty"` // rows corroborating the value
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"` // set by arbitration verdicts
}

// Security is one extracted position. Unique per ISIN within a snapshot.
type Security struct {
	ISIN       string               `json:"isin"`
	Name       string               `json:"name,omitempty"`
	Quantity   decimal.NullDecimal  `json:"quantity"`
	Price      decimal.NullDecimal  `json:"price"`
	Value      decimal.NullDecimal  `json:"value"`
	Currency   string               `json:"currency,omitempty"`
	AssetClass constants.AssetClass `json:"asset_class"`
	Confidence float64              `json:"confidence"`
	Provenance []Source             `json:"-"`
}

// ClassWeight is the aggregate for one asset class.
type ClassWeight struct {
	Value  decimal.Decimal `json:"value"`
	Weight decimal.Decimal `json:"weight"` // percent of total value
}

// Portfolio is the reconciled snapshot emitted by the merger. Never mutated
// after the pipeline returns it; a re-run produces a new snapshot.
type Portfolio struct {
	Securities []Security             `json:"securities"`
	TotalValue decimal.Decimal        `json:"total_value"`
	Currency   string                 `json:"currency"`
	Allocation map[string]ClassWeight `json:"asset_allocation"`
	Reconciled bool                   `json:"reconciled"`
}

// Issue is a validation finding surfaced to the caller, never silently fixed.
type Issue struct {
	Kind     constants.IssueKind `json:"kind"`
	ISIN     string              `json:"isin,omitempty"`
	Field    string              `json:"field,omitempty"` // set on field-level findings
	Severity constants.Severity  `json:"severity"`
	Detail   string              `json:"detail,omitempty"`
}
