// Package merge deduplicates attributed field sets by ISIN and resolves
// conflicting field values. Conflicts are resolved, never averaged: the
// better-supported candidate wins outright and losing values survive only
// as issues.
package merge

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/attribute"
	"github.com/clearfolio/statement-parser/internal/classify"
	"github.com/clearfolio/statement-parser/internal/portfolio"
)

type Merger struct {
	logger *slog.Logger
}

func NewMerger(logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{logger: logger}
}

// Merge collapses field sets into one security per ISIN. Output order is
// deterministic: first appearance by page, then ISIN.
func (m *Merger) Merge(sets []attribute.FieldSet) ([]portfolio.Security, []portfolio.Issue) {
	groups := make(map[string][]attribute.FieldSet)
	var order []string
	for _, fs := range sets {
		if _, ok := groups[fs.ISIN]; !ok {
			order = append(order, fs.ISIN)
		}
		groups[fs.ISIN] = append(groups[fs.ISIN], fs)
	}

	var securities []portfolio.Security
	var issues []portfolio.Issue
	for _, isin := range order {
		group := groups[isin]
		// page order is the final tiebreak, so make it stable up front
		sort.SliceStable(group, func(i, j int) bool { return group[i].Page < group[j].Page })

		sec, secIssues := m.mergeGroup(isin, group)
		securities = append(securities, sec)
		issues = append(issues, secIssues...)
	}
	return securities, issues
}

// mergeGroup resolves each field independently across the group.
func (m *Merger) mergeGroup(isin string, group []attribute.FieldSet) (portfolio.Security, []portfolio.Issue) {
	var issues []portfolio.Issue

	name, _ := pickString(group, func(f attribute.FieldSet) string { return f.Name })
	currency, curConflict := pickString(group, func(f attribute.FieldSet) string { return f.Currency })
	classLabel, _ := pickString(group, func(f attribute.FieldSet) string { return f.ClassLabel })

	quantity, qtyConflict := pickDecimal(group, func(f attribute.FieldSet) decimal.NullDecimal { return f.Quantity })
	price, priceConflict := pickDecimal(group, func(f attribute.FieldSet) decimal.NullDecimal { return f.Price })
	value, valConflict := pickDecimal(group, func(f attribute.FieldSet) decimal.NullDecimal { return f.Value })

	conflicts := []struct {
		field string
		hit   bool
	}{
		{"quantity", qtyConflict},
		{"price", priceConflict},
		{"value", valConflict},
		{"currency", curConflict},
	}
	for _, c := range conflicts {
		if c.hit {
			field := c.field
			issues = append(issues, portfolio.Issue{
				Kind:     constants.IssueConflictingValue,
				ISIN:     isin,
				Field:    field,
				Severity: constants.SeverityWarning,
				Detail:   fmt.Sprintf("equally supported %s candidates disagree; kept first occurrence", field),
			})
			m.logger.Warn("merge.conflict", "isin", isin, "field", field, "sources", len(group))
		}
	}

	if !value.valid {
		issues = append(issues, portfolio.Issue{
			Kind:     constants.IssueMissingValue,
			ISIN:     isin,
			Field:    "value",
			Severity: constants.SeverityWarning,
			Detail:   "no monetary value attributed",
		})
	}

	sec := portfolio.Security{
		ISIN:       isin,
		Name:       name.value,
		Quantity:   quantity.value,
		Price:      price.value,
		Value:      value.value,
		Currency:   currency.value,
		AssetClass: classify.Classify(name.value, classLabel.value),
		Confidence: recordConfidence(name, currency, quantity, price, value),
		Provenance: provenance(group),
	}
	return sec, issues
}

// pick holds one resolved field with the confidence of its winning source.
type pick[T any] struct {
	value T
	conf  float64
	valid bool
}

// better orders competing field sets: confidence first, table over free text,
// broader row support, earliest page last.
func better(a, b attribute.FieldSet) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.FromTable != b.FromTable {
		return a.FromTable
	}
	if a.RowSupport != b.RowSupport {
		return a.RowSupport > b.RowSupport
	}
	return false // equal support: first occurrence (page order) stands
}

// pickString resolves a string field. Reports a conflict when two equally
// supported sources carry different non-empty values.
func pickString(group []attribute.FieldSet, get func(attribute.FieldSet) string) (pick[string], bool) {
	var winner attribute.FieldSet
	var out pick[string]
	conflict := false
	for _, fs := range group {
		v := get(fs)
		if v == "" {
			continue
		}
		if !out.valid {
			winner, out = fs, pick[string]{value: v, conf: fs.Confidence, valid: true}
			continue
		}
		if better(fs, winner) {
			winner, out = fs, pick[string]{value: v, conf: fs.Confidence, valid: true}
			conflict = false
		} else if !better(winner, fs) && v != out.value {
			conflict = true
		}
	}
	return out, conflict
}

func pickDecimal(group []attribute.FieldSet, get func(attribute.FieldSet) decimal.NullDecimal) (pick[decimal.NullDecimal], bool) {
	var winner attribute.FieldSet
	var out pick[decimal.NullDecimal]
	conflict := false
	for _, fs := range group {
		v := get(fs)
		if !v.Valid {
			continue
		}
		if !out.valid {
			winner, out = fs, pick[decimal.NullDecimal]{value: v, conf: fs.Confidence, valid: true}
			continue
		}
		if better(fs, winner) {
			winner, out = fs, pick[decimal.NullDecimal]{value: v, conf: fs.Confidence, valid: true}
			conflict = false
		} else if !better(winner, fs) && !v.Decimal.Equal(out.value.Decimal) {
			conflict = true
		}
	}
	return out, conflict
}

// recordConfidence composes the record's confidence as the minimum over the
// fields that actually resolved. An all-null record keeps zero confidence.
func recordConfidence(picks ...any) float64 {
	min := -1.0
	consider := func(valid bool, conf float64) {
		if !valid {
			return
		}
		if min < 0 || conf < min {
			min = conf
		}
	}
	for _, p := range picks {
		switch v := p.(type) {
		case pick[string]:
			consider(v.valid, v.conf)
		case pick[decimal.NullDecimal]:
			consider(v.valid, v.conf)
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

func provenance(group []attribute.FieldSet) []portfolio.Source {
	sources := make([]portfolio.Source, 0, len(group))
	for _, fs := range group {
		sources = append(sources, portfolio.Source{
			Page:       fs.Page,
			Strategy:   fs.Strategy,
			FromTable:  fs.FromTable,
			RowSupport: fs.RowSupport,
			Confidence: fs.Confidence,
			Rationale:  fs.Rationale,
		})
	}
	return sources
}
