package classify

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/portfolio"
)

var hundred = decimal.NewFromInt(100)

// Aggregator computes document-global totals once all pages are merged. It
// is single-writer over the portfolio it returns.
type Aggregator struct {
	tolerance decimal.Decimal // relative, e.g. 0.01
	logger    *slog.Logger
}

func NewAggregator(tolerance float64, logger *slog.Logger) *Aggregator {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{tolerance: decimal.NewFromFloat(tolerance), logger: logger}
}

// Aggregate classifies every security, sums class and portfolio totals,
// computes weights and reconciles against the stated total when one was
// detected on the statement. Mismatches are flagged, never corrected.
func (a *Aggregator) Aggregate(p *portfolio.Portfolio, stated decimal.NullDecimal) []portfolio.Issue {
	var issues []portfolio.Issue

	total := decimal.Zero
	classTotals := make(map[string]decimal.Decimal)
	for i := range p.Securities {
		sec := &p.Securities[i]
		if sec.AssetClass == "" {
			sec.AssetClass = constants.OtherAssets
		}
		if !sec.Value.Valid {
			continue
		}
		total = total.Add(sec.Value.Decimal)
		key := string(sec.AssetClass)
		classTotals[key] = classTotals[key].Add(sec.Value.Decimal)
	}

	p.TotalValue = total
	if stated.Valid {
		// The statement's own figure is authoritative for weights; the sum
		// of rows is only checked against it.
		p.TotalValue = stated.Decimal
	}

	p.Allocation = make(map[string]portfolio.ClassWeight, len(classTotals))
	weightSum := decimal.Zero
	for class, classTotal := range classTotals {
		weight := decimal.Zero
		if !p.TotalValue.IsZero() {
			weight = classTotal.Div(p.TotalValue).Mul(hundred).Round(2)
		}
		weightSum = weightSum.Add(weight)
		p.Allocation[class] = portfolio.ClassWeight{Value: classTotal, Weight: weight}
	}

	p.Reconciled = true
	if stated.Valid && !withinTolerance(total, stated.Decimal, a.tolerance) {
		p.Reconciled = false
		issues = append(issues, portfolio.Issue{
			Kind:     constants.IssueTotalMismatch,
			Severity: constants.SeverityError,
			Detail: fmt.Sprintf("sum of securities %s deviates from stated total %s beyond tolerance %s",
				total.String(), stated.Decimal.String(), a.tolerance.String()),
		})
		a.logger.Warn("aggregate.total_mismatch",
			"sum", total.String(),
			"stated", stated.Decimal.String(),
		)
	}

	if len(p.Allocation) > 0 && !p.TotalValue.IsZero() && stated.Valid {
		// Weights are computed against the stated total, so a row-sum gap
		// shows up here too.
		if !withinTolerance(weightSum, hundred, a.tolerance) {
			issues = append(issues, portfolio.Issue{
				Kind:     constants.IssueWeightMismatch,
				Severity: constants.SeverityWarning,
				Detail:   fmt.Sprintf("asset class weights sum to %s%%", weightSum.String()),
			})
		}
	}

	return issues
}

// withinTolerance checks |a-b| / b <= tol, treating a zero reference as an
// exact comparison.
func withinTolerance(got, want, tol decimal.Decimal) bool {
	if want.IsZero() {
		return got.IsZero()
	}
	diff := got.Sub(want).Abs()
	return diff.Div(want.Abs()).LessThanOrEqual(tol)
}
