package classify

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/portfolio"
)

func sec(isin string, class constants.AssetClass, value string) portfolio.Security {
	d, _ := decimal.NewFromString(value)
	return portfolio.Security{
		ISIN:       isin,
		AssetClass: class,
		Value:      decimal.NullDecimal{Decimal: d, Valid: true},
	}
}

func nd(value string) decimal.NullDecimal {
	d, _ := decimal.NewFromString(value)
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func TestAggregateReconciled(t *testing.T) {
	a := NewAggregator(0.01, nil)
	p := &portfolio.Portfolio{Securities: []portfolio.Security{
		sec("CH1259344831", constants.StructuredProducts, "249800"),
		sec("US0378331005", constants.Equities, "90125"),
	}}

	issues := a.Aggregate(p, nd("339925"))

	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if !p.Reconciled {
		t.Error("expected reconciled portfolio")
	}
	if p.TotalValue.String() != "339925" {
		t.Errorf("total = %s, want 339925", p.TotalValue)
	}
	if len(p.Allocation) != 2 {
		t.Fatalf("allocation classes = %d, want 2", len(p.Allocation))
	}
	eq := p.Allocation[string(constants.Equities)]
	if eq.Weight.String() != "26.51" {
		t.Errorf("equities weight = %s, want 26.51", eq.Weight)
	}
}

// A five percent gap between row sum and stated total must be flagged, and
// the stated total kept untouched: flag, never fix.
func TestAggregateTotalMismatch(t *testing.T) {
	a := NewAggregator(0.01, nil)
	p := &portfolio.Portfolio{Securities: []portfolio.Security{
		sec("CH1259344831", constants.Bonds, "95000"),
	}}

	issues := a.Aggregate(p, nd("100000"))

	if p.Reconciled {
		t.Error("expected unreconciled portfolio")
	}
	if p.TotalValue.String() != "100000" {
		t.Errorf("total = %s, want the stated 100000", p.TotalValue)
	}
	var kinds []constants.IssueKind
	for _, is := range issues {
		kinds = append(kinds, is.Kind)
	}
	if len(issues) < 1 || issues[0].Kind != constants.IssueTotalMismatch {
		t.Fatalf("issues = %v, want total-mismatch first", kinds)
	}
	if issues[0].Severity != constants.SeverityError {
		t.Errorf("severity = %q, want error", issues[0].Severity)
	}
	// weights computed against the stated total sum to 95%
	found := false
	for _, is := range issues {
		if is.Kind == constants.IssueWeightMismatch {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %v, want a weight-mismatch", kinds)
	}
}

func TestAggregateNoStatedTotal(t *testing.T) {
	a := NewAggregator(0.01, nil)
	p := &portfolio.Portfolio{Securities: []portfolio.Security{
		sec("CH1259344831", constants.Bonds, "95000"),
	}}

	issues := a.Aggregate(p, decimal.NullDecimal{})

	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if !p.Reconciled {
		t.Error("nothing to reconcile against must count as reconciled")
	}
	if p.TotalValue.String() != "95000" {
		t.Errorf("total = %s, want row sum 95000", p.TotalValue)
	}
}

func TestAggregateWithinTolerance(t *testing.T) {
	a := NewAggregator(0.01, nil)
	p := &portfolio.Portfolio{Securities: []portfolio.Security{
		sec("CH1259344831", constants.Bonds, "99500"),
	}}
	// 0.5% off, inside the 1% tolerance
	if issues := a.Aggregate(p, nd("100000")); len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if !p.Reconciled {
		t.Error("expected reconciled within tolerance")
	}
}
