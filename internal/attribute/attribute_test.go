package attribute

import (
	"strings"
	"testing"

	"github.com/clearfolio/statement-parser/internal/document"
)

func tableMatch(isin string, row, col int, conf float64) document.IdentifierMatch {
	return document.IdentifierMatch{
		ISIN:       isin,
		Valid:      true,
		Page:       0,
		Cell:       &document.CellRef{Candidate: 0, Row: row, Col: col},
		Confidence: conf,
	}
}

func TestAttributeByHeader(t *testing.T) {
	a := NewAttributor(160, nil)
	cand := document.TableCandidate{
		Strategy:   "stream",
		Confidence: 0.9,
		Header:     []string{"ISIN", "Description", "Quantity", "Price", "Market Value", "Ccy"},
		Cells: [][]string{
			{"CH1259344831", "Example Structured Note", "1'000", "249.80", "249'800.00", "USD"},
		},
	}
	match := tableMatch("CH1259344831", 0, 0, 0.95)

	fs := a.Attribute(match, document.Page{}, []document.TableCandidate{cand})

	if !fs.FromTable {
		t.Fatal("expected table attribution")
	}
	if fs.Name != "Example Structured Note" {
		t.Errorf("name = %q", fs.Name)
	}
	if !fs.Quantity.Valid || fs.Quantity.Decimal.String() != "1000" {
		t.Errorf("quantity = %+v, want 1000", fs.Quantity)
	}
	if !fs.Price.Valid || fs.Price.Decimal.String() != "249.8" {
		t.Errorf("price = %+v, want 249.8", fs.Price)
	}
	if !fs.Value.Valid || fs.Value.Decimal.String() != "249800" {
		t.Errorf("value = %+v, want 249800", fs.Value)
	}
	if fs.Currency != "USD" {
		t.Errorf("currency = %q, want USD", fs.Currency)
	}
	// weakest contributing stage bounds the field set
	if fs.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", fs.Confidence)
	}
}

func TestAttributeByPosition(t *testing.T) {
	a := NewAttributor(160, nil)
	// no usable header: positional heuristics take over
	cand := document.TableCandidate{
		Strategy:   "lattice",
		Confidence: 0.7,
		Cells: [][]string{
			{"US0378331005", "Apple Inc", "500", "180.25", "90'125.00"},
			{"CH0012032048", "Roche Holding AG", "100", "250.00", "25'000.00"},
		},
	}
	match := tableMatch("US0378331005", 0, 0, 0.8)

	fs := a.Attribute(match, document.Page{}, []document.TableCandidate{cand})

	if !fs.Quantity.Valid || fs.Quantity.Decimal.String() != "500" {
		t.Errorf("quantity = %+v, want 500", fs.Quantity)
	}
	if !fs.Price.Valid || fs.Price.Decimal.String() != "180.25" {
		t.Errorf("price = %+v, want 180.25", fs.Price)
	}
	if !fs.Value.Valid || fs.Value.Decimal.String() != "90125" {
		t.Errorf("value = %+v, want 90125 (rightmost amount)", fs.Value)
	}
	if fs.Name != "Apple Inc" {
		t.Errorf("name = %q, want Apple Inc", fs.Name)
	}
	if fs.RowSupport != 2 {
		t.Errorf("row support = %d, want 2", fs.RowSupport)
	}
}

func TestAttributeFromText(t *testing.T) {
	a := NewAttributor(160, nil)
	text := "Holding DE0005140008 Deutsche Bank AG, EUR 12'500.00 as of date"
	idx := strings.Index(text, "DE0005140008")
	match := document.IdentifierMatch{
		ISIN:       "DE0005140008",
		Valid:      true,
		Page:       2,
		Span:       [2]int{idx, idx + 12},
		Confidence: 0.9,
	}

	fs := a.Attribute(match, document.Page{Index: 2, Text: text}, nil)

	if fs.FromTable {
		t.Fatal("expected free-text attribution")
	}
	if fs.Currency != "EUR" {
		t.Errorf("currency = %q, want EUR", fs.Currency)
	}
	if !fs.Value.Valid || fs.Value.Decimal.String() != "12500" {
		t.Errorf("value = %+v, want 12500", fs.Value)
	}
	if want := 0.9 * freeTextDiscount; fs.Confidence != want {
		t.Errorf("confidence = %v, want %v", fs.Confidence, want)
	}
}

func TestAttributeFromTextRespectsWindow(t *testing.T) {
	a := NewAttributor(10, nil)
	text := "ISIN GB0002634946 and far away lies the value CHF 99'999.00"
	idx := strings.Index(text, "GB0002634946")
	match := document.IdentifierMatch{
		ISIN:       "GB0002634946",
		Valid:      true,
		Span:       [2]int{idx, idx + 12},
		Confidence: 1.0,
	}

	fs := a.Attribute(match, document.Page{Text: text}, nil)
	if fs.Value.Valid {
		t.Errorf("value = %+v, want none beyond the window", fs.Value)
	}
}
