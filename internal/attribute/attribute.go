// Package attribute turns identifier matches into field sets: for matches
// located in a table candidate it reads the surrounding row, for free-text
// matches it falls back to a proximity window after the identifier.
package attribute

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clearfolio/statement-parser/internal/document"
)

// FieldSet is one attribution of statement fields to an identifier match.
// Several field sets for the same ISIN compete in the merger.
type FieldSet struct {
	ISIN       string
	Name       string
	Quantity   decimal.NullDecimal
	Price      decimal.NullDecimal
	Value      decimal.NullDecimal
	Currency   string
	ClassLabel string // explicit classification column, when present
	Page       int
	FromTable  bool
	Strategy   string
	RowSupport int
	Confidence float64
	Rationale  string // set only on arbitration verdicts
}

// HasValue reports whether any monetary value was attributed.
func (f FieldSet) HasValue() bool { return f.Value.Valid }

// header keyword matching is case-insensitive and substring based; statement
// vocabularies vary per custodian and language.
var headerFields = map[string][]string{
	"quantity": {"quantity", "nominal", "qty", "anzahl", "quantite", "quantité", "units", "stück"},
	"price":    {"price", "prix", "kurs", "cours", "rate"},
	"value":    {"value", "valuation", "valeur", "montant", "betrag", "market value", "amount"},
	"currency": {"currency", "ccy", "devise", "währung", "waehrung"},
	"name":     {"name", "description", "designation", "bezeichnung", "security", "instrument"},
	"class":    {"asset class", "class", "type", "categorie", "catégorie", "kategorie"},
}

// freeTextDiscount reflects that a proximity-window attribution carries less
// structural evidence than a table row.
const freeTextDiscount = 0.6

type Attributor struct {
	window int // character window after a free-text identifier
	logger *slog.Logger
}

func NewAttributor(window int, logger *slog.Logger) *Attributor {
	if window <= 0 {
		window = 160
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Attributor{window: window, logger: logger}
}

// Attribute builds a field set for one validated match. Matches with no
// attributable fields still return a FieldSet with null values; the merger
// raises the missing-value issue once per record.
func (a *Attributor) Attribute(match document.IdentifierMatch, page document.Page, candidates []document.TableCandidate) FieldSet {
	if match.Cell != nil && match.Cell.Candidate < len(candidates) {
		return a.fromRow(match, candidates[match.Cell.Candidate])
	}
	return a.fromText(match, page)
}

// fromRow reads the cells of the identifier's row, preferring header-driven
// assignment, then positional heuristics.
func (a *Attributor) fromRow(match document.IdentifierMatch, cand document.TableCandidate) FieldSet {
	fs := FieldSet{
		ISIN:       match.ISIN,
		Page:       match.Page,
		FromTable:  true,
		Strategy:   cand.Strategy,
		RowSupport: cand.Rows(),
		Confidence: combine(match.Confidence, cand.Confidence),
	}
	row := cand.Cells[match.Cell.Row]

	if len(cand.Header) == len(row) && len(cand.Header) > 0 {
		a.byHeader(&fs, cand.Header, row)
	}
	a.byPosition(&fs, row, match.Cell.Col)
	return fs
}

func (a *Attributor) byHeader(fs *FieldSet, header, row []string) {
	for col, h := range header {
		field := matchHeader(h)
		if field == "" || row[col] == "" {
			continue
		}
		cell := strings.TrimSpace(row[col])
		switch field {
		case "quantity":
			if d, ok := ParseAmount(cell); ok {
				fs.Quantity = decimal.NullDecimal{Decimal: d, Valid: true}
			}
		case "price":
			if d, ok := ParseAmount(cell); ok {
				fs.Price = decimal.NullDecimal{Decimal: d, Valid: true}
			}
		case "value":
			if d, ok := ParseAmount(cell); ok {
				fs.Value = decimal.NullDecimal{Decimal: d, Valid: true}
			}
		case "currency":
			if IsCurrencyCode(cell) {
				fs.Currency = cell
			}
		case "name":
			fs.Name = cell
		case "class":
			fs.ClassLabel = cell
		}
	}
}

func matchHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if h == "" {
		return ""
	}
	for field, keywords := range headerFields {
		for _, kw := range keywords {
			if strings.Contains(h, kw) {
				return field
			}
		}
	}
	return ""
}

// byPosition fills remaining fields from cell order: amounts right of the
// identifier read as quantity, price, value (rightmost amount wins the value
// slot), the first known currency code anywhere in the row becomes the
// currency, and the longest non-numeric cell the name.
func (a *Attributor) byPosition(fs *FieldSet, row []string, idCol int) {
	var amounts []decimal.Decimal
	for col := idCol + 1; col < len(row); col++ {
		cell := strings.TrimSpace(row[col])
		if cell == "" {
			continue
		}
		if d, ok := ParseAmount(cell); ok {
			amounts = append(amounts, d)
		}
	}

	if fs.Currency == "" {
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			if IsCurrencyCode(cell) {
				fs.Currency = cell
				break
			}
		}
	}

	if !fs.Value.Valid && len(amounts) > 0 {
		fs.Value = decimal.NullDecimal{Decimal: amounts[len(amounts)-1], Valid: true}
	}
	if !fs.Quantity.Valid && len(amounts) >= 2 {
		fs.Quantity = decimal.NullDecimal{Decimal: amounts[0], Valid: true}
	}
	if !fs.Price.Valid && len(amounts) >= 3 {
		fs.Price = decimal.NullDecimal{Decimal: amounts[1], Valid: true}
	}

	if fs.Name == "" {
		best := ""
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" || cell == fs.ISIN || IsCurrencyCode(cell) {
				continue
			}
			if _, numeric := ParseAmount(cell); numeric {
				continue
			}
			if len(cell) > len(best) {
				best = cell
			}
		}
		fs.Name = best
	}
}

// fromText parses the fixed character window following a free-text match:
// the first amount is the candidate value, a currency code nearby wins the
// currency slot. Confidence is discounted against table-derived attribution.
func (a *Attributor) fromText(match document.IdentifierMatch, page document.Page) FieldSet {
	fs := FieldSet{
		ISIN:       match.ISIN,
		Page:       match.Page,
		Confidence: match.Confidence * freeTextDiscount,
	}

	end := match.Span[1]
	if end <= 0 || end > len(page.Text) {
		return fs
	}
	stop := end + a.window
	if stop > len(page.Text) {
		stop = len(page.Text)
	}
	window := page.Text[end:stop]

	for _, tok := range strings.Fields(window) {
		tok = strings.Trim(tok, ".,;:()")
		if fs.Currency == "" && IsCurrencyCode(tok) {
			fs.Currency = tok
			continue
		}
		if !fs.Value.Valid {
			if d, ok := ParseAmount(tok); ok {
				fs.Value = decimal.NullDecimal{Decimal: d, Valid: true}
			}
		}
	}
	return fs
}

// combine composes stage confidences conservatively: a field set is only as
// trustworthy as its weakest contributing stage.
func combine(confs ...float64) float64 {
	min := 1.0
	for _, c := range confs {
		if c < min {
			min = c
		}
	}
	if min < 0 {
		min = 0
	}
	return min
}
