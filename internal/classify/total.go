package classify

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clearfolio/statement-parser/internal/attribute"
	"github.com/clearfolio/statement-parser/internal/document"
)

// total-row labels across the custodian languages we see in practice.
var totalLabels = []string{"total", "totale", "gesamt", "somme", "grand total", "total assets", "portfolio value"}

var reTotalAmount = regexp.MustCompile(`-?\d[\d.,' ]*\d|\d`)

// DetectStatedTotal scans pages for a stated portfolio total: a line whose
// label matches a total keyword, taking the last (largest-scope) occurrence.
// Statements usually print subtotals first and the grand total last.
func DetectStatedTotal(pages []document.Page) decimal.NullDecimal {
	var stated decimal.NullDecimal
	for _, page := range pages {
		if !page.Usable() {
			continue
		}
		for _, line := range strings.Split(page.Text, "\n") {
			lowered := strings.ToLower(line)
			if !hasTotalLabel(lowered) {
				continue
			}
			// Rightmost amount on the line is the total column.
			amounts := reTotalAmount.FindAllString(line, -1)
			for i := len(amounts) - 1; i >= 0; i-- {
				if d, ok := attribute.ParseAmount(strings.TrimSpace(amounts[i])); ok {
					stated = decimal.NullDecimal{Decimal: d, Valid: true}
					break
				}
			}
		}
	}
	return stated
}

func hasTotalLabel(line string) bool {
	for _, label := range totalLabels {
		if strings.Contains(line, label) {
			return true
		}
	}
	return false
}
