// Package classify assigns asset classes from a closed taxonomy and builds
// the portfolio-level aggregates: per-class values, allocation weights and
// the reconciliation check against a stated total.
package classify

import (
	"strings"

	"github.com/clearfolio/statement-parser/constants"
)

// keyword rules run against the security name/description. First hit wins;
// order puts the most specific classes first so "bond fund" reads as a fund.
var classRules = []struct {
	class    constants.AssetClass
	keywords []string
}{
	{constants.Funds, []string{"fund", "etf", "sicav", "fcp", "ucits", "fonds", "trust"}},
	{constants.StructuredProducts, []string{"structured", "certificate", "barrier", "autocall", "reverse convertible", "warrant", "note"}},
	{constants.Bonds, []string{"bond", "obligation", "anleihe", "treasury", "gilt", "notes due", "%"}},
	{constants.Liquidity, []string{"cash", "liquidity", "deposit", "money market", "compte", "konto"}},
	{constants.Equities, []string{"share", "stock", "equity", "aktie", "action", "reg", "ord", "adr", "inc", "ltd", "sa", "ag", "plc", "corp", "holding"}},
}

// Classify picks an asset class for a security. An explicit classification
// label from the source table takes precedence over name keywords; the
// fallback is Other.
func Classify(name, classLabel string) constants.AssetClass {
	if classLabel != "" {
		if ac, ok := constants.CanonicalizeAssetClass(classLabel); ok {
			return ac
		}
	}
	return classifyByName(name)
}

func classifyByName(name string) constants.AssetClass {
	lowered := strings.ToLower(name)
	if lowered == "" {
		return constants.OtherAssets
	}
	for _, rule := range classRules {
		for _, kw := range rule.keywords {
			if containsWord(lowered, kw) {
				return rule.class
			}
		}
	}
	return constants.OtherAssets
}

// containsWord matches keywords on word boundaries so "sa" does not fire
// inside "usa". Multi-word keywords fall back to substring matching.
func containsWord(s, kw string) bool {
	if strings.ContainsRune(kw, ' ') || strings.ContainsRune(kw, '%') {
		return strings.Contains(s, kw)
	}
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '(' || r == ')' || r == '/'
	}) {
		if field == kw {
			return true
		}
	}
	return false
}
