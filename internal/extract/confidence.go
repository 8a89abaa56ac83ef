package extract

import (
	"regexp"
	"strings"
)

var (
	reIdent  = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{9}[0-9]\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|chf|cad|aud|jpy|sek|nok)\b|[$£€]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}([,.']\d{3})*([.,]\d{2})\b|\b\d+[.,]\d{2}\b`)
)

// heuristicConfidence scores extracted text on statement-like artifacts:
// identifier-shaped strings, currency markers and monetary amounts each add
// to a small base score.
func heuristicConfidence(txt string) float64 {
	txtL := strings.ToLower(txt)
	score := 0.2 // base
	if reIdent.MatchString(txt) {
		score += 0.25
	}
	if reCurr.MatchString(txtL) {
		score += 0.15
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 200 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
