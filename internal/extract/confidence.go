package extract

import (
	"regexp"
	"strings"
)

var (
	reDateish = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)
	reCurrish = regexp.MustCompile(`\b(usd|eur|gbp|inr|cad|aud|jpy|ngn)\b|[$£€₹]`)
	reAmtish  = regexp.MustCompile(`\b\d{1,3}(,\d{3})*(\.\d{2})\b|\b\d+\.\d{2}\b`)
)

// heuristicConfidence scores decoded text by statement-shaped content.
// Used when the OCR engine gives no usable per-word confidence.
func heuristicConfidence(txt string) float64 {
	txtL := strings.ToLower(txt)
	score := 0.2 // base
	if reDateish.MatchString(txtL) {
		score += 0.2
	}
	if reCurrish.MatchString(txtL) {
		score += 0.15
	}
	if reAmtish.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}
