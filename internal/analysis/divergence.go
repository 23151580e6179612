package analysis

import "strings"

const (
	AlignmentHigh = "high"
	AlignmentLow  = "low"
)

var (
	bullishTerms = []string{"bullish", "uptrend", "long", "buy", "support holding"}
	bearishTerms = []string{"bearish", "downtrend", "short", "sell", "resistance"}
)

const (
	divergenceNote = "DIVERGENCE DETECTED: Quantitative and visual analyses show conflicting signals. " +
		"This may indicate a market transition or setup requiring extra caution. " +
		"Consider waiting for alignment before taking positions."
	alignmentNote = "ALIGNMENT: Both quantitative and visual analyses support similar conclusions. " +
		"This increases confidence in the trade setup."
)

// DetectDivergence reports whether one text leans bullish while the other leans
// bearish. Matching is a case-insensitive substring search.
func DetectDivergence(quant, visual string) bool {
	q := strings.ToLower(quant)
	v := strings.ToLower(visual)
	qBull, qBear := mentions(q, bullishTerms), mentions(q, bearishTerms)
	vBull, vBear := mentions(v, bullishTerms), mentions(v, bearishTerms)
	return (qBull && vBear) || (qBear && vBull)
}

// Alignment maps a divergence flag to an alignment status.
func Alignment(divergence bool) string {
	if divergence {
		return AlignmentLow
	}
	return AlignmentHigh
}

// IntegrationNotes returns the fixed guidance for a divergence flag.
func IntegrationNotes(divergence bool) string {
	if divergence {
		return divergenceNote
	}
	return alignmentNote
}

func mentions(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
