package csvmerge

import (
	"fmt"
	"path/filepath"
	"strings"
)

var timeframeLabels = map[string]string{
	"15":  "15min",
	"60":  "1H",
	"240": "4H",
	"720": "12H",
	"1D":  "Daily",
}

// CanonicalLabel maps a raw timeframe token to the name used in output files.
// Unknown tokens render as "<token>min".
func CanonicalLabel(timeframe string) string {
	if label, ok := timeframeLabels[strings.ToUpper(timeframe)]; ok {
		return label
	}
	return timeframe + "min"
}

// PairLabel normalises a trading pair ("BTC/USDT") for use in file names.
func PairLabel(pair string) string {
	return strings.NewReplacer("/", "_", "-", "_", " ", "").Replace(strings.TrimSpace(pair))
}

// OutputPath is the deterministic location of a merged group.
func OutputPath(outputDir, pair, timeframe string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s_merged.csv", PairLabel(pair), CanonicalLabel(timeframe)))
}
