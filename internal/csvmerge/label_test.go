package csvmerge

import (
	"path/filepath"
	"testing"
)

func TestCanonicalLabel(t *testing.T) {
	cases := map[string]string{
		"15":  "15min",
		"60":  "1H",
		"240": "4H",
		"720": "12H",
		"1D":  "Daily",
		"1d":  "Daily",
		"5":   "5min",
		"120": "120min",
	}
	for token, want := range cases {
		if got := CanonicalLabel(token); got != want {
			t.Errorf("CanonicalLabel(%q) = %q, want %q", token, got, want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	got := OutputPath("out", "BTC/USDT", "240")
	if want := filepath.Join("out", "BTC_USDT_4H_merged.csv"); got != want {
		t.Fatalf("OutputPath = %q, want %q", got, want)
	}
}
