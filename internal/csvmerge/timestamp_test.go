package csvmerge

import (
	"errors"
	"testing"
	"time"
)

func TestParseEpochSeconds(t *testing.T) {
	ts, err := ParseEpochSeconds("1700000000")
	if err != nil {
		t.Fatalf("integer epoch: %v", err)
	}
	if !ts.Equal(time.Unix(1700000000, 0)) || ts.Location() != time.UTC {
		t.Fatalf("unexpected instant %s", ts)
	}

	frac, err := ParseEpochSeconds(" 1700000000.5 ")
	if err != nil {
		t.Fatalf("fractional epoch: %v", err)
	}
	if frac.Nanosecond() != 500000000 {
		t.Fatalf("fraction lost: %s", frac)
	}

	for _, bad := range []string{"", "abc", "NaN", "inf", "1e30", "-1e30", "99999999999999999", "-9223372037"} {
		if _, err := ParseEpochSeconds(bad); !errors.Is(err, ErrMalformedTimestamp) {
			t.Errorf("ParseEpochSeconds(%q) should fail with ErrMalformedTimestamp, got %v", bad, err)
		}
	}
}

func TestParseEpochSecondsRangeEdges(t *testing.T) {
	ts, err := ParseEpochSeconds("9223372036")
	if err != nil {
		t.Fatalf("largest accepted epoch: %v", err)
	}
	if ts.Unix() != 9223372036 {
		t.Fatalf("unexpected instant %s", ts)
	}
	if _, err := ParseEpochSeconds("-9223372035.5"); err != nil {
		t.Fatalf("negative fractional epoch inside range: %v", err)
	}
}

func TestParseEpochColumnReportsRow(t *testing.T) {
	_, err := ParseEpochColumn([]string{"1", "2", "x"})
	if !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
	if got := err.Error(); got[:5] != "row 3" {
		t.Fatalf("error should name row 3: %s", got)
	}
}

func TestFormatAndParseTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if got := FormatTimestamp(ts); got != "2024-03-01 12:30:00" {
		t.Fatalf("FormatTimestamp = %q", got)
	}
	frac := ts.Add(250 * time.Millisecond)
	if got := FormatTimestamp(frac); got != "2024-03-01 12:30:00.25" {
		t.Fatalf("FormatTimestamp with fraction = %q", got)
	}

	for _, raw := range []string{"2024-03-01 12:30:00", "2024-03-01T12:30:00Z", "1709296200"} {
		got, err := ParseTimestamp(raw)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", raw, err)
		}
		if !got.Equal(ts) {
			t.Fatalf("ParseTimestamp(%q) = %s, want %s", raw, got, ts)
		}
	}
}
