package csvmerge

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTimestamp reports a time column that cannot be read as epoch seconds.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

const (
	timeLayout         = "2006-01-02 15:04:05"
	timeLayoutFraction = "2006-01-02 15:04:05.999999999"

	// maxEpochSeconds bounds epoch values to the nanosecond int64 range.
	maxEpochSeconds = math.MaxInt64 / int64(time.Second)
)

// ParseEpochSeconds converts a single cell holding Unix seconds into a UTC instant.
// Integer and fractional values are accepted.
func ParseEpochSeconds(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrMalformedTimestamp)
	}

	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs > maxEpochSeconds || secs < -maxEpochSeconds {
			return time.Time{}, fmt.Errorf("%w: %q out of range", ErrMalformedTimestamp, raw)
		}
		return time.Unix(secs, 0).UTC(), nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
	}
	if math.Abs(f) > float64(maxEpochSeconds) {
		return time.Time{}, fmt.Errorf("%w: %q out of range", ErrMalformedTimestamp, raw)
	}
	whole, frac := math.Modf(f)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), nil
}

// ParseEpochColumn parses every value of a column. The first bad value fails the
// whole column; row numbers in the error are 1-based data rows.
func ParseEpochColumn(values []string) ([]time.Time, error) {
	out := make([]time.Time, len(values))
	for i, raw := range values {
		ts, err := ParseEpochSeconds(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out[i] = ts
	}
	return out, nil
}

// FormatTimestamp renders an instant the way merged files store it.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond() == 0 {
		return t.Format(timeLayout)
	}
	return t.Format(timeLayoutFraction)
}

// ParseTimestamp reads a time cell written by FormatTimestamp, an RFC3339 value or
// epoch seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	for _, layout := range []string{timeLayoutFraction, timeLayout, time.RFC3339Nano} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return ParseEpochSeconds(v)
}
