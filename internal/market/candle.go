package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-analyst/internal/csvmerge"
)

// ErrMissingColumn reports a candle file without one of the price columns.
var ErrMissingColumn = errors.New("missing price column")

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Series is an ascending run of candles for one symbol and timeframe.
type Series struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
}

// Source yields a candle series.
type Source interface {
	Load(ctx context.Context) (*Series, error)
}

// CSVSource loads candles from a file on disk.
type CSVSource struct {
	Path      string
	Symbol    string
	Timeframe string
}

var _ Source = (*CSVSource)(nil)

// Load implements Source.
func (s *CSVSource) Load(_ context.Context) (*Series, error) {
	series, err := LoadCSV(s.Path)
	if err != nil {
		return nil, err
	}
	series.Symbol = s.Symbol
	series.Timeframe = s.Timeframe
	return series, nil
}

// LoadCSV reads a candle file. Headers are matched case-insensitively; time cells
// may be epoch seconds, "YYYY-MM-DD HH:MM:SS" or RFC3339. Volume is optional.
func LoadCSV(path string) (*Series, error) {
	outcome := csvmerge.LoadFile(path)
	if !outcome.Loaded() {
		return nil, outcome.Err
	}
	table := outcome.Table

	idx := make(map[string]int, len(table.Schema.Columns))
	for i, col := range table.Schema.Columns {
		key := strings.ToLower(strings.TrimSpace(col))
		if _, ok := idx[key]; !ok {
			idx[key] = i
		}
	}

	timeIdx := -1
	for _, alias := range []string{"time", "timestamp", "date", "datetime"} {
		if i, ok := idx[alias]; ok {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("%s: %w", path, csvmerge.ErrMissingTimeColumn)
	}
	for _, col := range []string{"open", "high", "low", "close"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%s: %w %q", path, ErrMissingColumn, col)
		}
	}
	volIdx, hasVolume := idx["volume"]

	candles := make([]Candle, 0, len(table.Rows))
	for n, row := range table.Rows {
		ts, err := csvmerge.ParseTimestamp(row[timeIdx])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, n+1, err)
		}
		c := Candle{Time: ts}
		fields := []struct {
			dst *decimal.Decimal
			col string
		}{
			{&c.Open, "open"}, {&c.High, "high"}, {&c.Low, "low"}, {&c.Close, "close"},
		}
		for _, f := range fields {
			v, err := parseDecimal(row[idx[f.col]])
			if err != nil {
				return nil, fmt.Errorf("%s row %d %s: %w", path, n+1, f.col, err)
			}
			*f.dst = v
		}
		if hasVolume {
			if v, err := parseDecimal(row[volIdx]); err == nil {
				c.Volume = v
			}
		}
		candles = append(candles, c)
	}

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return &Series{Candles: candles}, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return decimal.Zero, errors.New("empty value")
	}
	return decimal.NewFromString(v)
}

// Len returns the number of candles.
func (s *Series) Len() int { return len(s.Candles) }

// Tail returns the last n candles, or all of them when n <= 0 or exceeds the length.
func (s *Series) Tail(n int) []Candle {
	if n <= 0 || n >= len(s.Candles) {
		return s.Candles
	}
	return s.Candles[len(s.Candles)-n:]
}

// Last returns the most recent candle.
func (s *Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// WriteCSV writes candles with an epoch-seconds time column, the layout
// TradingView exports use, so the output can be merged or analysed later.
func WriteCSV(w io.Writer, candles []Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		record := []string{
			fmt.Sprintf("%d", c.Time.Unix()),
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveCSV writes candles to path, creating parent directories.
func SaveCSV(path string, candles []Candle) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(file, candles); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
