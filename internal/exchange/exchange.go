package exchange

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trading-analyst/internal/market"
)

var (
	// ErrUnsupportedExchange is returned by New for unknown exchange names.
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	// ErrUnsupportedTimeframe is returned for intervals the exchange does not serve.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
)

// Fetcher retrieves historical candles from an exchange.
type Fetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error)
}

// Options configure an exchange client.
type Options struct {
	Name              string
	BaseURL           string
	APIKey            string
	SecretKey         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	PageLimit         int
}

// New returns the fetcher for opts.Name.
func New(opts Options, logger zerolog.Logger) (Fetcher, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Name)) {
	case "", "binance":
		return NewBinance(opts, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, opts.Name)
	}
}

// Source adapts a Fetcher to market.Source.
type Source struct {
	Fetcher   Fetcher
	Symbol    string
	Timeframe string
	Limit     int
}

var _ market.Source = (*Source)(nil)

// Load implements market.Source.
func (s *Source) Load(ctx context.Context) (*market.Series, error) {
	candles, err := s.Fetcher.FetchCandles(ctx, s.Symbol, s.Timeframe, s.Limit)
	if err != nil {
		return nil, err
	}
	return &market.Series{Symbol: s.Symbol, Timeframe: s.Timeframe, Candles: candles}, nil
}

// OutputPath is where fetched candles are saved by default.
func OutputPath(dir, symbol, timeframe string) string {
	name := strings.ReplaceAll(symbol, "/", "_")
	return filepath.Join(dir, fmt.Sprintf("%s_%s.csv", name, timeframe))
}
