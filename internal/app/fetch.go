package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"trading-analyst/internal/csvmerge"
	"trading-analyst/internal/exchange"
	"trading-analyst/internal/market"
)

// Fetch downloads candles and saves them as an epoch-seconds CSV.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) (string, error) {
	if opts.Symbol == "" {
		return "", errors.New("symbol required")
	}
	opts.Timeframe = a.Config.ResolveTimeframe(opts.Timeframe)
	opts.Limit = a.Config.ResolvePeriods(opts.Limit)

	fetcher, err := a.newFetcher(opts.Exchange)
	if err != nil {
		return "", err
	}

	out := a.out()
	name := opts.Exchange
	if name == "" {
		name = a.Config.Exchange.Name
	}
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(out, "\n%s\nFetching Data: %s\n%s\n", rule, opts.Symbol, rule)
	fmt.Fprintf(out, "Exchange:  %s\nTimeframe: %s\nPeriods:   %d\n%s\n\n", name, opts.Timeframe, opts.Limit, rule)

	candles, err := fetcher.FetchCandles(ctx, opts.Symbol, opts.Timeframe, opts.Limit)
	if err != nil {
		return "", fmt.Errorf("fetch %s %s: %w", opts.Symbol, opts.Timeframe, err)
	}
	if len(candles) == 0 {
		return "", fmt.Errorf("no candles returned for %s %s", opts.Symbol, opts.Timeframe)
	}

	first, last := candles[0], candles[len(candles)-1]
	closePrice, _ := last.Close.Float64()
	volume, _ := last.Volume.Float64()
	fmt.Fprintf(out, "Fetched %d candles\n", len(candles))
	fmt.Fprintf(out, "Data range: %s to %s\n", csvmerge.FormatTimestamp(first.Time), csvmerge.FormatTimestamp(last.Time))
	fmt.Fprintf(out, "Latest close: $%s\n", humanize.FormatFloat("#,###.##", closePrice))
	fmt.Fprintf(out, "Latest volume: %s\n", humanize.FormatFloat("#,###.", volume))

	path := opts.Output
	if path == "" {
		path = exchange.OutputPath(a.Config.Exchange.DataFolder, opts.Symbol, opts.Timeframe)
	}
	if err := market.SaveCSV(path, candles); err != nil {
		return "", err
	}
	fmt.Fprintf(out, "\nSaved to: %s\n", path)

	a.Logger.Info().Str("symbol", opts.Symbol).Str("timeframe", opts.Timeframe).Int("candles", len(candles)).Str("output", path).Msg("candles saved")
	return path, nil
}
