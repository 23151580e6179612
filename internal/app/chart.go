package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"trading-analyst/internal/market"
)

// Chart renders close price and volume from a candle CSV as a PNG, named so
// batch-analyze finds it.
func (a *App) Chart(_ context.Context, opts ChartOptions) (string, error) {
	if opts.Input == "" {
		return "", errors.New("input csv required")
	}
	series, err := market.LoadCSV(opts.Input)
	if err != nil {
		return "", err
	}
	series.Symbol = opts.Symbol
	series.Timeframe = opts.Timeframe

	candles := series.Candles
	if opts.Periods > 0 {
		candles = series.Tail(opts.Periods)
	}
	if len(candles) < 2 {
		return "", fmt.Errorf("need at least two candles to draw a chart, got %d", len(candles))
	}

	path := opts.Output
	if path == "" {
		if opts.Symbol == "" {
			return "", errors.New("--output or --symbol required")
		}
		path = filepath.Join(a.Config.Results.ChartsFolder, ChartFileName(opts.Symbol, a.Config.ResolveTimeframe(opts.Timeframe)))
	}

	if err := writeCandlesPNG(path, chartTitle(opts.Symbol, opts.Timeframe), candles); err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	fmt.Fprintf(a.out(), "Chart saved to: %s (%d candles)\n", path, len(candles))
	a.Logger.Info().Str("output", path).Int("candles", len(candles)).Msg("chart rendered")
	return path, nil
}

// ChartFileName is "{SYM}_{tf}.png" with "/" and "-" in the symbol replaced by "_".
func ChartFileName(symbol, timeframe string) string {
	sym := strings.NewReplacer("/", "_", "-", "_").Replace(symbol)
	return fmt.Sprintf("%s_%s.png", sym, timeframe)
}

func chartTitle(symbol, timeframe string) string {
	return strings.TrimSpace(symbol + " " + timeframe)
}

func writeCandlesPNG(path, title string, candles []market.Candle) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(candles))
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		x[i] = c.Time
		closes[i] = c.Close.InexactFloat64()
		volumes[i] = c.Volume.InexactFloat64()
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Close",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: closes,
			},
		},
	}
	// go-chart rejects a flat axis, so files without volume get price only.
	if varies(volumes) {
		graph.YAxisSecondary = chart.YAxis{
			Name: "Volume",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		}
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "Volume",
			XValues: x,
			YValues: volumes,
			YAxis:   chart.YAxisSecondary,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func varies(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return true
		}
	}
	return false
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
