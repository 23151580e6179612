package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-analyst/internal/market"
	"trading-analyst/internal/ollama"
)

// DefaultPromptPeriods bounds how many candles are inlined into the quantitative prompt.
const DefaultPromptPeriods = 50

// ErrNoData is returned when an analysis is asked to run on an empty series.
var ErrNoData = errors.New("no candle data")

// Generator produces a model completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts ollama.ModelOptions, images [][]byte) (string, error)
}

var _ Generator = (*ollama.Client)(nil)

// ModelConfig names a model and its sampling parameters.
type ModelConfig struct {
	Name    string
	Options ollama.ModelOptions
}

// QuantResult is the outcome of the data-driven step.
type QuantResult struct {
	Symbol          string
	Timeframe       string
	PeriodsAnalyzed int
	LatestPrice     decimal.Decimal
	LatestVolume    decimal.Decimal
	Analysis        string
}

// QuantAnalyzer prompts the text model with recent OHLCV values.
type QuantAnalyzer struct {
	gen           Generator
	model         ModelConfig
	promptPeriods int
	logger        zerolog.Logger
}

// NewQuantAnalyzer constructs a QuantAnalyzer.
func NewQuantAnalyzer(gen Generator, model ModelConfig, promptPeriods int, logger zerolog.Logger) *QuantAnalyzer {
	if promptPeriods <= 0 {
		promptPeriods = DefaultPromptPeriods
	}
	return &QuantAnalyzer{
		gen:           gen,
		model:         model,
		promptPeriods: promptPeriods,
		logger:        logger.With().Str("component", "quant_analyzer").Str("model", model.Name).Logger(),
	}
}

// Model returns the configured model name.
func (a *QuantAnalyzer) Model() string { return a.model.Name }

// Analyze runs the quantitative step over the last periods candles.
func (a *QuantAnalyzer) Analyze(ctx context.Context, series *market.Series, periods int) (*QuantResult, error) {
	recent := series.Tail(periods)
	if len(recent) == 0 {
		return nil, ErrNoData
	}
	a.logger.Info().Str("symbol", series.Symbol).Str("timeframe", series.Timeframe).Int("periods", len(recent)).Msg("starting quantitative analysis")

	prompt := BuildQuantPrompt(series.Symbol, series.Timeframe, recent, a.promptPeriods)
	text, err := a.gen.Generate(ctx, a.model.Name, prompt, a.model.Options, nil)
	if err != nil {
		return nil, fmt.Errorf("quantitative analysis: %w", err)
	}

	last := recent[len(recent)-1]
	return &QuantResult{
		Symbol:          series.Symbol,
		Timeframe:       series.Timeframe,
		PeriodsAnalyzed: len(recent),
		LatestPrice:     last.Close,
		LatestVolume:    last.Volume,
		Analysis:        text,
	}, nil
}

// BuildQuantPrompt renders the quantitative prompt with the last n candles inlined.
func BuildQuantPrompt(symbol, timeframe string, candles []market.Candle, n int) string {
	if n <= 0 || n > len(candles) {
		n = len(candles)
	}
	window := candles[len(candles)-n:]
	last := candles[len(candles)-1]

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze %s %s OHLCV data for quantitative trading insights.\n\n", symbol, timeframe)
	fmt.Fprintf(&b, "RECENT DATA (Last %d periods):\n", n)
	fmt.Fprintf(&b, "Closing Prices: %s\n", joinDecimals(market.Closes(window)))
	fmt.Fprintf(&b, "High Prices: %s\n", joinDecimals(market.Highs(window)))
	fmt.Fprintf(&b, "Low Prices: %s\n", joinDecimals(market.Lows(window)))
	fmt.Fprintf(&b, "Volume: %s\n\n", joinDecimals(market.Volumes(window)))
	fmt.Fprintf(&b, "Current Price: %s\n", last.Close)
	fmt.Fprintf(&b, "Current Volume: %s\n", last.Volume)
	b.WriteString(quantInstructions)
	return b.String()
}

func joinDecimals(values []decimal.Decimal) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

const quantInstructions = `
ANALYSIS REQUIRED:

1. MOMENTUM ANALYSIS
   - Calculate 5-period, 10-period, and 20-period momentum (% change)
   - Identify acceleration or deceleration patterns
   - Rate of change trends

2. VOLATILITY METRICS
   - Estimate ATR (Average True Range)
   - Calculate volatility percentile (current vs recent history)
   - Identify volatility expansion/contraction

3. VOLUME ANALYSIS
   - Compare current volume to 20-period moving average (%)
   - Identify volume trend (increasing/decreasing)
   - Detect volume spikes or anomalies

4. KEY PRICE LEVELS
   - Recent swing highs and lows with specific prices
   - Support and resistance zones from price clusters
   - Pivot points if calculable

5. MOVING AVERAGES
   - Calculate 20, 50, 200-period MAs (or estimate from data)
   - Current price position relative to MAs
   - MA crossovers or convergence

6. STATISTICAL PATTERNS
   - RSI estimation (if sufficient data)
   - MACD signal (if calculable)
   - Price structure: higher highs/lows, lower highs/lows
   - Any statistical anomalies or outliers

OUTPUT FORMAT:
Provide precise numerical results with specific price levels and percentages.
Focus on what the numbers indicate, not visual patterns.
Be concise but thorough with exact values.
`
