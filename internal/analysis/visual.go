package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ErrChartNotFound is returned when the chart image does not exist.
var ErrChartNotFound = errors.New("chart image not found")

// VisualResult is the outcome of the chart-reading step.
type VisualResult struct {
	Symbol          string
	Timeframe       string
	ChartPath       string
	HasQuantContext bool
	Analysis        string
}

// VisualAnalyzer prompts the vision model with a chart image.
type VisualAnalyzer struct {
	gen    Generator
	model  ModelConfig
	logger zerolog.Logger
}

// NewVisualAnalyzer constructs a VisualAnalyzer.
func NewVisualAnalyzer(gen Generator, model ModelConfig, logger zerolog.Logger) *VisualAnalyzer {
	return &VisualAnalyzer{
		gen:    gen,
		model:  model,
		logger: logger.With().Str("component", "visual_analyzer").Str("model", model.Name).Logger(),
	}
}

// Model returns the configured model name.
func (a *VisualAnalyzer) Model() string { return a.model.Name }

// Analyze reads the chart and asks the vision model for a trade setup. A
// non-empty quantContext is embedded in the prompt.
func (a *VisualAnalyzer) Analyze(ctx context.Context, chartPath, symbol, timeframe, quantContext string) (*VisualResult, error) {
	image, err := os.ReadFile(chartPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrChartNotFound, chartPath)
		}
		return nil, fmt.Errorf("read chart: %w", err)
	}
	a.logger.Info().Str("symbol", symbol).Str("timeframe", timeframe).Str("chart", chartPath).Msg("starting visual analysis")

	prompt := BuildVisualPrompt(symbol, timeframe, quantContext)
	text, err := a.gen.Generate(ctx, a.model.Name, prompt, a.model.Options, [][]byte{image})
	if err != nil {
		return nil, fmt.Errorf("visual analysis: %w", err)
	}
	return &VisualResult{
		Symbol:          symbol,
		Timeframe:       timeframe,
		ChartPath:       chartPath,
		HasQuantContext: quantContext != "",
		Analysis:        text,
	}, nil
}

// BuildVisualPrompt renders the chart-analysis prompt.
func BuildVisualPrompt(symbol, timeframe, quantContext string) string {
	withContext := strings.TrimSpace(quantContext) != ""

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s TRADING CHART ANALYSIS\n\n", symbol, timeframe)
	if withContext {
		fmt.Fprintf(&b, "QUANTITATIVE DATA CONTEXT:\n%s\n\n", quantContext)
	}
	b.WriteString(visualInstructions)
	if withContext {
		b.WriteString(`
   - Does visual analysis align with quantitative data?
   - Any divergences between chart and numerical analysis?
   - Which signals are confirmed by both models?
   - Conflicting signals to be aware of?
`)
	}
	b.WriteString(visualClosing)
	if withContext {
		b.WriteString("Explicitly state when visual and quantitative analyses agree or disagree.")
	}
	return b.String()
}

const visualInstructions = `Analyze the attached chart image and provide a comprehensive trading setup.

ANALYSIS REQUIRED:

1. TREND ANALYSIS
   - Overall trend direction (uptrend, downtrend, sideways)
   - Trend strength (strong, moderate, weak)
   - Market structure (higher highs/lows, lower highs/lows)

2. KEY LEVELS
   - Support levels with specific prices
   - Resistance levels with specific prices
   - Critical zones to watch

3. CHART PATTERNS
   - Identify any patterns forming (triangles, H&S, flags, etc.)
   - Pattern completion status
   - Breakout or breakdown potential

4. TECHNICAL INDICATORS (visible on chart)
   - RSI reading and interpretation
   - MACD signal (bullish/bearish, crossovers)
   - Moving averages position and crossovers
   - Volume analysis and confirmation

5. TRADE SETUP
   - Direction: LONG, SHORT, or NEUTRAL
   - Entry price (specific level)
   - Stop loss (specific price and % from entry)
   - Take profit 1 (conservative target)
   - Take profit 2 (extended target)
   - Risk-reward ratio for both TPs

6. INTEGRATED ASSESSMENT`

const visualClosing = `
7. CONFIDENCE & RISK
   - Confidence level (1-10) based on setup quality
   - Key risks or invalidation points
   - Market conditions affecting the setup

OUTPUT:
Provide specific prices, percentages, and actionable trade signals.
Be precise with entry, stop, and target levels.
`
