package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-analyst/internal/market"
)

// Metadata identifies an analysis run.
type Metadata struct {
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Timestamp  time.Time `json:"timestamp"`
	DataSource string    `json:"data_source"`
	ChartImage string    `json:"chart_image"`
}

// DataSummary describes the candles that fed the run.
type DataSummary struct {
	Candles   int             `json:"candles"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	First     decimal.Decimal `json:"first_close"`
	Last      decimal.Decimal `json:"last_close"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	ChangePct decimal.Decimal `json:"change_pct"`
	AvgVolume decimal.Decimal `json:"avg_volume"`
}

// QuantSection is the serialised quantitative step.
type QuantSection struct {
	Model           string          `json:"model"`
	PeriodsAnalyzed int             `json:"periods_analyzed"`
	LatestPrice     decimal.Decimal `json:"latest_price"`
	LatestVolume    decimal.Decimal `json:"latest_volume"`
	Analysis        string          `json:"analysis"`
}

// VisualSection is the serialised visual step.
type VisualSection struct {
	Model     string `json:"model"`
	ChartPath string `json:"chart_path"`
	Analysis  string `json:"analysis"`
}

// Integration holds the combined verdict.
type Integration struct {
	DivergenceDetected bool   `json:"divergence_detected"`
	AlignmentStatus    string `json:"alignment_status"`
	Notes              string `json:"notes"`
}

// Result is the full output of one pipeline run.
type Result struct {
	ID           uuid.UUID     `json:"id"`
	Metadata     Metadata      `json:"metadata"`
	DataSummary  DataSummary   `json:"data_summary"`
	Quantitative QuantSection  `json:"quantitative_analysis"`
	Visual       VisualSection `json:"visual_analysis"`
	Integration  Integration   `json:"integration"`
	OutputFile   string        `json:"output_file,omitempty"`
}

// Recorder persists finished runs.
type Recorder interface {
	RecordAnalysis(ctx context.Context, res *Result) error
}

// Notifier announces finished runs.
type Notifier interface {
	NotifyAnalysis(ctx context.Context, res *Result) error
}

// Request describes one pipeline run.
type Request struct {
	Symbol     string
	Timeframe  string
	ChartPath  string
	Source     market.Source
	DataSource string
	Periods    int
	Save       bool
}

// Pipeline chains the quantitative and visual steps.
type Pipeline struct {
	quant      *QuantAnalyzer
	visual     *VisualAnalyzer
	jsonFolder string
	recorder   Recorder
	notifier   Notifier
	now        func() time.Time
	logger     zerolog.Logger
}

// NewPipeline constructs a Pipeline writing results under jsonFolder.
func NewPipeline(quant *QuantAnalyzer, visual *VisualAnalyzer, jsonFolder string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		quant:      quant,
		visual:     visual,
		jsonFolder: jsonFolder,
		now:        time.Now,
		logger:     logger.With().Str("component", "analysis_pipeline").Logger(),
	}
}

// WithRecorder enables persistence of results.
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// WithNotifier enables notifications for results.
func (p *Pipeline) WithNotifier(n Notifier) *Pipeline {
	p.notifier = n
	return p
}

// Run executes load, quantitative, visual and integration steps in order.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Source == nil {
		return nil, errors.New("data source required")
	}
	if _, err := os.Stat(req.ChartPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrChartNotFound, req.ChartPath)
		}
		return nil, fmt.Errorf("stat chart: %w", err)
	}

	id := uuid.New()
	logger := p.logger.With().Str("run_id", id.String()).Str("symbol", req.Symbol).Str("timeframe", req.Timeframe).Logger()

	logger.Info().Msg("step 1: loading candles")
	series, err := req.Source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	series.Symbol = req.Symbol
	series.Timeframe = req.Timeframe
	if req.Periods > 0 {
		series.Candles = series.Tail(req.Periods)
	}
	if series.Len() == 0 {
		return nil, ErrNoData
	}
	logger.Info().Int("candles", series.Len()).Msg("candles loaded")

	logger.Info().Msg("step 2: quantitative analysis")
	quant, err := p.quant.Analyze(ctx, series, series.Len())
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("step 3: visual analysis")
	visual, err := p.visual.Analyze(ctx, req.ChartPath, req.Symbol, req.Timeframe, quant.Analysis)
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("step 4: integrating results")
	res := p.integrate(id, req, series, quant, visual)

	if req.Save {
		path, err := SaveResult(p.jsonFolder, res, p.now())
		if err != nil {
			return nil, err
		}
		res.OutputFile = path
		logger.Info().Str("output", path).Msg("results saved")
	}

	if p.recorder != nil {
		if err := p.recorder.RecordAnalysis(ctx, res); err != nil {
			logger.Warn().Err(err).Msg("failed to record analysis")
		}
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyAnalysis(ctx, res); err != nil {
			logger.Warn().Err(err).Msg("failed to send notification")
		}
	}

	logger.Info().Str("alignment", res.Integration.AlignmentStatus).Msg("analysis complete")
	return res, nil
}

func (p *Pipeline) integrate(id uuid.UUID, req Request, series *market.Series, quant *QuantResult, visual *VisualResult) *Result {
	divergence := DetectDivergence(quant.Analysis, visual.Analysis)
	summary := series.Summary()
	source := req.DataSource
	if source == "" {
		source = "integrated"
	}
	return &Result{
		ID: id,
		Metadata: Metadata{
			Symbol:     quant.Symbol,
			Timeframe:  quant.Timeframe,
			Timestamp:  p.now(),
			DataSource: source,
			ChartImage: visual.ChartPath,
		},
		DataSummary: DataSummary{
			Candles:   summary.Count,
			Start:     summary.Start,
			End:       summary.End,
			First:     summary.First,
			Last:      summary.Last,
			High:      summary.High,
			Low:       summary.Low,
			ChangePct: summary.ChangePct.Round(4),
			AvgVolume: summary.AvgVolume.Round(4),
		},
		Quantitative: QuantSection{
			Model:           p.quant.Model(),
			PeriodsAnalyzed: quant.PeriodsAnalyzed,
			LatestPrice:     quant.LatestPrice,
			LatestVolume:    quant.LatestVolume,
			Analysis:        quant.Analysis,
		},
		Visual: VisualSection{
			Model:     p.visual.Model(),
			ChartPath: visual.ChartPath,
			Analysis:  visual.Analysis,
		},
		Integration: Integration{
			DivergenceDetected: divergence,
			AlignmentStatus:    Alignment(divergence),
			Notes:              IntegrationNotes(divergence),
		},
	}
}

// ResultFileName is "{SYMBOL}_{tf}_{YYYYMMDD_HHMMSS}.json" with "/" in the symbol
// replaced by "_".
func ResultFileName(symbol, timeframe string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json", strings.ReplaceAll(symbol, "/", "_"), timeframe, at.Format("20060102_150405"))
}

// SaveResult writes res as indented JSON under dir.
func SaveResult(dir string, res *Result, at time.Time) (string, error) {
	path := filepath.Join(dir, ResultFileName(res.Metadata.Symbol, res.Metadata.Timeframe, at))
	if err := writeJSON(path, res); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteReport renders a human-readable report.
func (r *Result) WriteReport(w io.Writer) {
	rule := strings.Repeat("=", 70)
	section := func(title string) {
		fmt.Fprintf(w, "\n%s\n%s\n%s\n\n", rule, title, rule)
	}

	fmt.Fprintf(w, "\n%s\nTRADING ANALYSIS REPORT\n%s\n\n", rule, rule)
	fmt.Fprintf(w, "Run ID: %s\n", r.ID)
	fmt.Fprintf(w, "Symbol: %s\n", r.Metadata.Symbol)
	fmt.Fprintf(w, "Timeframe: %s\n", r.Metadata.Timeframe)
	fmt.Fprintf(w, "Analysis Date: %s\n", r.Metadata.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Chart Image: %s\n", r.Metadata.ChartImage)

	section("QUANTITATIVE ANALYSIS (Data-Driven)")
	price, _ := r.Quantitative.LatestPrice.Float64()
	volume, _ := r.Quantitative.LatestVolume.Float64()
	fmt.Fprintf(w, "Model: %s\n", r.Quantitative.Model)
	fmt.Fprintf(w, "Periods Analyzed: %d\n", r.Quantitative.PeriodsAnalyzed)
	fmt.Fprintf(w, "Latest Price: $%s\n", humanize.FormatFloat("#,###.##", price))
	fmt.Fprintf(w, "Latest Volume: %s\n\n", humanize.FormatFloat("#,###.", volume))
	fmt.Fprintln(w, r.Quantitative.Analysis)

	section("VISUAL ANALYSIS (Chart-Based)")
	fmt.Fprintf(w, "Model: %s\n\n", r.Visual.Model)
	fmt.Fprintln(w, r.Visual.Analysis)

	section("INTEGRATION ASSESSMENT")
	divergence := "NO"
	if r.Integration.DivergenceDetected {
		divergence = "YES"
	}
	fmt.Fprintf(w, "Alignment Status: %s\n", strings.ToUpper(r.Integration.AlignmentStatus))
	fmt.Fprintf(w, "Divergence Detected: %s\n\n", divergence)
	fmt.Fprintln(w, r.Integration.Notes)
	fmt.Fprintf(w, "\n%s\n", rule)
}
