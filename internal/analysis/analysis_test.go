package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-analyst/internal/market"
	"trading-analyst/internal/ollama"
)

type generateCall struct {
	model  string
	prompt string
	images int
}

type fakeGenerator struct {
	replies map[string]string
	calls   []generateCall
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, model, prompt string, _ ollama.ModelOptions, images [][]byte) (string, error) {
	f.calls = append(f.calls, generateCall{model: model, prompt: prompt, images: len(images)})
	if f.err != nil {
		return "", f.err
	}
	return f.replies[model], nil
}

type staticSource struct{ candles []market.Candle }

func (s staticSource) Load(context.Context) (*market.Series, error) {
	return &market.Series{Candles: s.candles}, nil
}

func candles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		p := decimal.NewFromInt(int64(100 + i))
		out[i] = market.Candle{
			Time:   time.Unix(int64(i)*3600, 0).UTC(),
			Open:   p,
			High:   p.Add(decimal.NewFromInt(1)),
			Low:    p.Sub(decimal.NewFromInt(1)),
			Close:  p,
			Volume: decimal.NewFromInt(int64(10 + i)),
		}
	}
	return out
}

func writeChart(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("\x89PNG"), 0o644); err != nil {
		t.Fatalf("write chart: %v", err)
	}
	return path
}

func newTestPipeline(gen Generator, jsonDir string) *Pipeline {
	q := NewQuantAnalyzer(gen, ModelConfig{Name: "quant"}, 50, zerolog.Nop())
	v := NewVisualAnalyzer(gen, ModelConfig{Name: "vision"}, zerolog.Nop())
	p := NewPipeline(q, v, jsonDir, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return p
}

type recordingSink struct {
	recorded []*Result
	notified []*Result
}

func (r *recordingSink) RecordAnalysis(_ context.Context, res *Result) error {
	r.recorded = append(r.recorded, res)
	return nil
}

func (r *recordingSink) NotifyAnalysis(_ context.Context, res *Result) error {
	r.notified = append(r.notified, res)
	return errors.New("telegram down")
}

func TestDetectDivergence(t *testing.T) {
	cases := []struct {
		quant, visual string
		want          bool
	}{
		{"Momentum is Bullish", "clear downtrend", true},
		{"strong resistance overhead", "BUY the dip", true},
		{"uptrend intact", "go long here", false},
		{"neutral drift", "sideways range", false},
		{"bullish but facing resistance", "neutral", false},
	}
	for _, tc := range cases {
		if got := DetectDivergence(tc.quant, tc.visual); got != tc.want {
			t.Errorf("DetectDivergence(%q, %q) = %v, want %v", tc.quant, tc.visual, got, tc.want)
		}
	}
	if Alignment(true) != AlignmentLow || Alignment(false) != AlignmentHigh {
		t.Fatal("alignment mapping wrong")
	}
	if !strings.HasPrefix(IntegrationNotes(true), "DIVERGENCE") || !strings.HasPrefix(IntegrationNotes(false), "ALIGNMENT") {
		t.Fatal("integration notes wrong")
	}
}

func TestBuildQuantPromptWindow(t *testing.T) {
	prompt := BuildQuantPrompt("BTC/USDT", "4h", candles(60), 50)
	if !strings.Contains(prompt, "RECENT DATA (Last 50 periods)") {
		t.Fatalf("prompt should inline 50 periods:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Closing Prices: [110, 111,") {
		t.Fatal("window should start at the 11th candle")
	}
	if !strings.Contains(prompt, "Current Price: 159") {
		t.Fatal("current price missing")
	}
}

func TestBuildVisualPromptContext(t *testing.T) {
	with := BuildVisualPrompt("ETH/USDT", "1h", "RSI 70")
	if !strings.Contains(with, "QUANTITATIVE DATA CONTEXT:\nRSI 70") || !strings.Contains(with, "agree or disagree") {
		t.Fatalf("context block missing:\n%s", with)
	}
	without := BuildVisualPrompt("ETH/USDT", "1h", "")
	if strings.Contains(without, "QUANTITATIVE DATA CONTEXT") || strings.Contains(without, "agree or disagree") {
		t.Fatal("prompt without context must not mention it")
	}
}

func TestPipelineRun(t *testing.T) {
	dir := t.TempDir()
	chart := writeChart(t, dir, "BTC_USDT_4h.png")
	gen := &fakeGenerator{replies: map[string]string{"quant": "bullish momentum", "vision": "bearish reversal"}}
	sink := &recordingSink{}
	p := newTestPipeline(gen, filepath.Join(dir, "json")).WithRecorder(sink).WithNotifier(sink)

	res, err := p.Run(context.Background(), Request{
		Symbol: "BTC/USDT", Timeframe: "4h", ChartPath: chart,
		Source: staticSource{candles: candles(120)}, DataSource: "csv", Periods: 100, Save: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(gen.calls) != 2 || gen.calls[0].model != "quant" || gen.calls[1].model != "vision" {
		t.Fatalf("unexpected model calls %+v", gen.calls)
	}
	if gen.calls[0].images != 0 || gen.calls[1].images != 1 {
		t.Fatal("only the visual step should carry the chart")
	}
	if !strings.Contains(gen.calls[1].prompt, "bullish momentum") {
		t.Fatal("visual prompt should embed the quantitative analysis")
	}

	if !res.Integration.DivergenceDetected || res.Integration.AlignmentStatus != AlignmentLow {
		t.Fatalf("expected divergence, got %+v", res.Integration)
	}
	if res.Quantitative.PeriodsAnalyzed != 100 || !res.Quantitative.LatestPrice.Equal(decimal.NewFromInt(219)) {
		t.Fatalf("quant section %+v", res.Quantitative)
	}
	if res.DataSummary.Candles != 100 || res.Metadata.DataSource != "csv" {
		t.Fatalf("summary/metadata wrong: %+v %+v", res.DataSummary, res.Metadata)
	}

	wantFile := filepath.Join(dir, "json", "BTC_USDT_4h_20240506_070809.json")
	if res.OutputFile != wantFile {
		t.Fatalf("output file = %s, want %s", res.OutputFile, wantFile)
	}
	data, err := os.ReadFile(wantFile)
	if err != nil {
		t.Fatalf("result not saved: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("saved JSON invalid: %v", err)
	}
	for _, key := range []string{"metadata", "data_summary", "quantitative_analysis", "visual_analysis", "integration"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("saved JSON missing %q", key)
		}
	}

	if len(sink.recorded) != 1 || len(sink.notified) != 1 {
		t.Fatal("recorder and notifier should each be called once; notifier errors are not fatal")
	}

	var buf bytes.Buffer
	res.WriteReport(&buf)
	if !strings.Contains(buf.String(), "Alignment Status: LOW") || !strings.Contains(buf.String(), "Latest Price: $219") {
		t.Fatalf("report:\n%s", buf.String())
	}
}

func TestPipelineMissingChartBeforeModelCalls(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(gen, t.TempDir())
	_, err := p.Run(context.Background(), Request{
		Symbol: "BTC/USDT", Timeframe: "4h", ChartPath: filepath.Join(t.TempDir(), "none.png"),
		Source: staticSource{candles: candles(5)},
	})
	if !errors.Is(err, ErrChartNotFound) {
		t.Fatalf("expected ErrChartNotFound, got %v", err)
	}
	if len(gen.calls) != 0 {
		t.Fatal("no model should be called without a chart")
	}
}

func TestPipelineEmptyData(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline(&fakeGenerator{}, dir)
	_, err := p.Run(context.Background(), Request{
		Symbol: "BTC/USDT", Timeframe: "4h", ChartPath: writeChart(t, dir, "c.png"), Source: staticSource{},
	})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestPipelineModelFailure(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeGenerator{err: errors.New("connection refused")}
	p := newTestPipeline(gen, dir)
	_, err := p.Run(context.Background(), Request{
		Symbol: "BTC/USDT", Timeframe: "4h", ChartPath: writeChart(t, dir, "c.png"), Source: staticSource{candles: candles(3)}, Save: true,
	})
	if err == nil || !strings.Contains(err.Error(), "quantitative analysis") {
		t.Fatalf("expected quantitative failure, got %v", err)
	}
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	charts := filepath.Join(dir, "charts")
	if err := os.MkdirAll(charts, 0o755); err != nil {
		t.Fatal(err)
	}
	writeChart(t, charts, "BTC_USDT_4H.png")
	writeChart(t, charts, "SOL_USDT.png")

	gen := &fakeGenerator{replies: map[string]string{"quant": "uptrend", "vision": "long setup"}}
	jsonDir := filepath.Join(dir, "json")
	p := newTestPipeline(gen, jsonDir)

	var buf bytes.Buffer
	summary, err := p.RunBatch(context.Background(), BatchRequest{
		Symbols:     []string{"BTC/USDT", "ETH/USDT", "SOL-USDT"},
		Timeframe:   "4h",
		ChartFolder: charts,
		DataSource:  "csv",
		SourceFor: func(symbol string) (market.Source, error) {
			if symbol == "SOL-USDT" {
				return nil, errors.New("no data file")
			}
			return staticSource{candles: candles(10)}, nil
		},
	}, &buf)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if summary.TotalSymbols != 3 || summary.Successful != 1 || summary.Failed != 2 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if len(summary.Results) != 2 || summary.Results[0].Status != StatusSuccess || summary.Results[1].Status != StatusFailed {
		t.Fatalf("unexpected entries %+v", summary.Results)
	}
	if summary.Results[0].Alignment != AlignmentHigh {
		t.Fatalf("expected high alignment, got %s", summary.Results[0].Alignment)
	}
	if want := filepath.Join(jsonDir, "batch_summary_20240506_070809.json"); summary.SummaryFile != want {
		t.Fatalf("summary file = %s", summary.SummaryFile)
	}
	if _, err := os.Stat(summary.SummaryFile); err != nil {
		t.Fatalf("summary not written: %v", err)
	}
	if !strings.Contains(buf.String(), "chart not found for ETH/USDT") {
		t.Fatalf("missing chart diagnostic:\n%s", buf.String())
	}
}

func TestLoadSymbols(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.txt")
	if err := os.WriteFile(path, []byte("BTC/USDT\n\n  ETH/USDT  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	symbols, err := LoadSymbols(path)
	if err != nil || len(symbols) != 2 || symbols[1] != "ETH/USDT" {
		t.Fatalf("LoadSymbols = %v, %v", symbols, err)
	}
}
