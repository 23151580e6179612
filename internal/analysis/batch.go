package analysis

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trading-analyst/internal/market"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// BatchRequest describes a multi-symbol run.
type BatchRequest struct {
	Symbols     []string
	Timeframe   string
	ChartFolder string
	DataSource  string
	Periods     int
	// SourceFor builds the candle source for one symbol.
	SourceFor func(symbol string) (market.Source, error)
}

// BatchEntry is the outcome for one symbol.
type BatchEntry struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	OutputFile string `json:"output_file,omitempty"`
	Alignment  string `json:"alignment,omitempty"`
	Divergence *bool  `json:"divergence,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchSummary is persisted as batch_summary_{ts}.json.
type BatchSummary struct {
	Timestamp    time.Time    `json:"timestamp"`
	TotalSymbols int          `json:"total_symbols"`
	Successful   int          `json:"successful"`
	Failed       int          `json:"failed"`
	Timeframe    string       `json:"timeframe"`
	DataSource   string       `json:"data_source"`
	Results      []BatchEntry `json:"results"`
	SummaryFile  string       `json:"-"`
}

// RunBatch analyses each symbol in turn. A symbol without a chart, or whose run
// fails, is counted as failed and the batch continues.
func (p *Pipeline) RunBatch(ctx context.Context, req BatchRequest, out io.Writer) (*BatchSummary, error) {
	if out == nil {
		out = io.Discard
	}
	rule := strings.Repeat("=", 70)
	fmt.Fprintf(out, "\n%s\nBATCH TRADING ANALYSIS\n%s\n", rule, rule)
	fmt.Fprintf(out, "Symbols:      %d\n", len(req.Symbols))
	fmt.Fprintf(out, "Timeframe:    %s\n", req.Timeframe)
	fmt.Fprintf(out, "Data Source:  %s\n", req.DataSource)
	fmt.Fprintf(out, "Chart Folder: %s\n%s\n", req.ChartFolder, rule)

	summary := &BatchSummary{
		Timestamp:    p.now(),
		TotalSymbols: len(req.Symbols),
		Timeframe:    req.Timeframe,
		DataSource:   req.DataSource,
		Results:      make([]BatchEntry, 0, len(req.Symbols)),
	}

	for i, symbol := range req.Symbols {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		fmt.Fprintf(out, "\n[%d/%d] Analyzing %s...\n", i+1, len(req.Symbols), symbol)

		chart, ok := FindChart(req.ChartFolder, symbol, req.Timeframe)
		if !ok {
			fmt.Fprintf(out, "  chart not found for %s, skipping\n", symbol)
			summary.Failed++
			continue
		}

		res, err := p.runOne(ctx, req, symbol, chart)
		if err != nil {
			fmt.Fprintf(out, "  failed: %v\n", err)
			p.logger.Error().Err(err).Str("symbol", symbol).Msg("batch analysis failed")
			summary.Results = append(summary.Results, BatchEntry{Symbol: symbol, Status: StatusFailed, Error: err.Error()})
			summary.Failed++
			continue
		}

		divergence := res.Integration.DivergenceDetected
		summary.Results = append(summary.Results, BatchEntry{
			Symbol:     symbol,
			Status:     StatusSuccess,
			OutputFile: res.OutputFile,
			Alignment:  res.Integration.AlignmentStatus,
			Divergence: &divergence,
		})
		summary.Successful++
		fmt.Fprintf(out, "  complete - alignment: %s\n", res.Integration.AlignmentStatus)
	}

	path := filepath.Join(p.jsonFolder, fmt.Sprintf("batch_summary_%s.json", summary.Timestamp.Format("20060102_150405")))
	if err := writeJSON(path, summary); err != nil {
		return summary, err
	}
	summary.SummaryFile = path

	fmt.Fprintf(out, "\n%s\nBATCH ANALYSIS COMPLETE\n%s\n", rule, rule)
	fmt.Fprintf(out, "Total:      %d\n", summary.TotalSymbols)
	fmt.Fprintf(out, "Successful: %d\n", summary.Successful)
	fmt.Fprintf(out, "Failed:     %d\n", summary.Failed)
	fmt.Fprintf(out, "\nSummary saved to: %s\n%s\n", path, rule)
	return summary, nil
}

func (p *Pipeline) runOne(ctx context.Context, req BatchRequest, symbol, chart string) (*Result, error) {
	if req.SourceFor == nil {
		return nil, fmt.Errorf("no data source for %s", symbol)
	}
	src, err := req.SourceFor(symbol)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, Request{
		Symbol:     symbol,
		Timeframe:  req.Timeframe,
		ChartPath:  chart,
		Source:     src,
		DataSource: req.DataSource,
		Periods:    req.Periods,
		Save:       true,
	})
}

// FindChart looks for {SYM}_{tf}.png, then upper and lower case timeframe
// variants, then {SYM}.png, where SYM has "/" and "-" replaced by "_".
func FindChart(folder, symbol, timeframe string) (string, bool) {
	sym := strings.NewReplacer("/", "_", "-", "_").Replace(symbol)
	candidates := []string{
		fmt.Sprintf("%s_%s.png", sym, timeframe),
		fmt.Sprintf("%s_%s.png", sym, strings.ToUpper(timeframe)),
		fmt.Sprintf("%s_%s.png", sym, strings.ToLower(timeframe)),
		sym + ".png",
	}
	for _, name := range candidates {
		path := filepath.Join(folder, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// LoadSymbols reads one symbol per line, skipping blank lines.
func LoadSymbols(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file: %w", err)
	}
	defer file.Close()

	var symbols []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			symbols = append(symbols, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	return symbols, nil
}
