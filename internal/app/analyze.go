package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trading-analyst/internal/analysis"
	"trading-analyst/internal/market"
	"trading-analyst/internal/ollama"
)

const previewChars = 500

// Analyze runs the two-model pipeline for one symbol.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) (*analysis.Result, error) {
	if opts.Symbol == "" {
		return nil, errors.New("symbol required")
	}
	if opts.ChartPath == "" {
		return nil, errors.New("chart image required")
	}
	opts.Timeframe = a.Config.ResolveTimeframe(opts.Timeframe)
	opts.Periods = a.Config.ResolvePeriods(opts.Periods)
	if opts.DataSource == "" {
		opts.DataSource = DataSourceExchange
	}

	src, err := a.source(opts.DataSource, opts.Symbol, opts.Timeframe, opts.CSVFile, opts.Periods)
	if err != nil {
		return nil, err
	}

	pipeline, closer, err := a.newPipeline(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	out := a.out()
	rule := strings.Repeat("=", 70)
	fmt.Fprintf(out, "\n%s\nTRADING ANALYSIS\n%s\n", rule, rule)
	fmt.Fprintf(out, "Symbol:       %s\n", opts.Symbol)
	fmt.Fprintf(out, "Timeframe:    %s\n", opts.Timeframe)
	fmt.Fprintf(out, "Data Source:  %s\n", opts.DataSource)
	fmt.Fprintf(out, "Chart Image:  %s\n", opts.ChartPath)
	if opts.CSVFile != "" {
		fmt.Fprintf(out, "CSV File:     %s\n", opts.CSVFile)
	}
	fmt.Fprintln(out, rule)

	res, err := pipeline.Run(ctx, analysis.Request{
		Symbol:     opts.Symbol,
		Timeframe:  opts.Timeframe,
		ChartPath:  opts.ChartPath,
		Source:     src,
		DataSource: opts.DataSource,
		Periods:    opts.Periods,
		Save:       !opts.NoSave,
	})
	if err != nil {
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "1. Ensure Ollama is running: ollama serve")
		fmt.Fprintln(out, "2. Verify both models exist: analyst models")
		fmt.Fprintln(out, "3. Check chart image path is correct")
		fmt.Fprintln(out, "4. Verify data source is accessible")
		return nil, err
	}

	if opts.Report {
		res.WriteReport(out)
		return res, nil
	}

	fmt.Fprintf(out, "\n%s\nANALYSIS COMPLETE\n%s\n\n", rule, rule)
	fmt.Fprintf(out, "QUANTITATIVE ANALYSIS:\n%s\n\n", preview(res.Quantitative.Analysis))
	fmt.Fprintf(out, "VISUAL ANALYSIS:\n%s\n\n", preview(res.Visual.Analysis))
	fmt.Fprintf(out, "Alignment: %s\n", strings.ToUpper(res.Integration.AlignmentStatus))
	if res.Integration.DivergenceDetected {
		fmt.Fprintln(out, "Divergence: YES")
	} else {
		fmt.Fprintln(out, "Divergence: NO")
	}
	fmt.Fprintf(out, "\n%s\n", res.Integration.Notes)
	if res.OutputFile != "" {
		fmt.Fprintf(out, "\nFull results saved to: %s\n", res.OutputFile)
	}
	return res, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars]) + "..."
}

// BatchAnalyze runs the pipeline over several symbols, skipping those without
// a chart.
func (a *App) BatchAnalyze(ctx context.Context, opts BatchAnalyzeOptions) (*analysis.BatchSummary, error) {
	symbols := opts.Symbols
	if len(symbols) == 0 {
		if opts.SymbolsFile == "" {
			return nil, errors.New("provide either --symbols or --symbols-file")
		}
		loaded, err := analysis.LoadSymbols(opts.SymbolsFile)
		if err != nil {
			return nil, err
		}
		symbols = loaded
	}
	if len(symbols) == 0 {
		return nil, errors.New("no symbols to analyze")
	}

	timeframe := a.Config.ResolveTimeframe(opts.Timeframe)
	periods := a.Config.ResolvePeriods(opts.Periods)
	dataSource := opts.DataSource
	if dataSource == "" {
		dataSource = DataSourceExchange
	}
	chartFolder := opts.ChartFolder
	if chartFolder == "" {
		chartFolder = a.Config.Results.ChartsFolder
	}

	pipeline, closer, err := a.newPipeline(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	return pipeline.RunBatch(ctx, analysis.BatchRequest{
		Symbols:     symbols,
		Timeframe:   timeframe,
		ChartFolder: chartFolder,
		DataSource:  dataSource,
		Periods:     periods,
		SourceFor: func(symbol string) (market.Source, error) {
			return a.source(dataSource, symbol, timeframe, "", periods)
		},
	}, a.out())
}

// Models lists the models available on the server and whether the configured
// ones are among them.
func (a *App) Models(ctx context.Context) error {
	client := a.newOllama()
	models, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	out := a.out()
	fmt.Fprintf(out, "Ollama server: %s\n", a.Config.Ollama.BaseURL)
	fmt.Fprintf(out, "Available models (%d):\n", len(models))
	for _, m := range models {
		fmt.Fprintf(out, "  - %s\n", m.Name)
	}

	fmt.Fprintln(out, "\nConfigured models:")
	for _, cfg := range []struct{ role, name string }{
		{"quantitative", a.Config.Models.Quantitative.Name},
		{"visual", a.Config.Models.Visual.Name},
	} {
		status := "missing"
		if ollama.ContainsModel(models, cfg.name) {
			status = "ok"
		}
		fmt.Fprintf(out, "  %-13s %s [%s]\n", cfg.role+":", cfg.name, status)
	}
	return nil
}
