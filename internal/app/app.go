package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"trading-analyst/internal/alerting"
	"trading-analyst/internal/analysis"
	"trading-analyst/internal/config"
	"trading-analyst/internal/exchange"
	"trading-analyst/internal/market"
	"trading-analyst/internal/ollama"
	"trading-analyst/internal/storage"
)

// Data sources accepted by the analysis commands.
const (
	DataSourceExchange = "ccxt"
	DataSourceCSV      = "csv"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human-readable reports.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return io.Discard
	}
	return a.Out
}

func (a *App) newNotifier() *alerting.TelegramNotifier {
	cfg := a.Config.Alerting.Telegram
	if !cfg.Enabled {
		return nil
	}
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
}

// openStore returns a nil store without error when no DSN is configured.
func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newOllama() *ollama.Client {
	cfg := a.Config.Ollama
	return ollama.NewClient(ollama.Options{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, a.Logger)
}

func modelConfig(cfg config.ModelConfig) analysis.ModelConfig {
	return analysis.ModelConfig{
		Name: cfg.Name,
		Options: ollama.ModelOptions{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
			MaxTokens:   cfg.MaxTokens,
		},
	}
}

// newPipeline wires the analyzers, the optional run recorder and the optional
// notifier. The returned closer is never nil.
func (a *App) newPipeline(ctx context.Context) (*analysis.Pipeline, func(), error) {
	client := a.newOllama()
	quant := analysis.NewQuantAnalyzer(client, modelConfig(a.Config.Models.Quantitative), a.Config.Analysis.PromptPeriods, a.Logger)
	visual := analysis.NewVisualAnalyzer(client, modelConfig(a.Config.Models.Visual), a.Logger)
	pipeline := analysis.NewPipeline(quant, visual, a.Config.Results.JSONFolder, a.Logger)

	closer := func() {}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		pipeline.WithRecorder(storage.NewRecorder(store))
		closer = closeStore
	}
	if notifier := a.newNotifier(); notifier != nil {
		pipeline.WithNotifier(notifier)
	}
	return pipeline, closer, nil
}

func (a *App) newFetcher(name string) (exchange.Fetcher, error) {
	cfg := a.Config.Exchange
	if name == "" {
		name = cfg.Name
	}
	return exchange.New(exchange.Options{
		Name:              name,
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		PageLimit:         cfg.PageLimit,
	}, a.Logger)
}

// source resolves the candle source for one symbol. CSV sources default to the
// file fetch would have written.
func (a *App) source(dataSource, symbol, timeframe, csvFile string, periods int) (market.Source, error) {
	switch strings.ToLower(dataSource) {
	case DataSourceCSV:
		path := csvFile
		if path == "" {
			path = exchange.OutputPath(a.Config.Exchange.DataFolder, symbol, timeframe)
		}
		return &market.CSVSource{Path: path, Symbol: symbol, Timeframe: timeframe}, nil
	case DataSourceExchange, "":
		fetcher, err := a.newFetcher("")
		if err != nil {
			return nil, err
		}
		return &exchange.Source{Fetcher: fetcher, Symbol: symbol, Timeframe: timeframe, Limit: periods}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q (want %s or %s)", dataSource, DataSourceExchange, DataSourceCSV)
	}
}

// MergeBatchOptions configure merge-batch. Empty fields fall back to config.
type MergeBatchOptions struct {
	InputDir  string
	OutputDir string
	PairLabel string
}

// MergeOptions configure a single-target merge.
type MergeOptions struct {
	Files     []string
	Folder    string
	Symbol    string
	Timeframe string
	Output    string
	ListOnly  bool
}

// ValidateOptions configure the validate command.
type ValidateOptions struct {
	Path string
}

// FetchOptions configure a candle download.
type FetchOptions struct {
	Symbol    string
	Timeframe string
	Limit     int
	Exchange  string
	Output    string
}

// ChartOptions configure chart rendering.
type ChartOptions struct {
	Input     string
	Output    string
	Symbol    string
	Timeframe string
	Periods   int
}

// AnalyzeOptions configure a single analysis run.
type AnalyzeOptions struct {
	Symbol     string
	Timeframe  string
	ChartPath  string
	DataSource string
	CSVFile    string
	Periods    int
	NoSave     bool
	Report     bool
}

// BatchAnalyzeOptions configure a multi-symbol run.
type BatchAnalyzeOptions struct {
	Symbols     []string
	SymbolsFile string
	Timeframe   string
	ChartFolder string
	DataSource  string
	Periods     int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
