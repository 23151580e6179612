package cli

import (
	"github.com/spf13/cobra"

	"trading-analyst/internal/app"
)

var (
	analyzeTimeframe  string
	analyzeChart      string
	analyzeDataSource string
	analyzeCSVFile    string
	analyzePeriods    int
	analyzeNoSave     bool
	analyzeReport     bool

	batchSymbols     []string
	batchSymbolsFile string
	batchTimeframe   string
	batchChartFolder string
	batchDataSource  string
	batchPeriods     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <symbol>",
	Short: "Run quantitative and visual model analysis for one symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Analyze(cmd.Context(), app.AnalyzeOptions{
			Symbol:     args[0],
			Timeframe:  analyzeTimeframe,
			ChartPath:  analyzeChart,
			DataSource: analyzeDataSource,
			CSVFile:    analyzeCSVFile,
			Periods:    analyzePeriods,
			NoSave:     analyzeNoSave,
			Report:     analyzeReport,
		})
		return err
	},
}

var batchAnalyzeCmd = &cobra.Command{
	Use:   "batch-analyze",
	Short: "Analyze several symbols, skipping those without a chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().BatchAnalyze(cmd.Context(), app.BatchAnalyzeOptions{
			Symbols:     batchSymbols,
			SymbolsFile: batchSymbolsFile,
			Timeframe:   batchTimeframe,
			ChartFolder: batchChartFolder,
			DataSource:  batchDataSource,
			Periods:     batchPeriods,
		})
		return err
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models on the Ollama server and check the configured ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Models(cmd.Context())
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeTimeframe, "timeframe", "t", "", "Timeframe (defaults to analysis.default_timeframe)")
	analyzeCmd.Flags().StringVarP(&analyzeChart, "chart", "c", "", "Path to chart image")
	analyzeCmd.Flags().StringVarP(&analyzeDataSource, "data-source", "d", app.DataSourceExchange, "Data source: ccxt or csv")
	analyzeCmd.Flags().StringVar(&analyzeCSVFile, "csv-file", "", "CSV file path when --data-source=csv")
	analyzeCmd.Flags().IntVarP(&analyzePeriods, "periods", "p", 0, "Number of periods to analyze (defaults to analysis.default_periods)")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "Do not save results to file")
	analyzeCmd.Flags().BoolVar(&analyzeReport, "report", false, "Print the full human-readable report")
	_ = analyzeCmd.MarkFlagRequired("chart")

	batchAnalyzeCmd.Flags().StringSliceVar(&batchSymbols, "symbols", nil, "Symbols to analyze")
	batchAnalyzeCmd.Flags().StringVar(&batchSymbolsFile, "symbols-file", "", "File with one symbol per line")
	batchAnalyzeCmd.Flags().StringVarP(&batchTimeframe, "timeframe", "t", "", "Timeframe (defaults to analysis.default_timeframe)")
	batchAnalyzeCmd.Flags().StringVar(&batchChartFolder, "chart-folder", "", "Folder with chart images (defaults to results.charts_folder)")
	batchAnalyzeCmd.Flags().StringVarP(&batchDataSource, "data-source", "d", app.DataSourceExchange, "Data source: ccxt or csv")
	batchAnalyzeCmd.Flags().IntVarP(&batchPeriods, "periods", "p", 0, "Number of periods (defaults to analysis.default_periods)")
}
