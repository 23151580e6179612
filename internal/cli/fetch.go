package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trading-analyst/internal/app"
)

var (
	fetchTimeframe string
	fetchPeriods   int
	fetchExchange  string
	fetchOutput    string

	chartInput     string
	chartOutput    string
	chartSymbol    string
	chartTimeframe string
	chartPeriods   int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <symbol>",
	Short: "Download OHLCV candles from an exchange into a CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if fetchPeriods < 0 {
			return fmt.Errorf("--periods cannot be negative")
		}
		_, err := getApp().Fetch(cmd.Context(), app.FetchOptions{
			Symbol:    args[0],
			Timeframe: fetchTimeframe,
			Limit:     fetchPeriods,
			Exchange:  fetchExchange,
			Output:    fetchOutput,
		})
		return err
	},
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a close and volume PNG from a candle CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Chart(cmd.Context(), app.ChartOptions{
			Input:     chartInput,
			Output:    chartOutput,
			Symbol:    chartSymbol,
			Timeframe: chartTimeframe,
			Periods:   chartPeriods,
		})
		return err
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchTimeframe, "timeframe", "t", "", "Timeframe (defaults to analysis.default_timeframe)")
	fetchCmd.Flags().IntVarP(&fetchPeriods, "periods", "p", 0, "Number of candles (defaults to analysis.default_periods)")
	fetchCmd.Flags().StringVarP(&fetchExchange, "exchange", "e", "", "Exchange name (defaults to config)")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "Output CSV path")

	chartCmd.Flags().StringVarP(&chartInput, "input", "i", "", "Candle CSV to draw")
	chartCmd.Flags().StringVarP(&chartOutput, "output", "o", "", "PNG path (defaults to {charts_folder}/{SYM}_{tf}.png)")
	chartCmd.Flags().StringVarP(&chartSymbol, "symbol", "s", "", "Symbol shown in the title and file name")
	chartCmd.Flags().StringVarP(&chartTimeframe, "timeframe", "t", "", "Timeframe shown in the title and file name")
	chartCmd.Flags().IntVarP(&chartPeriods, "periods", "p", 0, "Draw only the last N candles")
	_ = chartCmd.MarkFlagRequired("input")
}
