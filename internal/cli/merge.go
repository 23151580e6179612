package cli

import (
	"github.com/spf13/cobra"

	"trading-analyst/internal/app"
)

var (
	batchInputDir  string
	batchOutputDir string
	batchPairLabel string

	mergeFiles     []string
	mergeFolder    string
	mergeSymbol    string
	mergeTimeframe string
	mergeOutput    string
	mergeListOnly  bool
)

var mergeBatchCmd = &cobra.Command{
	Use:   "merge-batch",
	Short: "Merge every TradingView export group in a folder, one file per timeframe",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().MergeBatch(cmd.Context(), app.MergeBatchOptions{
			InputDir:  batchInputDir,
			OutputDir: batchOutputDir,
			PairLabel: batchPairLabel,
		})
		return err
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge an explicit file list or the files matching a symbol and timeframe",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Merge(cmd.Context(), app.MergeOptions{
			Files:     mergeFiles,
			Folder:    mergeFolder,
			Symbol:    mergeSymbol,
			Timeframe: mergeTimeframe,
			Output:    mergeOutput,
			ListOnly:  mergeListOnly,
		})
		return err
	},
}

func init() {
	mergeBatchCmd.Flags().StringVar(&batchInputDir, "input", "", "Folder with TradingView exports (defaults to config)")
	mergeBatchCmd.Flags().StringVar(&batchOutputDir, "output", "", "Folder for merged files (defaults to config)")
	mergeBatchCmd.Flags().StringVar(&batchPairLabel, "pair", "", "Trading pair label used in output names (defaults to config)")

	mergeCmd.Flags().StringSliceVarP(&mergeFiles, "files", "f", nil, "CSV files to merge, in priority order")
	mergeCmd.Flags().StringVar(&mergeFolder, "folder", "", "Folder to search for CSV files (defaults to merge.input_dir)")
	mergeCmd.Flags().StringVarP(&mergeSymbol, "symbol", "s", "", "Symbol to auto-detect files (e.g. BTC_USDT)")
	mergeCmd.Flags().StringVarP(&mergeTimeframe, "timeframe", "t", "", "Timeframe to auto-detect files (e.g. 1h)")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "Output file path (default: auto-generated)")
	mergeCmd.Flags().BoolVar(&mergeListOnly, "list-only", false, "Only list matching files")
}
