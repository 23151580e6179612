package cli

import (
	"github.com/spf13/cobra"

	"trading-analyst/internal/app"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file.csv>",
	Short: "Report duplicates, missing values and gaps in a candle CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Validate(cmd.Context(), app.ValidateOptions{Path: args[0]})
		return err
	},
}
