package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	insightsRaw  bool
	insightsWrap int
)

var insightsCmd = &cobra.Command{
	Use:   "insights <file.csv>",
	Short: "Ask the model for a summary and three business insights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		d, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		svc, err := newService(c)
		if err != nil {
			return userError{err}
		}
		text, err := svc.Insights(cmd.Context(), d)
		if err != nil {
			logger.Debug("insights failed", zap.String("file", d.Name), zap.Error(err))
			return userError{err}
		}
		if insightsRaw {
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(insightsWrap))
		if err != nil {
			return fmt.Errorf("markdown renderer: %w", err)
		}
		out, err := r.Render(text)
		if err != nil {
			// Fall back to the markdown as received.
			out = text + "\n"
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	insightsCmd.Flags().BoolVar(&insightsRaw, "raw", false, "print the markdown without terminal styling")
	insightsCmd.Flags().IntVar(&insightsWrap, "wrap", 100, "word wrap width for styled output")
}
