package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/storyteller/internal/utils"
)

var (
	vizOutput  string
	vizCodeOut string
	vizFormat  string
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize <file.csv>",
	Short: "Ask the model for chart code, run it and save the image",
	Example: `  storyteller visualize sales.csv
  storyteller visualize sales.csv -o out/sales.svg --format svg --code-out out/sales.py`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if vizFormat != "" {
			if err := c.Set("chart_format", vizFormat); err != nil {
				return err
			}
		}
		d, err := loadDataset(args[0])
		if err != nil {
			return err
		}
		svc, err := newService(c)
		if err != nil {
			return userError{err}
		}
		viz, err := svc.Visualize(cmd.Context(), d)
		if err != nil {
			logger.Debug("visualize failed", zap.String("file", d.Name), zap.Error(err))
			return userError{err}
		}

		out := vizOutput
		if out == "" {
			out = "chart"
		}
		out = utils.WithExt(out, string(viz.Image.Format))
		if err := utils.SafeWriteFile(out, viz.Image.Data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Chart written to %s (%s)\n", out, viz.Figure)
		if viz.Output != "" {
			fmt.Fprint(cmd.ErrOrStderr(), viz.Output)
		}
		if vizCodeOut != "" {
			if err := utils.SafeWriteFile(vizCodeOut, []byte(viz.Code+"\n"), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Code written to %s\n", vizCodeOut)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", viz.Code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(visualizeCmd)
	visualizeCmd.Flags().StringVarP(&vizOutput, "output", "o", "", "image path; the extension follows the format (default chart.png)")
	visualizeCmd.Flags().StringVar(&vizCodeOut, "code-out", "", "also write the generated code to this path")
	visualizeCmd.Flags().StringVar(&vizFormat, "format", "", "image format: png or svg (overrides config)")
}
