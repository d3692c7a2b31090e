package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/storyteller/internal/analysis"
	"github.com/KaramelBytes/storyteller/internal/prompt"
)

var promptCmd = &cobra.Command{
	Use:       "prompt <insights|visualization> <file.csv>",
	Short:     "Print the prompt that would be sent for a CSV",
	Long:      "Print the insights or visualization prompt built from a CSV without calling the model. Size and cost estimates go to stderr.",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"insights", "visualization"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		kind := args[0]
		if kind != "insights" && kind != "visualization" {
			return fmt.Errorf("unknown prompt %q (use insights or visualization)", kind)
		}
		d, err := loadDataset(args[1])
		if err != nil {
			return err
		}
		p := analysis.Build(d, profileOptions(c))
		text := prompt.Insights(p)
		if kind == "visualization" {
			text = prompt.Visualization(d, p)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		reportPrompt(cmd.ErrOrStderr(), c, text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
}
