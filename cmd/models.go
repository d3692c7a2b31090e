package cmd

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/storyteller/internal/ai"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models with context size and pricing",
	Long:  "List known models with context size and pricing. --provider limits the list to one provider.",
	Example: `  storyteller models
  storyteller models --provider ollama`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Model", "Provider", "Context", "$/1K in", "$/1K out"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
		})
		n := 0
		for _, m := range ai.Catalog() {
			if flagProvider != "" && m.Provider != flagProvider {
				continue
			}
			t.AppendRow(table.Row{m.Name, m.Provider, strconv.Itoa(m.ContextTokens), price(m.InputPerK), price(m.OutputPerK)})
			n++
		}
		if n == 0 {
			return fmt.Errorf("no models for provider %q (known: %v)", flagProvider, ai.Providers())
		}
		t.Render()
		return nil
	},
}

func price(v float64) string {
	if v == 0 {
		return "free"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
