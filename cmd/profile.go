package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/storyteller/internal/analysis"
)

var profileHead int

var profileCmd = &cobra.Command{
	Use:   "profile <file.csv>",
	Short: "Print the head, info and describe blocks of a CSV",
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
		opt := profileOptions(c)
		if profileHead > 0 {
			opt.HeadRows = profileHead
		}
		fmt.Fprint(cmd.OutOrStdout(), analysis.Build(d, opt).String())
		if d.Truncated {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s has more rows than the loader keeps; the profile covers the first %d\n", d.Name, d.NumRows())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().IntVarP(&profileHead, "head", "n", 0, "number of leading rows to show (default from config)")
}
