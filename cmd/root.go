package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/storyteller/internal/config"
	"github.com/KaramelBytes/storyteller/internal/logging"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Completion overrides (applied on top of the loaded config)
	flagProvider string
	flagModel    string
	// Worksheet for .xlsx inputs
	flagSheet string

	// Loaded configuration
	cfg    *cfgpkg.Global
	cfgErr error
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "storyteller",
	Short: "Data Storyteller: turn a CSV file into insights and a chart",
	Long: `Data Storyteller profiles a CSV file, asks a language model for a written
analysis or a chart, and runs the suggested plotting code in a sandbox.
Run "storyteller serve" for the browser UI or use the one-shot commands.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.storyteller/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "completion provider: gemini, openrouter or ollama (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagSheet, "sheet", "", "worksheet to read from .xlsx inputs (default first sheet)")
}

// loadConfig never fails the command: config show/set must work with a
// broken file. Commands that need a valid config call requireConfig.
func loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, cfgErr = cfgpkg.Load(cfgFile)
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", cfgErr)
	}
	if cfg != nil {
		f := cmd.Flags()
		if f.Changed("provider") {
			cfg.Provider = flagProvider
		}
		if f.Changed("model") {
			cfg.Model = flagModel
		}
		if err := cfg.Validate(); err != nil {
			cfg, cfgErr = nil, err
		}
	}

	level, dev := "info", false
	if cfg != nil {
		level, dev = cfg.LogLevel, cfg.LogDev
	}
	if debug {
		level = "debug"
	}
	l, err := logging.New(level, dev)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		if cfgErr != nil {
			return nil, cfgErr
		}
		return nil, fmt.Errorf("no configuration loaded")
	}
	return cfg, nil
}
