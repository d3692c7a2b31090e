package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/storyteller/internal/ai"
	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/session"
	"github.com/KaramelBytes/storyteller/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browser UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			c.ListenAddr = serveListen
		}
		svc, err := newService(c)
		if err != nil {
			var cerr *ai.ConfigurationError
			if !errors.As(err, &cerr) {
				return err
			}
			// The UI still starts; every action reports the problem.
			fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", userError{err})
			svc = serviceFor(c, unconfigured{err})
		}
		srv, err := web.New(web.Config{
			Addr:              c.ListenAddr,
			Service:           svc,
			Sessions:          session.NewManager(time.Duration(c.SessionTTLMin) * time.Minute),
			SessionSecret:     c.SessionSecret,
			MaxUploadBytes:    int64(c.MaxUploadMB) << 20,
			CORSOrigins:       c.CORSAllowedOrigins,
			DatastarScriptURL: c.DatastarScriptURL,
			Provider:          c.Provider,
			Model:             c.Model,
			Dataset:           dataset.DefaultOptions(),
			PreviewRows:       c.HeadRows,
			Logger:            logger,
		})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Printf("✓ Data Storyteller listening on %s (%s, %s)\n", c.ListenAddr, c.Provider, c.Model)
		return srv.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides listen_addr)")
}
