package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/KaramelBytes/storyteller/internal/ai"
	"github.com/KaramelBytes/storyteller/internal/analysis"
	"github.com/KaramelBytes/storyteller/internal/chart"
	cfgpkg "github.com/KaramelBytes/storyteller/internal/config"
	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/prompt"
	"github.com/KaramelBytes/storyteller/internal/storyteller"
)

// loadDataset reads a table argument; parse failures come back as userError.
func loadDataset(path string) (*dataset.Dataset, error) {
	opt := dataset.DefaultOptions()
	opt.Sheet = flagSheet
	d, err := dataset.LoadFile(path, opt)
	if err != nil {
		return nil, userError{err}
	}
	return d, nil
}

func profileOptions(c *cfgpkg.Global) analysis.Options {
	opt := analysis.DefaultOptions()
	if c.HeadRows > 0 {
		opt.HeadRows = c.HeadRows
	}
	return opt
}

func renderOptions(c *cfgpkg.Global) chart.RenderOptions {
	opt := chart.DefaultRenderOptions()
	if c.ChartFormat != "" {
		opt.Format = chart.Format(c.ChartFormat)
	}
	if c.ChartWidthIn > 0 {
		opt.Width = c.ChartWidthIn
	}
	if c.ChartHeightIn > 0 {
		opt.Height = c.ChartHeightIn
	}
	return opt
}

// newService builds the action service for the configured provider.
func newService(c *cfgpkg.Global) (*storyteller.Service, error) {
	completer, err := c.Completer()
	if err != nil {
		return nil, err
	}
	return serviceFor(c, completer), nil
}

func serviceFor(c *cfgpkg.Global, completer ai.Completer) *storyteller.Service {
	svc := storyteller.New(completer, logger)
	svc.Profile = profileOptions(c)
	svc.Render = renderOptions(c)
	svc.ExecTimeout = time.Duration(c.ExecTimeoutSec) * time.Second
	return svc
}

// unconfigured fails every completion with the configuration problem found
// at startup, so the UI can still load and explain it.
type unconfigured struct{ err error }

func (u unconfigured) Complete(context.Context, string) (string, error) { return "", u.err }

// userError shows the friendly sentence and keeps the cause for errors.As.
type userError struct{ err error }

func (e userError) Error() string { return storyteller.UserMessage(e.err) }
func (e userError) Unwrap() error { return e.err }

// reportPrompt prints the size of a prompt and warns when the configured
// model cannot take it.
func reportPrompt(w io.Writer, c *cfgpkg.Global, text string) {
	tokens := prompt.EstimateTokens(text)
	fmt.Fprintf(w, "ℹ Prompt: ~%d tokens for %s/%s\n", tokens, c.Provider, c.Model)
	info, ok := ai.LookupModel(c.Model)
	if !ok {
		return
	}
	if info.ContextTokens > 0 && tokens+c.MaxTokens > info.ContextTokens {
		fmt.Fprintf(w, "⚠ Warning: prompt plus max_tokens (%d) exceeds the %d token context of %s\n",
			tokens+c.MaxTokens, info.ContextTokens, info.Name)
	}
	if cost, ok := ai.EstimateCostUSD(c.Model, tokens, c.MaxTokens); ok && cost > 0 {
		fmt.Fprintf(w, "ℹ Estimated cost: up to $%.4f\n", cost)
	}
}
