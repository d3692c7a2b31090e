// Package storyteller runs the two user actions against a session: a written
// report of insights and a generated chart.
package storyteller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/storyteller/internal/ai"
	"github.com/KaramelBytes/storyteller/internal/analysis"
	"github.com/KaramelBytes/storyteller/internal/chart"
	"github.com/KaramelBytes/storyteller/internal/codeblock"
	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/prompt"
	"github.com/KaramelBytes/storyteller/internal/sandbox"
	"github.com/KaramelBytes/storyteller/internal/session"
)

// ErrNoDataset is returned when an action runs before any upload.
var ErrNoDataset = errors.New("no dataset uploaded")

// Action names used in logs and errors.
const (
	ActionInsights      = "insights"
	ActionVisualization = "visualization"
)

// CompletionError wraps a failed call to the completion service.
type CompletionError struct {
	Action string
	Err    error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s: completion failed: %v", e.Action, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Service wires the profiler, prompts, completion client and executor.
type Service struct {
	Completer ai.Completer
	Executor  sandbox.Executor
	Profile   analysis.Options
	Render    chart.RenderOptions
	// ExecTimeout bounds the generated script; zero leaves only the
	// interpreter step limit and the caller's context.
	ExecTimeout time.Duration
	Logger      *zap.Logger
}

// New returns a service with default profile and render options.
func New(c ai.Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Completer: c,
		Profile:   analysis.DefaultOptions(),
		Render:    chart.DefaultRenderOptions(),
		Logger:    logger,
	}
}

// Visualization is a committed chart with the code that drew it.
type Visualization struct {
	Code   string
	Figure *chart.Figure
	Image  chart.Image
	// Output is whatever the script printed.
	Output string
}

// GenerateInsights asks for the Markdown report and stores it verbatim. On
// failure the session keeps its previous insights. A report finished after
// a new upload or a reset is discarded with session.ErrStale.
func (s *Service) GenerateInsights(ctx context.Context, sess *session.Session) (string, error) {
	end, err := sess.Begin()
	if err != nil {
		return "", err
	}
	defer end()

	start := time.Now()
	d, gen := sess.Snapshot()
	text, err := s.Insights(ctx, d)
	if err == nil {
		err = sess.SetInsights(gen, text)
	}
	if err != nil {
		s.logFailure(ActionInsights, sess, start, err)
		return "", err
	}
	s.Logger.Info("action completed",
		zap.String("action", ActionInsights),
		zap.String("session", sess.ID),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

// SuggestVisualization asks for plotting code, runs it and stores code and
// chart together. Any failure leaves the previous code and chart in place,
// and a result for a dataset that has since been replaced is discarded.
func (s *Service) SuggestVisualization(ctx context.Context, sess *session.Session) (*Visualization, error) {
	end, err := sess.Begin()
	if err != nil {
		return nil, err
	}
	defer end()

	start := time.Now()
	d, gen := sess.Snapshot()
	vis, err := s.Visualize(ctx, d)
	if err == nil {
		err = sess.SetVisualization(gen, vis.Code, vis.Image)
	}
	if err != nil {
		s.logFailure(ActionVisualization, sess, start, err)
		return nil, err
	}
	s.Logger.Info("action completed",
		zap.String("action", ActionVisualization),
		zap.String("session", sess.ID),
		zap.Int("axes", len(vis.Figure.Axes)),
		zap.Int("bytes", len(vis.Image.Data)),
		zap.Duration("elapsed", time.Since(start)))
	return vis, nil
}

// Reset clears every stored result of the session.
func (s *Service) Reset(sess *session.Session) {
	sess.Clear()
	s.Logger.Info("results cleared", zap.String("session", sess.ID))
}

// Insights runs the insights pipeline without a session.
func (s *Service) Insights(ctx context.Context, d *dataset.Dataset) (string, error) {
	if d == nil {
		return "", ErrNoDataset
	}
	p := analysis.Build(d, s.Profile)
	text, err := s.Completer.Complete(ctx, prompt.Insights(p))
	if err != nil {
		return "", &CompletionError{Action: ActionInsights, Err: err}
	}
	return text, nil
}

// Visualize runs the visualization pipeline without a session.
func (s *Service) Visualize(ctx context.Context, d *dataset.Dataset) (*Visualization, error) {
	if d == nil {
		return nil, ErrNoDataset
	}
	p := analysis.Build(d, s.Profile)
	raw, err := s.Completer.Complete(ctx, prompt.Visualization(d, p))
	if err != nil {
		return nil, &CompletionError{Action: ActionVisualization, Err: err}
	}
	if !codeblock.Fenced(raw) {
		s.Logger.Debug("reply has no fenced block, running it whole", zap.Int("chars", len(raw)))
	}
	code := codeblock.Extract(raw)
	execCtx := ctx
	if s.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.ExecTimeout)
		defer cancel()
	}
	res, err := s.Executor.Run(execCtx, code, d)
	if err != nil {
		return nil, err
	}
	img, err := res.Figure.Render(s.Render)
	if err != nil {
		return nil, &sandbox.ExecutionError{Stage: sandbox.StageResult, Err: err}
	}
	return &Visualization{Code: code, Figure: res.Figure, Image: img, Output: res.Output}, nil
}

func (s *Service) logFailure(action string, sess *session.Session, start time.Time, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.String("session", sess.ID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	}
	if code := ai.StatusCode(err); code != 0 {
		fields = append(fields, zap.Int("status", code))
	}
	var xerr *sandbox.ExecutionError
	if errors.As(err, &xerr) {
		fields = append(fields, zap.String("stage", string(xerr.Stage)))
	}
	s.Logger.Warn("action failed", fields...)
}
