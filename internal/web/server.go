// Package web serves the browser UI: upload a CSV, then ask for insights or
// a chart. Actions stream their results back as Datastar element patches.
package web

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/session"
	"github.com/KaramelBytes/storyteller/internal/storyteller"
)

// Config holds configuration for the UI server.
type Config struct {
	Addr     string
	Service  *storyteller.Service
	Sessions *session.Manager
	// SessionSecret signs the session cookie. Empty picks a random key, so
	// cookies stop matching after a restart (the sessions are gone by then
	// anyway).
	SessionSecret string
	// MaxUploadBytes caps the upload body; zero means 10 MiB.
	MaxUploadBytes int64
	CORSOrigins    []string
	// DatastarScriptURL is the client bundle loaded by the page.
	DatastarScriptURL string
	Provider          string
	Model             string
	Dataset           dataset.Options
	PreviewRows       int
	SweepInterval     time.Duration
	Logger            *zap.Logger
}

// Server is the UI server.
type Server struct {
	cfg     Config
	cookies *sessions.CookieStore
	pages   *template.Template
	logger  *zap.Logger
}

// New validates cfg and prepares templates and the cookie store.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil || cfg.Sessions == nil {
		return nil, errors.New("web: service and session manager are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 5
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		cfg.Logger.Warn("session_secret not set; using a random key for this process")
	}
	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	store := sessions.NewCookieStore(secret)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	// Browser-session cookie; the server side expires on idle TTL.
	store.Options.MaxAge = 0
	return &Server{cfg: cfg, cookies: store, pages: pages, logger: cfg.Logger}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(s.logger),
		middleware.Recoverer,
	)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Datastar-Request"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/", s.handleIndex)
	r.Post("/upload", s.handleUpload)
	r.Get("/chart", s.handleChart)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/actions", func(r chi.Router) {
		r.Post("/insights", s.handleInsights)
		r.Post("/visualize", s.handleVisualize)
		r.Post("/reset", s.handleReset)
	})
	return r
}

// Serve listens on cfg.Addr and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln, sweeps idle sessions, and shuts down
// gracefully when ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting UI server", zap.String("addr", ln.Addr().String()))

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return s.cfg.Sessions.Run(egctx, s.cfg.SweepInterval)
	})
	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down UI server")
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
