package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"

	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/session"
	"github.com/KaramelBytes/storyteller/internal/storyteller"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.renderPage(w, http.StatusOK, sess, "")
}

func (s *Server) renderPage(w http.ResponseWriter, status int, sess *session.Session, errMsg string) {
	view, err := s.page(sess, errMsg)
	if err != nil {
		s.fail(w, err)
		return
	}
	body, err := s.fragment("page", view)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// handleUpload installs the posted CSV as the session dataset. A file that
// cannot be parsed leaves the session without a dataset.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.renderPage(w, http.StatusRequestEntityTooLarge, sess,
				fmt.Sprintf("The file is larger than %d MB.", s.cfg.MaxUploadBytes>>20))
			return
		}
		s.renderPage(w, http.StatusBadRequest, sess, "Choose a CSV file to upload.")
		return
	}
	defer file.Close()

	d, err := dataset.Load(header.Filename, file, s.cfg.Dataset)
	if err != nil {
		sess.SetDataset(nil)
		s.logger.Info("upload rejected", zap.String("session", sess.ID), zap.String("file", header.Filename), zap.Error(err))
		s.renderPage(w, http.StatusBadRequest, sess, storyteller.UserMessage(err))
		return
	}
	sess.SetDataset(d)
	s.logger.Info("dataset uploaded",
		zap.String("session", sess.ID),
		zap.String("file", header.Filename),
		zap.Int("rows", d.NumRows()),
		zap.Int("cols", d.NumCols()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleChart serves the latest chart of the session.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	img := sess.Result().Chart
	if img == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img.Data)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, func(sess *session.Session) error {
		_, err := s.cfg.Service.GenerateInsights(r.Context(), sess)
		return err
	})
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, func(sess *session.Session) error {
		_, err := s.cfg.Service.SuggestVisualization(r.Context(), sess)
		return err
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, func(sess *session.Session) error {
		s.cfg.Service.Reset(sess)
		return nil
	})
}

// action runs fn and patches the results and status regions. Errors become
// a message in the status region; the results shown are whatever the
// session holds afterwards, so a failed action leaves them as they were.
func (s *Server) action(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	// The cookie must be written before the SSE stream starts.
	sess, err := s.session(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	sse := datastar.NewSSE(w, r)

	msg := storyteller.UserMessage(fn(sess))
	if r.Context().Err() != nil {
		return
	}
	results, err := newResults(sess.Result())
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	var b strings.Builder
	for _, part := range []struct {
		name string
		data any
	}{{"results", results}, {"status", msg}} {
		html, err := s.fragment(part.name, part.data)
		if err != nil {
			_ = sse.ConsoleError(err)
			return
		}
		b.WriteString(html)
	}
	if err := sse.PatchElements(b.String()); err != nil {
		s.logger.Debug("patch failed", zap.String("session", sess.ID), zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}
