package web

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	// Model output is untrusted HTML once converted.
	sanitizer = bluemonday.UGCPolicy()
)

func parseTemplates() (*template.Template, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// renderMarkdown converts model Markdown to sanitized HTML.
func renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(sanitizer.SanitizeBytes(buf.Bytes())), nil //nolint:gosec // sanitized above
}

type previewView struct {
	Name    string
	Rows    int
	Cols    int
	Header  []string
	Cells   [][]string
	Showing int
}

type resultsView struct {
	Insights template.HTML
	ChartURL string
	Code     string
}

type pageView struct {
	Provider    string
	Model       string
	DatastarURL string
	MaxUploadMB int64
	Preview     *previewView
	Results     resultsView
	Error       string
}

func newPreview(d *dataset.Dataset, n int) *previewView {
	if d == nil {
		return nil
	}
	cells := d.Head(n)
	return &previewView{
		Name:    d.Name,
		Rows:    d.NumRows(),
		Cols:    d.NumCols(),
		Header:  d.ColumnNames(),
		Cells:   cells,
		Showing: len(cells),
	}
}

func newResults(r session.Result) (resultsView, error) {
	v := resultsView{Code: r.Code}
	if r.Insights != "" {
		html, err := renderMarkdown(r.Insights)
		if err != nil {
			return v, err
		}
		v.Insights = html
	}
	if r.Chart != nil {
		// The digest changes the URL whenever the chart changes so the
		// browser does not show a cached image.
		sum := sha256.Sum256(r.Chart.Data)
		v.ChartURL = "/chart?v=" + hex.EncodeToString(sum[:6])
	}
	return v, nil
}

func (s *Server) page(sess *session.Session, errMsg string) (pageView, error) {
	results, err := newResults(sess.Result())
	if err != nil {
		return pageView{}, err
	}
	return pageView{
		Provider:    s.cfg.Provider,
		Model:       s.cfg.Model,
		DatastarURL: s.cfg.DatastarScriptURL,
		MaxUploadMB: s.cfg.MaxUploadBytes >> 20,
		Preview:     newPreview(sess.Dataset(), s.cfg.PreviewRows),
		Results:     results,
		Error:       errMsg,
	}, nil
}

func (s *Server) execute(w io.Writer, name string, data any) error {
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

func (s *Server) fragment(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.execute(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
