package web

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/session"
	"github.com/KaramelBytes/storyteller/internal/storyteller"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const salesCSV = "region,units,price\nNorth,10,2.5\nSouth,7,3.25\nNorth,5,4.0\nWest,12,1.5\n"

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
}

func (c *scriptedCompleter) Complete(_ context.Context, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return reply, nil
}

// browser replays cookies between requests the way a browser would.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func newBrowser(t *testing.T, cfg func(*Config), replies ...string) *browser {
	t.Helper()
	c := Config{
		Service:           storyteller.New(&scriptedCompleter{replies: replies}, zaptest.NewLogger(t)),
		Sessions:          session.NewManager(0),
		SessionSecret:     "test-secret-key-32-bytes-long!!",
		DatastarScriptURL: "/datastar.js",
		Provider:          "gemini",
		Model:             "gemini-pro-latest",
		Dataset:           dataset.DefaultOptions(),
		Logger:            zaptest.NewLogger(t),
	}
	if cfg != nil {
		cfg(&c)
	}
	s, err := New(c)
	require.NoError(t, err)
	return &browser{t: t, handler: s.Handler()}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		b.cookies = set
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) action(name string) string {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/actions/"+name, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Datastar-Request", "true")
	rec := b.do(req)
	require.Equal(b.t, http.StatusOK, rec.Code)
	assert.Contains(b.t, rec.Header().Get("Content-Type"), "text/event-stream")
	return rec.Body.String()
}

func (b *browser) upload(name, content string) *httptest.ResponseRecorder {
	b.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(b.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(b.t, err)
	require.NoError(b.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(req)
}

func TestIndexWithoutUpload(t *testing.T) {
	b := newBrowser(t, nil, "unused")
	rec := b.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{
		"<!doctype html>",
		"<title>CSV Data Storyteller</title>",
		`src="/datastar.js"`,
		"Awaiting a CSV file to be uploaded.",
		"gemini (gemini-pro-latest)",
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "Clear All Results")
	require.Len(t, b.cookies, 1)
	assert.Equal(t, cookieName, b.cookies[0].Name)
	assert.True(t, b.cookies[0].HttpOnly)
}

func TestUploadShowsPreview(t *testing.T) {
	b := newBrowser(t, nil, "unused")
	rec := b.upload("sales.csv", salesCSV)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	body := b.get("/").Body.String()
	for _, want := range []string{
		"Your Data Preview",
		"<strong>sales.csv</strong>: 4 rows, 3 columns",
		"<th>region</th><th>units</th><th>price</th>",
		"<td>South</td>",
		`data-on:click="@post('/actions/insights')"`,
		"Clear All Results",
	} {
		assert.Contains(t, body, want)
	}
}

func TestUploadErrors(t *testing.T) {
	t.Run("unparseable", func(t *testing.T) {
		b := newBrowser(t, nil, "unused")
		require.Equal(t, http.StatusSeeOther, b.upload("good.csv", salesCSV).Code)
		rec := b.upload("empty.csv", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Could not read empty.csv as a CSV file")
		assert.Contains(t, body, "Awaiting a CSV file", "a failed upload leaves no dataset")
	})
	t.Run("missing file field", func(t *testing.T) {
		b := newBrowser(t, nil, "unused")
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := b.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Choose a CSV file to upload.")
	})
	t.Run("too large", func(t *testing.T) {
		b := newBrowser(t, func(c *Config) { c.MaxUploadBytes = 1 << 20 }, "unused")
		rec := b.upload("big.csv", "a\n"+strings.Repeat("1\n", 600_000))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "larger than 1 MB")
	})
}

func TestInsightsActionPatchesSanitizedMarkdown(t *testing.T) {
	b := newBrowser(t, nil, "**High-Level Summary:** four sales rows.\n\n<script>alert(1)</script>")
	b.upload("sales.csv", salesCSV)

	stream := b.action("insights")
	assert.Contains(t, stream, "datastar-patch-elements")
	assert.Contains(t, stream, `<section id="results">`)
	assert.Contains(t, stream, "<strong>High-Level Summary:</strong> four sales rows.")
	assert.NotContains(t, stream, "<script>alert")
	assert.Contains(t, stream, `<div id="status" role="status"></div>`)

	page := b.get("/").Body.String()
	assert.Contains(t, page, "AI-Powered Analysis Report")
}

func TestVisualizeActionServesChart(t *testing.T) {
	b := newBrowser(t, nil, "```python\nax.bar(df['region'], df['units'])\nax.set_title('Units')\n```")
	b.upload("sales.csv", salesCSV)

	assert.Equal(t, http.StatusNotFound, b.get("/chart").Code)

	stream := b.action("visualize")
	assert.Contains(t, stream, `<img src="/chart?v=`)
	assert.Contains(t, stream, "ax.bar(df[&#39;region&#39;], df[&#39;units&#39;])")

	rec := b.get("/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestFailedVisualizationKeepsChartAndReportsError(t *testing.T) {
	b := newBrowser(t, nil, "ax.bar(df['region'], df['units'])", "ax.bar(df['region'], df['nope'])")
	b.upload("sales.csv", salesCSV)
	b.action("visualize")
	first := b.get("/chart").Body.Bytes()

	stream := b.action("visualize")
	assert.Contains(t, stream, "The suggested chart code failed")
	assert.Contains(t, stream, `<img src="/chart?v=`)
	assert.Equal(t, first, b.get("/chart").Body.Bytes())
}

func TestActionWithoutDataset(t *testing.T) {
	b := newBrowser(t, nil, "unused")
	stream := b.action("insights")
	assert.Contains(t, stream, "Upload a CSV file first.")
}

func TestResetClearsResults(t *testing.T) {
	b := newBrowser(t, nil, "some insight", "ax.bar(df['region'], df['units'])")
	b.upload("sales.csv", salesCSV)
	b.action("insights")
	b.action("visualize")

	stream := b.action("reset")
	assert.NotContains(t, stream, "AI-Powered Analysis Report")
	assert.NotContains(t, stream, "/chart?v=")
	assert.Equal(t, http.StatusNotFound, b.get("/chart").Code)
	assert.Contains(t, b.get("/").Body.String(), "Your Data Preview", "reset keeps the dataset")
}

func TestTamperedCookieStartsNewSession(t *testing.T) {
	b := newBrowser(t, nil, "unused")
	b.upload("sales.csv", salesCSV)
	b.cookies[0].Value = "forged" + b.cookies[0].Value
	assert.Contains(t, b.get("/").Body.String(), "Awaiting a CSV file")
}

func TestCORSPreflight(t *testing.T) {
	b := newBrowser(t, func(c *Config) { c.CORSOrigins = []string{"http://localhost:3000"} }, "unused")
	req := httptest.NewRequest(http.MethodOptions, "/actions/insights", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := b.do(req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	other := newBrowser(t, nil, "unused")
	rec = other.do(req.Clone(context.Background()))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
