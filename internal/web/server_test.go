package web

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/storyteller/internal/session"
	"github.com/KaramelBytes/storyteller/internal/storyteller"
)

func TestServeListenerShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: cannot open local listener (%v)", err)
	}
	s, err := New(Config{
		Service:  storyteller.New(&scriptedCompleter{replies: []string{"x"}}, nil),
		Sessions: session.NewManager(time.Minute),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	html, err := renderMarkdown("1. **Grow** the West\n2. [link](javascript:alert(1))\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	out := string(html)
	assert.Contains(t, out, "<strong>Grow</strong>")
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "javascript:")
}
