package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func geminiServer(t *testing.T, status int, body any, seen *string) *ipv4Server {
	t.Helper()
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			b, _ := io.ReadAll(r.Body)
			*seen = r.URL.Path + " " + string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestGeminiGenerate(t *testing.T) {
	var seen string
	srv := geminiServer(t, http.StatusOK, map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "1. Sales rise in Q4."}}},
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 20, "candidatesTokenCount": 6, "totalTokenCount": 26},
	}, &seen)
	defer srv.Close()

	c, err := NewGeminiClient("test-key", 2*time.Second, srv.URL)
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model: DefaultGeminiModel,
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "profile goes here"},
		},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := resp.Choices[0].Message.Content; got != "1. Sales rise in Q4." {
		t.Fatalf("unexpected text %q", got)
	}
	if resp.Usage.TotalTokens != 26 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
	for _, want := range []string{DefaultGeminiModel, "be brief", "profile goes here"} {
		if !strings.Contains(seen, want) {
			t.Fatalf("request %q does not mention %q", seen, want)
		}
	}
}

func TestGeminiErrorsAreClassified(t *testing.T) {
	cases := []struct {
		status int
		state  string
		check  func(error) bool
	}{
		{http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", func(err error) bool { var e *RateLimitError; return errors.As(err, &e) }},
		{http.StatusForbidden, "PERMISSION_DENIED", func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{http.StatusNotFound, "NOT_FOUND", func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) }},
		{http.StatusInternalServerError, "INTERNAL", func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
	}
	for _, tc := range cases {
		t.Run(tc.state, func(t *testing.T) {
			srv := geminiServer(t, tc.status, map[string]any{
				"error": map[string]any{"code": tc.status, "message": "request failed", "status": tc.state},
			}, nil)
			defer srv.Close()
			c, err := NewGeminiClient("test-key", 2*time.Second, srv.URL)
			if err != nil {
				t.Fatalf("NewGeminiClient: %v", err)
			}
			_, err = c.Generate(context.Background(), GenerateRequest{Model: DefaultGeminiModel, Messages: []Message{{Role: "user", Content: "hi"}}})
			if !tc.check(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
		})
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := NewGeminiClient("", time.Second, "")
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
