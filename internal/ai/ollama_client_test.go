package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestOllamaGenerateSuccess(t *testing.T) {
	var captured ollamaChatRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "hello from ollama"},
			"done":              true,
			"prompt_eval_count": 12,
			"eval_count":        5,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 2*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Generate(ctx, GenerateRequest{Model: "llama3.1:8b", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 16, Temperature: 0.2})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content != "hello from ollama" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Fatalf("expected usage from eval counts, got %+v", resp.Usage)
	}
	if captured.Stream {
		t.Fatalf("request must not ask for streaming")
	}
	if captured.Options["num_predict"] != float64(16) || captured.Options["temperature"] != 0.2 {
		t.Fatalf("unexpected options: %+v", captured.Options)
	}
}

func TestOllamaGenerateErrors(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusBadRequest, func(err error) bool { var e *BadRequestError; return errors.As(err, &e) }},
		{http.StatusNotFound, func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) }},
		{http.StatusInternalServerError, func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
	}
	for _, tc := range cases {
		srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "nope"})
		}))
		c := NewOllamaClient(srv.URL, 2*time.Second)
		_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: []Message{{Role: "user", Content: "hi"}}})
		srv.Close()
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected error %T: %v", tc.status, err, err)
		}
	}
}

func TestOllamaGenerateEmptyMessages(t *testing.T) {
	c := NewOllamaClient("", 2*time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: []Message{}})
	if err == nil || err.Error() != "messages cannot be empty" {
		t.Fatalf("expected 'messages cannot be empty' error, got: %v", err)
	}
	if c.host != DefaultOllamaHost {
		t.Fatalf("expected default host, got %s", c.host)
	}
}

func TestOllamaGenerateMultipleMessages(t *testing.T) {
	// Capture the request to verify all messages are preserved
	var captured ollamaChatRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "response"},
		})
	}))
	defer srv.Close()

	messages := []Message{
		{Role: "system", Content: "You are a data analyst"},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there!"},
		{Role: "user", Content: "Describe the data"},
	}
	c := NewOllamaClient(srv.URL, 2*time.Second)
	if _, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: messages}); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(captured.Messages) != len(messages) {
		t.Fatalf("expected %d messages, got %d", len(messages), len(captured.Messages))
	}
	for i, want := range messages {
		if captured.Messages[i] != want {
			t.Fatalf("message %d: expected %+v, got %+v", i, want, captured.Messages[i])
		}
	}
}
