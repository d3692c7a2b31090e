package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaHost is where a local Ollama listens unless configured.
const DefaultOllamaHost = "http://127.0.0.1:11434"

// OllamaClient completes prompts against a local Ollama runtime through its
// non-streaming chat endpoint.
type OllamaClient struct {
	httpClient *http.Client
	host       string
}

// NewOllamaClient targets host, falling back to DefaultOllamaHost. A
// non-positive timeout means one minute.
func NewOllamaClient(host string, httpTimeout time.Duration) *OllamaClient {
	host = strings.TrimRight(host, "/")
	if host == "" {
		host = DefaultOllamaHost
	}
	if httpTimeout <= 0 {
		httpTimeout = time.Minute
	}
	return &OllamaClient{httpClient: &http.Client{Timeout: httpTimeout}, host: host}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

func newOllamaChatRequest(req GenerateRequest) ollamaChatRequest {
	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return ollamaChatRequest{Model: req.Model, Messages: req.Messages, Options: opts}
}

// Generate runs one chat turn and reports token usage from Ollama's eval
// counters.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	switch {
	case req.Model == "":
		return nil, errors.New("model cannot be empty")
	case len(req.Messages) == 0:
		return nil, errors.New("messages cannot be empty")
	}
	body, err := json.Marshal(newOllamaChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UnreachableError{Host: c.host, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, ollamaError(resp)
	}
	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: out.Message.Content}}},
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}

// ollamaError maps a non-2xx reply onto the typed errors. Ollama answers 404
// for a model that was never pulled.
func ollamaError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if json.Unmarshal(data, &apiErr.Raw) == nil {
		apiErr.Message, _ = apiErr.Raw["error"].(string)
	}
	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return &ModelNotFoundError{APIError: apiErr}
	case code == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case code >= 500:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}
