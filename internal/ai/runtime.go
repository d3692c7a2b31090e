package ai

import (
	"context"
	"errors"
	"strings"
)

// Runtime is implemented by completion backends such as Gemini, OpenRouter
// and a local Ollama. It speaks the shared request/response types of this
// package.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Completer turns one prompt into one completion. Each call is a single
// network round trip; nothing is retried.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Provider identifiers accepted in configuration.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// ErrEmptyCompletion is returned when the service answered without text.
var ErrEmptyCompletion = errors.New("completion service returned no text")

// Completion adapts a Runtime and model settings to Completer.
type Completion struct {
	Runtime     Runtime
	Model       string
	MaxTokens   int
	Temperature float64
}

// Complete sends prompt as a single user message and returns the text of the
// first choice.
func (c *Completion) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Runtime.Generate(ctx, GenerateRequest{
		Model:       c.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}
