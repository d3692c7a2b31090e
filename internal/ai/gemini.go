package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the model the hosted app has always asked for.
const DefaultGeminiModel = "gemini-pro-latest"

// GeminiClient sends completions through the Gemini API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient builds a Gemini runtime. baseURL is optional and only
// needed to point at a proxy or a test server.
func NewGeminiClient(apiKey string, httpTimeout time.Duration, baseURL string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{Key: "api_key", Reason: "GEMINI_API_KEY is missing"}
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: httpTimeout},
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"}
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Generate maps the chat messages onto Gemini contents. System messages
// become the system instruction and assistant turns use the model role.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyGeminiError(err)
	}
	out := &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// classifyGeminiError converts genai API failures into the typed errors the
// OpenRouter client produces. Transport failures become UnreachableError.
func classifyGeminiError(err error) error {
	var gerr genai.APIError
	if !errors.As(err, &gerr) {
		var perr *genai.APIError
		if !errors.As(err, &perr) || perr == nil {
			return &UnreachableError{Host: "generativelanguage.googleapis.com", Err: err}
		}
		gerr = *perr
	}
	apiErr := &APIError{StatusCode: gerr.Code, Code: gerr.Status, Message: gerr.Message}
	if gerr.Status == "RESOURCE_EXHAUSTED" && containsAnyFold(gerr.Message, "quota", "billing") && gerr.Code != http.StatusTooManyRequests {
		return &QuotaExceededError{APIError: apiErr}
	}
	if gerr.Code == http.StatusNotFound {
		apiErr.Code = "model_not_found"
	}
	return classifyAPIError(apiErr, nil)
}
