package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	openRouterURL      = "https://openrouter.ai/api/v1"
	defaultHTTPTimeout = time.Minute
)

// Client talks to the OpenRouter chat completions API. Each Generate call is
// exactly one HTTP request.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// APIError is a non-2xx completion reply with whatever detail the service
// put in the body.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	parts := []string{"status " + strconv.Itoa(e.StatusCode)}
	if e.Code != "" {
		parts = append(parts, "code "+e.Code)
	}
	if e.RequestID != "" {
		parts = append(parts, "request "+e.RequestID)
	}
	s := strings.Join(parts, ", ")
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// NewClient builds an OpenRouter client. A non-positive timeout means one
// minute.
func NewClient(apiKey string, httpTimeout time.Duration) *Client {
	return NewClientWithBaseURL(apiKey, httpTimeout, "")
}

// NewClientWithBaseURL points the client at another OpenAI-compatible
// endpoint, such as a test server.
func NewClientWithBaseURL(apiKey string, httpTimeout time.Duration, baseURL string) *Client {
	if httpTimeout <= 0 {
		httpTimeout = defaultHTTPTimeout
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = openRouterURL
	}
	return &Client{httpClient: &http.Client{Timeout: httpTimeout}, apiKey: apiKey, baseURL: baseURL}
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, &ConfigurationError{Key: "api_key", Reason: "OPENROUTER_API_KEY is missing"}
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UnreachableError{Host: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, classifyAPIError(decodeAPIError(resp), resp)
	}
	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	out.RequestID = requestID(resp.Header)
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, req GenerateRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	h := r.Header
	h.Set("Authorization", "Bearer "+c.apiKey)
	h.Set("Content-Type", "application/json")
	// OpenRouter attributes traffic by these two headers.
	h.Set("HTTP-Referer", "https://github.com/KaramelBytes/storyteller")
	h.Set("X-Title", "Data Storyteller")
	return r, nil
}

// decodeAPIError reads an error body shaped {"error": {...}}, {"error": "..."}
// or {"message": ...}. A body that is not JSON becomes the message.
func decodeAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID(resp.Header)}
	if err := json.Unmarshal(data, &apiErr.Raw); err != nil || apiErr.Raw == nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	fields := apiErr.Raw
	switch e := apiErr.Raw["error"].(type) {
	case map[string]any:
		fields = e
	case string:
		apiErr.Message = e
	}
	if msg, ok := fields["message"].(string); ok {
		apiErr.Message = msg
	}
	apiErr.Code, _ = fields["code"].(string)
	return apiErr
}

// parseRetryAfter accepts both forms of the Retry-After header: a number of
// seconds or an HTTP date. Dates in the past yield zero.
func parseRetryAfter(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0, fmt.Errorf("invalid Retry-After: %q", v)
	}
	return max(time.Until(t).Truncate(time.Second), 0), nil
}

// classifyAPIError narrows an APIError to the typed error callers branch on.
// resp may be nil when the error did not come from a raw HTTP reply.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	status, msg := apiErr.StatusCode, strings.ToLower(apiErr.Message)
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case status == http.StatusTooManyRequests:
		rl := &RateLimitError{APIError: apiErr}
		if resp != nil {
			if d, err := parseRetryAfter(resp.Header.Get("Retry-After")); err == nil && d > 0 {
				rl.RetryAfter = d
			}
		}
		return rl
	case status == http.StatusNotFound:
		if apiErr.Code == "model_not_found" || (strings.Contains(msg, "model") && strings.Contains(msg, "not found")) {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return apiErr
	case status == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case apiErr.Code == "quota_exceeded" || containsAnyFold(msg, "quota", "billing", "limit exceeded"):
		return &QuotaExceededError{APIError: apiErr}
	case status >= 500:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func containsAnyFold(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

var requestIDHeaders = []string{"X-Request-Id", "OpenAI-Request-ID", "Openrouter-Request-ID", "X-Amzn-Requestid"}

func requestID(h http.Header) string {
	for _, k := range requestIDHeaders {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return ""
}
