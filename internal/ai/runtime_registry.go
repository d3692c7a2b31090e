package ai

import (
	"fmt"
	"sort"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) (Runtime, error)

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	HTTPTimeout time.Duration
	// Gemini and OpenRouter
	APIKey string
	// BaseURL overrides the provider endpoint (OpenRouter, Gemini).
	BaseURL string
	// Ollama
	Host string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// Providers lists the registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetRuntime creates a Runtime for the given provider. Unknown providers and
// missing credentials are reported as *ConfigurationError.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, error) {
	f, ok := registry[name]
	if !ok {
		return nil, &ConfigurationError{Key: "provider", Reason: fmt.Sprintf("unknown provider %q (known: %v)", name, Providers())}
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	return f(cfg)
}

func requireKey(provider string, cfg RuntimeConfig) error {
	if cfg.APIKey == "" {
		return &ConfigurationError{Key: "api_key", Reason: fmt.Sprintf("%s needs an API key", provider)}
	}
	return nil
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderGemini, func(c RuntimeConfig) (Runtime, error) {
		if err := requireKey(ProviderGemini, c); err != nil {
			return nil, err
		}
		return NewGeminiClient(c.APIKey, c.HTTPTimeout, c.BaseURL)
	})
	RegisterRuntime(ProviderOpenRouter, func(c RuntimeConfig) (Runtime, error) {
		if err := requireKey(ProviderOpenRouter, c); err != nil {
			return nil, err
		}
		return NewClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.BaseURL), nil
	})
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) (Runtime, error) {
		return NewOllamaClient(c.Host, c.HTTPTimeout), nil
	})
}
