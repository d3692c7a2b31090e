package ai

import (
	"cmp"
	"slices"
)

// ModelInfo describes a model well enough to warn about oversized prompts
// and give a rough cost figure. Prices are approximate.
type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int
	// Prices in USD per 1K tokens. Zero means free or local.
	InputPerK  float64
	OutputPerK float64
}

// Cost prices a single exchange.
func (m ModelInfo) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*m.InputPerK + float64(completionTokens)/1000*m.OutputPerK
}

var catalog = []ModelInfo{
	{"gemini-pro-latest", ProviderGemini, 1 << 20, 0.00125, 0.01},
	{"gemini-flash-latest", ProviderGemini, 1 << 20, 0.0003, 0.0025},
	{"gemini-2.5-flash-lite", ProviderGemini, 1 << 20, 0.0001, 0.0004},

	{"google/gemini-2.5-pro", ProviderOpenRouter, 1 << 20, 0.00125, 0.01},
	{"openai/gpt-4o-mini", ProviderOpenRouter, 128_000, 0.00015, 0.0006},
	{"anthropic/claude-3.5-sonnet", ProviderOpenRouter, 200_000, 0.003, 0.015},
	{"deepseek/deepseek-r1:free", ProviderOpenRouter, 128_000, 0, 0},

	{"llama3.1:8b", ProviderOllama, 8192, 0, 0},
	{"qwen2.5-coder:7b", ProviderOllama, 32_768, 0, 0},
	{"mistral:7b-instruct", ProviderOllama, 8192, 0, 0},
}

// LookupModel finds a model by its exact provider-side name.
func LookupModel(name string) (ModelInfo, bool) {
	i := slices.IndexFunc(catalog, func(m ModelInfo) bool { return m.Name == name })
	if i < 0 {
		return ModelInfo{}, false
	}
	return catalog[i], true
}

// EstimateCostUSD prices an exchange with a known model; ok is false for
// models missing from the catalog.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (usd float64, ok bool) {
	m, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	return m.Cost(promptTokens, completionTokens), true
}

// Catalog returns the known models sorted by provider then name.
func Catalog() []ModelInfo {
	out := slices.Clone(catalog)
	slices.SortFunc(out, func(a, b ModelInfo) int {
		return cmp.Or(cmp.Compare(a.Provider, b.Provider), cmp.Compare(a.Name, b.Name))
	})
	return out
}
