// Package config loads settings from defaults, an optional YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/storyteller/internal/ai"
	"github.com/KaramelBytes/storyteller/internal/utils"
)

// Global configuration structure.
type Global struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP configuration
	HTTPTimeoutSec    int    `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	OpenRouterBaseURL string `mapstructure:"openrouter_base_url" yaml:"openrouter_base_url,omitempty"`
	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// Web server
	ListenAddr         string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	SessionSecret      string   `mapstructure:"session_secret" yaml:"session_secret,omitempty"`
	SessionTTLMin      int      `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`
	MaxUploadMB        int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins,omitempty"`
	DatastarScriptURL  string   `mapstructure:"datastar_script_url" yaml:"datastar_script_url"`

	// Profiling and charts
	HeadRows       int     `mapstructure:"head_rows" yaml:"head_rows"`
	ChartWidthIn   float64 `mapstructure:"chart_width_in" yaml:"chart_width_in"`
	ChartHeightIn  float64 `mapstructure:"chart_height_in" yaml:"chart_height_in"`
	ChartFormat    string  `mapstructure:"chart_format" yaml:"chart_format"`
	ExecTimeoutSec int     `mapstructure:"exec_timeout_sec" yaml:"exec_timeout_sec"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogDev   bool   `mapstructure:"log_dev" yaml:"log_dev"`
}

var defaults = map[string]any{
	"provider":             ai.ProviderGemini,
	"model":                ai.DefaultGeminiModel,
	"max_tokens":           2048,
	"temperature":          0.4,
	"http_timeout_sec":     60,
	"ollama_host":          ai.DefaultOllamaHost,
	"listen_addr":          ":8501",
	"session_ttl_min":      60,
	"max_upload_mb":        10,
	"cors_allowed_origins": []string{},
	"datastar_script_url":  "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js",
	"head_rows":            5,
	"chart_width_in":       6.4,
	"chart_height_in":      4.8,
	"chart_format":         "png",
	"exec_timeout_sec":     20,
	"log_level":            "info",
	"log_dev":              false,
}

// Keys lists every recognized configuration key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(defaults)+3)
	for k := range defaults {
		out = append(out, k)
	}
	out = append(out, "api_key", "openrouter_base_url", "session_secret")
	sort.Strings(out)
	return out
}

// DefaultDir is ~/.storyteller.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".storyteller"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.storyteller/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// The file can hold an API key.
	if err := utils.SafeWriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Command flags are applied by the
// caller on top of the result.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("STORYTELLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	// Provider specific variables are honored as well as STORYTELLER_API_KEY.
	_ = v.BindEnv("api_key", "STORYTELLER_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("session_secret", "STORYTELLER_SESSION_SECRET")
	_ = v.BindEnv("openrouter_base_url", "STORYTELLER_OPENROUTER_BASE_URL")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values no component can work with.
func (c *Global) Validate() error {
	switch c.Provider {
	case ai.ProviderGemini, ai.ProviderOpenRouter, ai.ProviderOllama:
	default:
		return &ai.ConfigurationError{Key: "provider", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	switch c.ChartFormat {
	case "png", "svg":
	default:
		return &ai.ConfigurationError{Key: "chart_format", Reason: fmt.Sprintf("%q is not png or svg", c.ChartFormat)}
	}
	if c.MaxTokens < 0 || c.HeadRows < 0 || c.MaxUploadMB < 0 {
		return &ai.ConfigurationError{Key: "limits", Reason: "max_tokens, head_rows and max_upload_mb must not be negative"}
	}
	return nil
}

// Set assigns a key from its string form, as typed on the command line.
func (c *Global) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid integer: %w", key, err)
		}
		return n, nil
	}
	atof := func() (float64, error) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid number: %w", key, err)
		}
		return f, nil
	}
	var err error
	switch key {
	case "provider":
		c.Provider = value
	case "model":
		c.Model = value
	case "api_key":
		c.APIKey = value
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "temperature":
		c.Temperature, err = atof()
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "openrouter_base_url":
		c.OpenRouterBaseURL = value
	case "ollama_host":
		c.OllamaHost = value
	case "listen_addr":
		c.ListenAddr = value
	case "session_secret":
		c.SessionSecret = value
	case "session_ttl_min":
		c.SessionTTLMin, err = atoi()
	case "max_upload_mb":
		c.MaxUploadMB, err = atoi()
	case "cors_allowed_origins":
		c.CORSAllowedOrigins = nil
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSAllowedOrigins = append(c.CORSAllowedOrigins, o)
			}
		}
	case "datastar_script_url":
		c.DatastarScriptURL = value
	case "head_rows":
		c.HeadRows, err = atoi()
	case "chart_width_in":
		c.ChartWidthIn, err = atof()
	case "chart_height_in":
		c.ChartHeightIn, err = atof()
	case "chart_format":
		c.ChartFormat = strings.ToLower(value)
	case "exec_timeout_sec":
		c.ExecTimeoutSec, err = atoi()
	case "log_level":
		c.LogLevel = value
	case "log_dev":
		c.LogDev, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err != nil {
		return err
	}
	return c.Validate()
}

// HTTPTimeout returns the completion client timeout.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// RuntimeConfig maps the settings onto the completion runtime knobs.
func (c *Global) RuntimeConfig() ai.RuntimeConfig {
	rc := ai.RuntimeConfig{HTTPTimeout: c.HTTPTimeout(), APIKey: c.APIKey, Host: c.OllamaHost}
	if c.Provider == ai.ProviderOpenRouter {
		rc.BaseURL = c.OpenRouterBaseURL
	}
	return rc
}

// Completer builds the completion client for the configured provider.
func (c *Global) Completer() (ai.Completer, error) {
	rt, err := ai.GetRuntime(c.Provider, c.RuntimeConfig())
	if err != nil {
		return nil, err
	}
	return &ai.Completion{Runtime: rt, Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature}, nil
}

// Mask hides all but the last four characters of a secret.
func Mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
