// Package config loads agent settings from an optional TOML file and the
// environment. Environment variables win over the file; the file wins over
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/petasbytes/toolstream/internal/chat"
	"github.com/petasbytes/toolstream/internal/provider"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config is the full agent configuration.
type Config struct {
	Provider    ProviderConfig    `toml:"provider"`
	Credentials CredentialsConfig `toml:"credentials"`
	Loop        LoopConfig        `toml:"loop"`
	Store       StoreConfig       `toml:"store"`
	Tools       ToolsConfig       `toml:"tools"`
	Server      ServerConfig      `toml:"server"`
}

// ProviderConfig selects the default vendor and request parameters.
type ProviderConfig struct {
	Name        string   `toml:"name"`
	Model       string   `toml:"model"`
	Temperature *float64 `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
	// ToolChoice is auto, required, none or tool:<name>.
	ToolChoice string `toml:"tool_choice"`
}

// CredentialsConfig holds vendor secrets. Prefer the environment for these.
type CredentialsConfig struct {
	AnthropicAPIKey  string `toml:"anthropic_api_key"`
	OpenAIAPIKey     string `toml:"openai_api_key"`
	OpenRouterAPIKey string `toml:"openrouter_api_key"`
	GeminiAPIKey     string `toml:"gemini_api_key"`
	OllamaHost       string `toml:"ollama_host"`
}

// LoopConfig bounds one user turn.
type LoopConfig struct {
	MaxIterations int    `toml:"max_iterations"`
	TokenBudget   int    `toml:"token_budget"` // 0 disables windowing
	SystemPrompt  string `toml:"system_prompt"`
}

// StoreConfig selects the message store.
type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// ToolsConfig configures the reference SQL tools.
type ToolsConfig struct {
	Database      string        `toml:"database"` // empty disables the SQL tools
	MaxRows       int           `toml:"max_rows"`
	RatePerSecond float64       `toml:"rate_per_second"`
	Burst         int           `toml:"burst"`
	Timeout       time.Duration `toml:"timeout"`
}

// ServerConfig configures -serve mode.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Name: provider.Anthropic, ToolChoice: string(chat.ToolChoiceAuto)},
		Loop:     LoopConfig{MaxIterations: 10},
		Store:    StoreConfig{Driver: StoreMemory},
		Tools:    ToolsConfig{MaxRows: 100, Timeout: 30 * time.Second},
		Server:   ServerConfig{Addr: ":8080"},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			keys := make([]string, len(undec))
			for i, k := range undec {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = provider.DefaultModels[cfg.Provider.Name]
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides copies set environment variables over the loaded values.
func (c *Config) ApplyEnvOverrides() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"ANTHROPIC_API_KEY", &c.Credentials.AnthropicAPIKey},
		{"OPENAI_API_KEY", &c.Credentials.OpenAIAPIKey},
		{"OPENROUTER_API_KEY", &c.Credentials.OpenRouterAPIKey},
		{"GEMINI_API_KEY", &c.Credentials.GeminiAPIKey},
		{"OLLAMA_HOST", &c.Credentials.OllamaHost},
		{"AGT_PROVIDER", &c.Provider.Name},
		{"AGT_MODEL", &c.Provider.Model},
		{"AGT_STORE", &c.Store.Driver},
		{"AGT_STORE_PATH", &c.Store.Path},
		{"AGT_TOOLS_DB", &c.Tools.Database},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"AGT_MAX_ITERATIONS", &c.Loop.MaxIterations},
		{"AGT_TOKEN_BUDGET", &c.Loop.TokenBudget},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", i.env, v, err)
		}
		*i.dst = n
	}
	return nil
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := provider.DefaultModels[c.Provider.Name]; !ok {
		add("provider.name", "unknown provider %q, must be one of: %s", c.Provider.Name, strings.Join(provider.Names(), ", "))
	}
	if _, err := c.ToolChoice(); err != nil {
		add("provider.tool_choice", "%v", err)
	}
	if c.Provider.MaxTokens < 0 {
		add("provider.max_tokens", "must not be negative")
	}
	if t := c.Provider.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("provider.temperature", "must be between 0 and 2")
	}
	if c.Loop.MaxIterations <= 0 {
		add("loop.max_iterations", "must be positive, got %d", c.Loop.MaxIterations)
	}
	if c.Loop.TokenBudget < 0 {
		add("loop.token_budget", "must not be negative")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if c.Store.Path == "" {
			add("store.path", "required for the %s driver", c.Store.Driver)
		}
	default:
		add("store.driver", "unknown driver %q, must be one of: memory, file, sqlite", c.Store.Driver)
	}
	if c.Tools.RatePerSecond < 0 {
		add("tools.rate_per_second", "must not be negative")
	}
	if c.Tools.Timeout < 0 {
		add("tools.timeout", "must not be negative")
	}
	return errors.Join(errs...)
}

// ToolChoice parses Provider.ToolChoice.
func (c *Config) ToolChoice() (chat.ToolChoice, error) {
	raw := strings.TrimSpace(c.Provider.ToolChoice)
	switch chat.ToolChoiceMode(raw) {
	case "", chat.ToolChoiceAuto:
		return chat.ToolChoice{Mode: chat.ToolChoiceAuto}, nil
	case chat.ToolChoiceRequired, chat.ToolChoiceNone:
		return chat.ToolChoice{Mode: chat.ToolChoiceMode(raw)}, nil
	}
	if name, ok := strings.CutPrefix(raw, "tool:"); ok && name != "" {
		return chat.ToolChoice{Mode: chat.ToolChoiceTool, Name: name}, nil
	}
	return chat.ToolChoice{}, fmt.Errorf("invalid tool choice %q, must be auto, required, none or tool:<name>", raw)
}

// ProviderCredentials returns the secrets in the shape provider.New expects.
func (c *Config) ProviderCredentials() provider.Credentials {
	return provider.Credentials{
		AnthropicAPIKey:  c.Credentials.AnthropicAPIKey,
		OpenAIAPIKey:     c.Credentials.OpenAIAPIKey,
		OpenRouterAPIKey: c.Credentials.OpenRouterAPIKey,
		GeminiAPIKey:     c.Credentials.GeminiAPIKey,
		OllamaHost:       c.Credentials.OllamaHost,
	}
}
