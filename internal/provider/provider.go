// Package provider adapts vendor streaming chat protocols to the canonical
// chat.Event stream.
//
// Every adapter is lazy and single-use per range: ranging over the sequence
// returned by StreamChat opens one HTTP stream, and breaking out of the range
// closes it. Failures never escape as Go errors; they surface as one terminal
// chat.Error event.
package provider

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/petasbytes/toolstream/internal/chat"
)

// Provider names accepted by New.
const (
	Anthropic  = "anthropic"
	OpenAI     = "openai"
	OpenRouter = "openrouter"
	Gemini     = "gemini"
	Ollama     = "ollama"
)

// Default models used when New is called with an empty model name.
var DefaultModels = map[string]string{
	Anthropic:  "claude-3-7-sonnet-latest",
	OpenAI:     "gpt-4o-mini",
	OpenRouter: "openai/gpt-4o-mini",
	Gemini:     "gemini-2.0-flash",
	Ollama:     "qwen2.5:7b",
}

// Adapter is the single contract all vendor protocols implement.
type Adapter interface {
	// StreamChat yields canonical events for one model invocation. The
	// sequence always ends with exactly one terminal event.
	StreamChat(ctx context.Context, req Request) iter.Seq[chat.Event]
}

// Request is one model invocation.
type Request struct {
	Transcript  chat.Transcript
	Tools       []chat.ToolSpec
	ToolChoice  chat.ToolChoice
	Temperature *float64
	MaxTokens   int
}

// Credentials holds per-vendor secrets and endpoints.
type Credentials struct {
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	GeminiAPIKey     string
	OllamaHost       string
}

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// Option configures adapter construction.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for vendor calls.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithLogger sets the logger used for dropped-call and protocol warnings.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithBaseURL overrides the vendor endpoint root.
func WithBaseURL(u string) Option { return func(o *options) { o.baseURL = strings.TrimRight(u, "/") } }

// New returns the adapter for providerName. It fails with *ConfigError when the
// provider is unknown or its credentials are missing.
func New(creds Credentials, providerName, model string, opts ...Option) (Adapter, error) {
	o := options{httpClient: http.DefaultClient, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	if model == "" {
		model = DefaultModels[name]
	}
	log := o.logger.With("provider", name, "model", model)

	switch name {
	case Anthropic:
		if creds.AnthropicAPIKey == "" {
			return nil, missingKey(name, "ANTHROPIC_API_KEY")
		}
		return newAnthropicAdapter(creds.AnthropicAPIKey, model, o, log), nil
	case OpenAI:
		if creds.OpenAIAPIKey == "" {
			return nil, missingKey(name, "OPENAI_API_KEY")
		}
		return newOpenAIAdapter(name, creds.OpenAIAPIKey, orDefault(o.baseURL, "https://api.openai.com/v1"), model, o, log), nil
	case OpenRouter:
		if creds.OpenRouterAPIKey == "" {
			return nil, missingKey(name, "OPENROUTER_API_KEY")
		}
		return newOpenAIAdapter(name, creds.OpenRouterAPIKey, orDefault(o.baseURL, "https://openrouter.ai/api/v1"), model, o, log), nil
	case Gemini:
		if creds.GeminiAPIKey == "" {
			return nil, missingKey(name, "GEMINI_API_KEY")
		}
		return newGeminiAdapter(creds.GeminiAPIKey, orDefault(o.baseURL, "https://generativelanguage.googleapis.com/v1beta"), model, o, log), nil
	case Ollama:
		host := orDefault(o.baseURL, strings.TrimRight(creds.OllamaHost, "/"))
		return newOllamaAdapter(orDefault(host, "http://localhost:11434"), model, o, log), nil
	default:
		return nil, &ConfigError{Provider: providerName, Reason: "unknown provider"}
	}
}

// Names lists the supported provider names.
func Names() []string { return []string{Anthropic, OpenAI, OpenRouter, Gemini, Ollama} }

func missingKey(name, env string) error {
	return &ConfigError{Provider: name, Reason: fmt.Sprintf("missing API key (set %s)", env)}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
