package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/toolstream/internal/chat"
	"github.com/petasbytes/toolstream/internal/config"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY", "GEMINI_API_KEY", "OLLAMA_HOST",
		"AGT_PROVIDER", "AGT_MODEL", "AGT_MAX_ITERATIONS", "AGT_TOKEN_BUDGET",
		"AGT_STORE", "AGT_STORE_PATH", "AGT_TOOLS_DB",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.NotEmpty(t, cfg.Provider.Model)
	assert.Equal(t, 10, cfg.Loop.MaxIterations)
	assert.Equal(t, config.StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Tools.Timeout)
	choice, err := cfg.ToolChoice()
	require.NoError(t, err)
	assert.Equal(t, chat.ToolChoice{Mode: chat.ToolChoiceAuto}, choice)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
[provider]
name = "openai"
model = "gpt-4o"
temperature = 0.2
tool_choice = "tool:run_query"

[credentials]
openai_api_key = "from-file"

[loop]
max_iterations = 4
token_budget = 8000
system_prompt = "Answer with SQL results."

[store]
driver = "sqlite"
path = "agent.db"

[tools]
database = "shop.db"
rate_per_second = 5.0
burst = 2
timeout = "5s"
`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("AGT_MAX_ITERATIONS", "6")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	require.NotNil(t, cfg.Provider.Temperature)
	assert.InDelta(t, 0.2, *cfg.Provider.Temperature, 1e-9)
	assert.Equal(t, "from-env", cfg.ProviderCredentials().OpenAIAPIKey)
	assert.Equal(t, 6, cfg.Loop.MaxIterations)
	assert.Equal(t, 8000, cfg.Loop.TokenBudget)
	assert.Equal(t, "Answer with SQL results.", cfg.Loop.SystemPrompt)
	assert.Equal(t, config.StoreConfig{Driver: "sqlite", Path: "agent.db"}, cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.Tools.Timeout)
	assert.Equal(t, 2, cfg.Tools.Burst)

	choice, err := cfg.ToolChoice()
	require.NoError(t, err)
	assert.Equal(t, chat.ToolChoice{Mode: chat.ToolChoiceTool, Name: "run_query"}, choice)
}

func TestLoad_ProviderFromEnvPicksItsDefaultModel(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGT_PROVIDER", "ollama")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "qwen2.5:7b", cfg.Provider.Model)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		clearEnv(t)
		_, err := config.Load(writeFile(t, "[loop]\nmax_iteration = 3\n"))
		assert.ErrorContains(t, err, "loop.max_iteration")
	})
	t.Run("bad env integer", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AGT_TOKEN_BUDGET", "lots")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "AGT_TOKEN_BUDGET")
	})
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"zero ceiling", func(c *config.Config) { c.Loop.MaxIterations = 0 }, "loop.max_iterations"},
		{"unknown store", func(c *config.Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"file store without path", func(c *config.Config) { c.Store.Driver = config.StoreFile }, "store.path"},
		{"unknown provider", func(c *config.Config) { c.Provider.Name = "bard" }, "provider.name"},
		{"bad tool choice", func(c *config.Config) { c.Provider.ToolChoice = "tool:" }, "provider.tool_choice"},
		{"negative budget", func(c *config.Config) { c.Loop.TokenBudget = -1 }, "loop.token_budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var ve config.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.NoError(t, config.Default().Validate())
}
