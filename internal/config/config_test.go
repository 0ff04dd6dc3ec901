package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boq-estimator/internal/prompt"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultProfiles(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	analyzer := Default(ProfileAnalyzer)
	assert.Equal(t, 8000, analyzer.Server.Port)
	assert.Equal(t, prompt.TakeOffExpertV1, analyzer.Prompts.Analysis)

	boq := Default("")
	assert.Equal(t, ProfileBOQ, boq.Server.Profile)
	assert.Equal(t, 8001, boq.Server.Port)
	assert.Equal(t, prompt.TakeOffBriefV1, boq.Prompts.Analysis)
	assert.Equal(t, "gpt-4o", boq.Provider.Model)
	assert.Equal(t, "https://api.openai.com/v1", boq.Provider.BaseURL)
	assert.Equal(t, "sk-env", boq.Provider.APIKey)
	assert.Equal(t, 4096, boq.Provider.MaxTokens)
	assert.Equal(t, []string{"*"}, boq.Server.CORS.AllowedOrigins)
	assert.NoError(t, boq.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load("", Overrides{Profile: ProfileAnalyzer, Port: 9000})
	require.NoError(t, err)
	assert.Equal(t, ProfileAnalyzer, cfg.Server.Profile)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, prompt.TakeOffExpertV1, cfg.Prompts.Analysis)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("MY_CLAUDE_KEY", "sk-ant-file")

	path := writeConfig(t, `
server:
  profile: analyzer
  write_timeout: 2m
provider:
  kind: claude
  api_key: ${MY_CLAUDE_KEY}
  temperature: 0.2
  headers:
    X-Team: estimating
prompts:
  analysis: takeoff-brief/v1
markup:
  overhead_profit: "12.5"
log:
  level: debug
  format: json
`)

	cfg, err := Load(path, Overrides{})
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sk-ant-file", cfg.Provider.APIKey)
	assert.Equal(t, "https://api.anthropic.com", cfg.Provider.BaseURL)
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.Provider.Model)
	require.NotNil(t, cfg.Provider.Temperature)
	assert.InDelta(t, 0.2, *cfg.Provider.Temperature, 1e-9)
	assert.Equal(t, Headers{"X-Team": "estimating"}, cfg.Provider.Headers)
	assert.Equal(t, prompt.TakeOffBriefV1, cfg.Prompts.Analysis)
	assert.Equal(t, prompt.BOQCostedV1, cfg.Prompts.Costing)

	markup, err := cfg.MarkupRates()
	require.NoError(t, err)
	assert.True(t, markup.OverheadProfit.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, markup.Preliminaries.Equal(decimal.NewFromInt(10)))
}

func TestLoadGeminiFallsBackToEnvKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load(writeConfig(t, "provider:\n  kind: gemini\n"), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.Provider.APIKey)
	assert.Empty(t, cfg.Provider.BaseURL)
	assert.Equal(t, "gemini-1.5-pro", cfg.Provider.Model)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Overrides{})
	assert.ErrorContains(t, err, "read config file")

	_, err = Load(writeConfig(t, "server: [broken"), Overrides{})
	assert.ErrorContains(t, err, "parse config file")
}

func TestValidate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "profile", mutate: func(c *Config) { c.Server.Profile = "worker" }, wantErr: "server.profile"},
		{name: "kind", mutate: func(c *Config) { c.Provider.Kind = "mistral" }, wantErr: "provider.kind"},
		{name: "api key", mutate: func(c *Config) { c.Provider.APIKey = "" }, wantErr: "OPENAI_API_KEY"},
		{name: "max tokens", mutate: func(c *Config) { c.Provider.MaxTokens = 0 }, wantErr: "max_tokens"},
		{name: "header", mutate: func(c *Config) { c.Provider.Headers = Headers{"X Bad": "1"} }, wantErr: "canonical HTTP header"},
		{name: "unknown template", mutate: func(c *Config) { c.Prompts.BOQ = "boq-priced/v7" }, wantErr: "prompts.boq"},
		{name: "wrong purpose", mutate: func(c *Config) { c.Prompts.Analysis = prompt.BOQCostedV1 }, wantErr: "not analysis"},
		{name: "markup", mutate: func(c *Config) { c.Markup.Contingency = "-5" }, wantErr: "contingency"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(ProfileBOQ)
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-example")

	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, ProfileBOQ, cfg.Server.Profile)
	assert.Equal(t, 8001, cfg.Server.Port)
	assert.Equal(t, "sk-example", cfg.Provider.APIKey)
}
