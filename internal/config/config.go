package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"boq-estimator/internal/prompt"
)

const (
	ProfileAnalyzer = "analyzer"
	ProfileBOQ      = "boq"

	KindOpenAI = "openai"
	KindClaude = "claude"
	KindGemini = "gemini"
)

const (
	analyzerPort = 8000
	boqPort      = 8001

	defaultMaxTokens     = 4096
	defaultMaxUploadSize = "32M"
	defaultReadTimeout   = 30 * time.Second
	defaultWriteTimeout  = 5 * time.Minute
)

var kindDefaults = map[string]struct {
	baseURL string
	model   string
	envKey  string
}{
	KindOpenAI: {baseURL: "https://api.openai.com/v1", model: "gpt-4o", envKey: "OPENAI_API_KEY"},
	KindClaude: {baseURL: "https://api.anthropic.com", model: "claude-3-5-sonnet-latest", envKey: "ANTHROPIC_API_KEY"},
	KindGemini: {model: "gemini-1.5-pro", envKey: "GEMINI_API_KEY"},
}

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Prompts  PromptsConfig  `yaml:"prompts"`
	Markup   MarkupConfig   `yaml:"markup"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Profile       string        `yaml:"profile"`
	Port          int           `yaml:"port"`
	MaxUploadSize string        `yaml:"max_upload_size"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	CORS          CORSConfig    `yaml:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProviderConfig captures authentication and model settings for the completion service.
type ProviderConfig struct {
	Kind        string        `yaml:"kind"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	Headers     Headers       `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// PromptsConfig selects a catalog template ID per endpoint step.
type PromptsConfig struct {
	Analysis string `yaml:"analysis"`
	BOQ      string `yaml:"boq"`
	TakeOff  string `yaml:"takeoff"`
	Costing  string `yaml:"costing"`
}

// MarkupConfig holds percentage rates as decimal strings.
type MarkupConfig struct {
	Preliminaries  string `yaml:"preliminaries"`
	OverheadProfit string `yaml:"overhead_profit"`
	Contingency    string `yaml:"contingency"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Overrides are command-line values applied on top of the file.
type Overrides struct {
	Profile string
	Port    int
}

// Default returns the configuration used when no file is given.
func Default(profile string) Config {
	cfg := base()
	cfg.Server.Profile = profile
	cfg.applyDefaults()
	return cfg
}

func base() Config {
	return Config{
		Server: ServerConfig{
			MaxUploadSize: defaultMaxUploadSize,
			ReadTimeout:   defaultReadTimeout,
			WriteTimeout:  defaultWriteTimeout,
			CORS:          CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Provider: ProviderConfig{
			Kind:      KindOpenAI,
			MaxTokens: defaultMaxTokens,
		},
		Prompts: PromptsConfig{
			BOQ:     prompt.BOQPricedV1,
			TakeOff: prompt.TakeOffSectionsV1,
			Costing: prompt.BOQCostedV1,
		},
		Markup: MarkupConfig{
			Preliminaries:  "10",
			OverheadProfit: "15",
			Contingency:    "5",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads YAML configuration from disk, applies overrides and defaults, and
// validates the result. An empty path yields the defaults.
func Load(path string, overrides Overrides) (Config, error) {
	cfg := base()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if overrides.Profile != "" {
		cfg.Server.Profile = overrides.Profile
	}
	if overrides.Port != 0 {
		cfg.Server.Port = overrides.Port
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Profile == "" {
		c.Server.Profile = ProfileBOQ
	}
	if c.Server.Port == 0 {
		c.Server.Port = boqPort
		if c.Server.Profile == ProfileAnalyzer {
			c.Server.Port = analyzerPort
		}
	}
	if c.Prompts.Analysis == "" {
		c.Prompts.Analysis = prompt.TakeOffBriefV1
		if c.Server.Profile == ProfileAnalyzer {
			c.Prompts.Analysis = prompt.TakeOffExpertV1
		}
	}

	if c.Provider.Kind == "" {
		c.Provider.Kind = KindOpenAI
	}
	defaults, ok := kindDefaults[c.Provider.Kind]
	if !ok {
		return
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaults.baseURL
	}
	if c.Provider.Model == "" {
		c.Provider.Model = defaults.model
	}
	c.Provider.APIKey = strings.TrimSpace(os.ExpandEnv(c.Provider.APIKey))
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv(defaults.envKey)
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	switch c.Server.Profile {
	case ProfileAnalyzer, ProfileBOQ:
	default:
		return fmt.Errorf("server.profile %q must be one of %q or %q", c.Server.Profile, ProfileAnalyzer, ProfileBOQ)
	}
	if strings.TrimSpace(c.Server.MaxUploadSize) == "" {
		return fmt.Errorf("server.max_upload_size must be provided")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if err := validateProvider(c.Provider); err != nil {
		return err
	}
	if err := c.Prompts.validate(); err != nil {
		return err
	}
	if _, err := c.MarkupRates(); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	return nil
}

// MarkupRates parses the configured markup percentages.
func (c Config) MarkupRates() (prompt.Markup, error) {
	return prompt.ParseMarkup(c.Markup.Preliminaries, c.Markup.OverheadProfit, c.Markup.Contingency)
}

func validateProvider(p ProviderConfig) error {
	defaults, ok := kindDefaults[p.Kind]
	if !ok {
		return fmt.Errorf("provider.kind %q must be one of %q, %q or %q", p.Kind, KindOpenAI, KindClaude, KindGemini)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return fmt.Errorf("provider %s: api_key must be provided (or set %s)", p.Kind, defaults.envKey)
	}
	if p.Kind != KindGemini && strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", p.Kind)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("provider %s: model must not be empty", p.Kind)
	}
	if p.MaxTokens <= 0 {
		return fmt.Errorf("provider %s: max_tokens must be positive, got %d", p.Kind, p.MaxTokens)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("provider %s: timeout must not be negative", p.Kind)
	}

	for headerKey := range p.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", p.Kind, headerKey)
		}
	}
	return nil
}

func (p PromptsConfig) validate() error {
	catalog := prompt.DefaultCatalog()
	for _, check := range []struct {
		key     string
		id      string
		purpose prompt.Purpose
	}{
		{"prompts.analysis", p.Analysis, prompt.PurposeAnalysis},
		{"prompts.boq", p.BOQ, prompt.PurposeBOQ},
		{"prompts.takeoff", p.TakeOff, prompt.PurposeTakeOff},
		{"prompts.costing", p.Costing, prompt.PurposeCosting},
	} {
		if _, err := catalog.Resolve(check.id, check.purpose); err != nil {
			return fmt.Errorf("%s: %w", check.key, err)
		}
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
