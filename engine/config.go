package engine

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheStrategy selects how cache breakpoints are placed on outbound
// requests.
type CacheStrategy string

const (
	// CacheAggressive marks the system block, the tool-declaration block,
	// and the last conversation message (each subject to the token gate).
	CacheAggressive CacheStrategy = "aggressive"
	// CacheConservative marks the system block only.
	CacheConservative CacheStrategy = "conservative"
	// CacheCustom applies no automatic breakpoints; placement is left to
	// the caller.
	CacheCustom CacheStrategy = "custom"
)

// CacheConfig controls prompt-cache shaping.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Strategy CacheStrategy `yaml:"strategy"`

	// Per-section enables, honored by the aggressive strategy.
	System       bool `yaml:"system"`
	Tools        bool `yaml:"tools"`
	Conversation bool `yaml:"conversation"`

	// TTL is the ephemeral cache lifetime tag ("5m" or "1h").
	TTL string `yaml:"ttl"`

	// Strict aborts a request whose response shows neither cache creation
	// nor cache read despite breakpoints being marked.
	Strict bool `yaml:"strict"`
}

// Config is an immutable snapshot of engine configuration. It is taken at
// adapter initialization and at point of use; the engine never mutates it.
type Config struct {
	Provider Backend `yaml:"provider"`
	Model    string  `yaml:"model"`

	// OpenAI configuration.
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"` // optional custom or Azure endpoint
	ReasoningEffort string `yaml:"reasoning_effort"` // reasoning-mode request knob

	// Anthropic configuration.
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`

	// Google/GenAI configuration.
	GoogleAPIKey  string `yaml:"google_api_key"`
	GoogleBaseURL string `yaml:"google_base_url"`

	// Generation knobs.
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float32 `yaml:"temperature"`

	// Orchestration.
	Verbose bool `yaml:"verbose"`

	Caching CacheConfig `yaml:"caching"`

	// Shared client options.
	HTTPClient *http.Client  `yaml:"-"`
	Timeout    time.Duration `yaml:"timeout"`

	// DetectEnv pulls missing API keys from the environment.
	DetectEnv bool `yaml:"detect_env"`
}

// WithEnv returns a copy of the config with missing credentials filled from
// the environment. Applied by New when DetectEnv is set.
func (c Config) WithEnv() Config {
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.AnthropicAPIKey == "" {
		c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.GoogleAPIKey == "" {
		c.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	}
	return c
}

// LoadConfig reads a YAML config file into a snapshot. Environment
// resolution still only happens when DetectEnv is set.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

const defaultMaxTokens = 4096

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}

func (c Config) cacheTTL() string {
	if c.Caching.TTL != "" {
		return c.Caching.TTL
	}
	return "5m"
}
