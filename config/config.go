// Package config loads process configuration for the toolmesh binary from
// the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Providers understood by the binary.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

var (
	// ErrUnknownProvider is returned for a provider other than anthropic or openai.
	ErrUnknownProvider = errors.New("unknown model provider")
	// ErrMissingAPIKey is returned when the selected provider has no key.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Config is the complete process configuration.
type Config struct {
	Port int    `env:"PORT" envDefault:"3001"`
	Host string `env:"HOST" envDefault:""`

	Provider        string `env:"TOOLMESH_PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	MaxTokens       int64  `env:"TOOLMESH_MAX_TOKENS" envDefault:"8192"`

	MaxIterations  int           `env:"TOOLMESH_MAX_ITERATIONS" envDefault:"20"`
	MaxParallel    int           `env:"TOOLMESH_MAX_PARALLEL" envDefault:"8"`
	MaxResultChars int           `env:"TOOLMESH_MAX_RESULT_CHARS" envDefault:"50000"`
	RequestTimeout time.Duration `env:"TOOLMESH_REQUEST_TIMEOUT" envDefault:"10m"`

	ProjectRoot     string        `env:"TOOLMESH_PROJECT_ROOT" envDefault:"."`
	WritableRoot    string        `env:"TOOLMESH_WRITABLE_ROOT" envDefault:"workspace/"`
	ProtectedPaths  []string      `env:"TOOLMESH_PROTECTED_PATHS" envSeparator:","`
	AllowedCommands []string      `env:"TOOLMESH_ALLOWED_COMMANDS" envSeparator:","`
	CommandTimeout  time.Duration `env:"TOOLMESH_COMMAND_TIMEOUT" envDefault:"30s"`

	DatabasePath     string `env:"TOOLMESH_DATABASE_PATH"`
	DatabaseReadOnly bool   `env:"TOOLMESH_DATABASE_READ_ONLY" envDefault:"true"`
	TranscriptDBPath string `env:"TOOLMESH_TRANSCRIPT_DB"`

	SecretsFile     string `env:"SECRETS_FILE" envDefault:".secrets.enc"`
	SecretsPassword string `env:"SECRETS_ENCRYPTION_KEY" envDefault:"default-dev-key-change-in-prod"`

	EnableBrowser  bool   `env:"TOOLMESH_ENABLE_BROWSER" envDefault:"true"`
	EmbeddingModel string `env:"TOOLMESH_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	Debug     bool   `env:"DEBUG"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFrom reads configuration from vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

// Validate checks that the selected provider is usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}

	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MediaEnabled reports whether an OpenAI key is available for the media and
// embedding features.
func (c *Config) MediaEnabled() bool {
	return c.OpenAIAPIKey != "" && c.OpenAIAPIKey != "sk-your-openai-api-key-here"
}
