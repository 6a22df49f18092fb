// Package config loads endokit's YAML configuration.
//
// Values are resolved in this order, later sources winning: built-in defaults,
// the global file at $ENDOKIT_HOME/config.yaml, an optional overlay file given
// with --config, environment variables, and finally command-line flags, which
// the cli package applies on top of the loaded Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvHome             = "ENDOKIT_HOME"
	EnvLogLevel         = "ENDOKIT_LOG_LEVEL"
	EnvLogFormat        = "ENDOKIT_LOG_FORMAT"
	EnvSecretsDir       = "ENDOKIT_SECRETS_DIR"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	configFileName = "config.yaml"
	homeDirName    = ".endokit"
	maxConcurrency = 64
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete endokit configuration.
type Config struct {
	Logging   LoggingConfig  `yaml:"logging"`
	Secrets   SecretsConfig  `yaml:"secrets"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Analyze   AnalyzeConfig  `yaml:"analyze"`
	Improve   ImproveConfig  `yaml:"improve"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// SecretsConfig locates the encrypted key store.
type SecretsConfig struct {
	Dir string `yaml:"dir"`
}

// ProviderConfig describes one model API.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	APIKeyName string        `yaml:"api_key_name"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BatchConfig holds the dispatcher and retry settings shared by batch commands.
type BatchConfig struct {
	Concurrency int           `yaml:"concurrency"`
	RateLimit   time.Duration `yaml:"rate_limit"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// AnalyzeConfig configures the image folder analyzer.
type AnalyzeConfig struct {
	Provider  string      `yaml:"provider"`
	Sampling  int         `yaml:"sampling"`
	MaxTokens int         `yaml:"max_tokens"`
	RefImage  string      `yaml:"ref_image,omitempty"`
	Batch     BatchConfig `yaml:"batch"`
}

// ImproveConfig configures the transcript improver.
type ImproveConfig struct {
	Provider    string      `yaml:"provider"`
	ChunkSize   int         `yaml:"chunk_size"`
	MaxTokens   int         `yaml:"max_tokens"`
	Temperature float64     `yaml:"temperature"`
	Batch       BatchConfig `yaml:"batch"`
}

// Default returns the built-in configuration.
func Default() *Config {
	secretsDir := ""
	if dir, err := ConfigDir(); err == nil {
		secretsDir = filepath.Join(dir, "secrets")
	}

	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Secrets: SecretsConfig{Dir: secretsDir},
		OpenAI: ProviderConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4-turbo",
			APIKeyName: "OPENAI_API_KEY",
			MaxTokens:  3000,
			Timeout:    2 * time.Minute,
		},
		Anthropic: ProviderConfig{
			BaseURL:    "https://api.anthropic.com",
			Model:      "claude-3-opus-20240229",
			APIKeyName: "ANTHROPIC_API_KEY",
			MaxTokens:  1024,
			Timeout:    2 * time.Minute,
		},
		Analyze: AnalyzeConfig{
			Provider:  ProviderOpenAI,
			Sampling:  1,
			MaxTokens: 3000,
			Batch: BatchConfig{
				Concurrency: 4,
				RateLimit:   6 * time.Second,
				MaxAttempts: 3,
				BaseDelay:   4 * time.Second,
				MaxDelay:    10 * time.Second,
			},
		},
		Improve: ImproveConfig{
			Provider:    ProviderOpenAI,
			ChunkSize:   2000,
			MaxTokens:   4000,
			Temperature: 0.3,
			Batch: BatchConfig{
				Concurrency: 5,
				RateLimit:   3 * time.Second,
				MaxAttempts: 3,
				BaseDelay:   4 * time.Second,
				MaxDelay:    10 * time.Second,
			},
		},
	}
}

// Load builds the effective configuration: defaults, then the global file if
// it exists, then overlayPath if set, then environment overrides. The result
// is validated.
func Load(overlayPath string) (*Config, error) {
	cfg := Default()

	globalPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(globalPath); statErr == nil {
		if mergeErr := ShallowMergeYAML(cfg, globalPath); mergeErr != nil {
			return nil, mergeErr
		}
	}

	if overlayPath != "" {
		if mergeErr := ShallowMergeYAML(cfg, overlayPath); mergeErr != nil {
			return nil, mergeErr
		}
	}

	cfg.ApplyEnv()

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, validateErr
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvSecretsDir); v != "" {
		c.Secrets.Dir = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv(EnvAnthropicBaseURL); v != "" {
		c.Anthropic.BaseURL = v
	}
}

// Provider returns the settings for the named provider.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	switch name {
	case ProviderOpenAI:
		return c.OpenAI, nil
	case ProviderAnthropic:
		return c.Anthropic, nil
	default:
		return ProviderConfig{}, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, name)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json, got %q", ErrInvalidConfig, c.Logging.Format)
	}

	if _, err := c.Provider(c.Analyze.Provider); err != nil {
		return fmt.Errorf("analyze.provider: %w", err)
	}
	if _, err := c.Provider(c.Improve.Provider); err != nil {
		return fmt.Errorf("improve.provider: %w", err)
	}

	if c.Analyze.Sampling < 1 {
		return fmt.Errorf("%w: analyze.sampling must be at least 1", ErrInvalidConfig)
	}
	if c.Improve.ChunkSize < 1 {
		return fmt.Errorf("%w: improve.chunk_size must be at least 1", ErrInvalidConfig)
	}

	if err := c.Analyze.Batch.validate("analyze.batch"); err != nil {
		return err
	}
	return c.Improve.Batch.validate("improve.batch")
}

func (b BatchConfig) validate(section string) error {
	if b.Concurrency < 1 || b.Concurrency > maxConcurrency {
		return fmt.Errorf("%w: %s.concurrency must be between 1 and %d", ErrInvalidConfig, section, maxConcurrency)
	}
	if b.MaxAttempts < 1 {
		return fmt.Errorf("%w: %s.max_attempts must be at least 1", ErrInvalidConfig, section)
	}
	if b.RateLimit < 0 || b.BaseDelay < 0 || b.MaxDelay < 0 {
		return fmt.Errorf("%w: %s durations cannot be negative", ErrInvalidConfig, section)
	}
	return nil
}

// Save writes c as YAML to path, creating the parent directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if mkErr := os.MkdirAll(filepath.Dir(path), 0o750); mkErr != nil {
		return fmt.Errorf("creating config directory: %w", mkErr)
	}

	if writeErr := os.WriteFile(path, data, 0o600); writeErr != nil {
		return fmt.Errorf("writing config %s: %w", path, writeErr)
	}
	return nil
}

// ConfigDir returns $ENDOKIT_HOME, or ~/.endokit when unset.
func ConfigDir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, homeDirName), nil
}

// ConfigPath returns the path of the global configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}
