// Package mindbridge holds the top-level configuration for the relay server
// and the chat client binaries.
package mindbridge

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mindbridge-dev/mindbridge/pkg/session"
)

// Config represents the top-level configuration
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Relay    RelayConfig    `yaml:"relay,omitempty"`
	Session  session.Config `yaml:"session,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Port the server listens on. Default: 8080.
	Port int `yaml:"port"`
}

// ProviderConfig selects and configures the generative backend.
type ProviderConfig struct {
	// Name is the registered provider name ("gemini", "openai").
	// Default: "gemini".
	Name string `yaml:"name"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// APIKey is the backend credential. Usually left empty so the
	// provider falls back to its environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend endpoint (testing, proxies).
	BaseURL string `yaml:"base_url"`
}

// RelayConfig tunes the chat route.
type RelayConfig struct {
	// MaxTokens caps the reply length. Zero means provider default.
	MaxTokens int `yaml:"max_tokens"`

	// PolicyFile replaces the built-in system instruction with the
	// contents of a file.
	PolicyFile string `yaml:"policy_file"`

	// RateLimit is the per-client requests-per-second budget.
	// Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the per-client burst allowance.
	RateBurst int `yaml:"rate_burst"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Provider: ProviderConfig{
			Name:  "gemini",
			Model: "gemini-1.5-flash",
		},
		Session: session.DefaultConfig(),
	}
}

// FileReader interface for reading files (testable)
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader implements FileReader using os.ReadFile
type OSFileReader struct{}

func (r *OSFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) // #nosec G304 - path is from trusted config file input
}

// ConfigLoader loads configuration from a file
type ConfigLoader struct {
	fileReader FileReader
}

// NewConfigLoader creates a new config loader
func NewConfigLoader(fr FileReader) *ConfigLoader {
	return &ConfigLoader{fileReader: fr}
}

// LoadConfig loads and parses a config file. Unknown keys are rejected so
// typos surface at startup instead of silently falling back to defaults.
// Missing sections keep their default values.
func (cl *ConfigLoader) LoadConfig(configPath string) (*Config, error) {
	data, err := cl.fileReader.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Relay.MaxTokens < 0 {
		return fmt.Errorf("relay max_tokens must not be negative")
	}
	if c.Relay.RateLimit < 0 {
		return fmt.Errorf("relay rate_limit must not be negative")
	}
	if c.Relay.RateLimit > 0 && c.Relay.RateBurst <= 0 {
		return fmt.Errorf("relay rate_burst must be positive when rate_limit is set")
	}
	return nil
}
