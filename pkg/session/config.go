package session

import "fmt"

// Config holds session storage configuration from YAML.
type Config struct {
	// Store specifies the storage backend type.
	// Options: "file", "redis"
	// Default: "file"
	Store string `yaml:"store"`

	// BaseDir is the base directory for file-based storage.
	// Default: ~/.mindbridge
	BaseDir string `yaml:"base_dir"`

	// Redis holds redis backend settings (used when Store is "redis").
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Store:   "file",
		BaseDir: "",
	}
}

// NewBackend constructs the storage backend described by cfg.
func NewBackend(cfg Config) (Backend, error) {
	switch cfg.Store {
	case "", "file":
		return NewFileBackend(cfg.BaseDir)
	case "redis":
		return NewRedisBackend(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
