package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the savedobjects API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Pagination PaginationConfig `yaml:"pagination"`
	Search     SearchConfig     `yaml:"search"`
	Types      []TypeConfig     `yaml:"types"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds connection settings for Redis or Valkey.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// PaginationConfig bounds the per_page of a find.
type PaginationConfig struct {
	DefaultPerPage int `yaml:"default_per_page"`
	MaxPerPage     int `yaml:"max_per_page"`
}

// SearchConfig holds search proxy settings.
type SearchConfig struct {
	DefaultStrategy string `yaml:"default_strategy"`
	MaxSize         int    `yaml:"max_size"`
	AsyncWaitMS     int    `yaml:"async_wait_ms"` // wait_for_completion_ms default
	AsyncTTLSec     int    `yaml:"async_ttl_sec"` // how long finished async results are kept
}

// TypeConfig registers one saved-object type.
type TypeConfig struct {
	Name          string `yaml:"name"`
	NamespaceType string `yaml:"namespace_type"` // single (default), multiple, agnostic
	Hidden        bool   `yaml:"hidden"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "savedobjects:"
	}
	if c.Pagination.DefaultPerPage <= 0 {
		c.Pagination.DefaultPerPage = 20
	}
	if c.Pagination.MaxPerPage <= 0 {
		c.Pagination.MaxPerPage = 10000
	}
	if c.Search.DefaultStrategy == "" {
		c.Search.DefaultStrategy = "fts"
	}
	if c.Search.MaxSize <= 0 {
		c.Search.MaxSize = 1000
	}
	if c.Search.AsyncWaitMS <= 0 {
		c.Search.AsyncWaitMS = 100
	}
	if c.Search.AsyncTTLSec <= 0 {
		c.Search.AsyncTTLSec = 300
	}
	for i := range c.Types {
		if c.Types[i].NamespaceType == "" {
			c.Types[i].NamespaceType = "single"
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Pagination.DefaultPerPage > c.Pagination.MaxPerPage {
		return fmt.Errorf("pagination.default_per_page %d exceeds max_per_page %d",
			c.Pagination.DefaultPerPage, c.Pagination.MaxPerPage)
	}
	switch c.Search.DefaultStrategy {
	case "fts", "async":
	default:
		return fmt.Errorf("search.default_strategy must be \"fts\" or \"async\", got %q", c.Search.DefaultStrategy)
	}
	if len(c.Types) == 0 {
		return fmt.Errorf("types must register at least one saved-object type")
	}
	for i, t := range c.Types {
		if t.Name == "" {
			return fmt.Errorf("types[%d].name is required", i)
		}
		switch t.NamespaceType {
		case "", "single", "multiple", "agnostic":
		default:
			return fmt.Errorf(
				"types.%s.namespace_type must be \"single\", \"multiple\" or \"agnostic\", got %q",
				t.Name, t.NamespaceType,
			)
		}
	}
	return nil
}

// AsyncWait returns the default wait_for_completion_ms as a duration.
func (s SearchConfig) AsyncWait() time.Duration {
	return time.Duration(s.AsyncWaitMS) * time.Millisecond
}

// AsyncTTL returns how long finished async searches are kept.
func (s SearchConfig) AsyncTTL() time.Duration {
	return time.Duration(s.AsyncTTLSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
