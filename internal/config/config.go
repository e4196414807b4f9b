// Package config provides configuration loading and validation for the
// factoring engine, its HTTP server, and the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full runtime configuration. Defaults are applied first,
// then an optional YAML file, then environment variables. The environment
// always wins so deployments can override a checked-in config file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Engine   EngineConfig   `yaml:"engine"`
	FactorDB FactorDBConfig `yaml:"factordb"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// AuthConfig toggles bearer-token enforcement on mutating API routes. When
// enabled, JWT_SECRET must also be set (see NewJWTConfig).
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DatabaseConfig controls the PostgreSQL connection used for job persistence.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// CacheConfig controls the local SQLite factor cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EngineConfig controls the factoring engine and its worker queue.
type EngineConfig struct {
	Workers            int           `yaml:"workers"`
	QueueSize          int           `yaml:"queue_size"`
	JobTimeout         time.Duration `yaml:"job_timeout"`
	CheckpointInterval uint64        `yaml:"checkpoint_interval"`
}

// FactorDBConfig controls the remote factordb.com lookup client.
type FactorDBConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load builds a Config. If path is non-empty the YAML file at that location
// is applied over the defaults before the environment is consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "factor_cache.db",
		},
		Engine: EngineConfig{
			Workers:            4,
			QueueSize:          256,
			JobTimeout:         0, // no per-job deadline
			CheckpointInterval: 10_000,
		},
		FactorDB: FactorDBConfig{
			Enabled: false,
			BaseURL: "https://factordb.com",
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Config) applyFile(path string) error {
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnvString("PORT", c.Server.Port)
	c.Database.URL = getEnvString("DATABASE_URL", c.Database.URL)
	c.Cache.Path = getEnvString("FACTOR_CACHE_PATH", c.Cache.Path)
	c.FactorDB.BaseURL = getEnvString("FACTORDB_BASE_URL", c.FactorDB.BaseURL)

	var err error
	if c.Auth.Enabled, err = getEnvBool("AUTH_ENABLED", c.Auth.Enabled); err != nil {
		return err
	}
	if c.Cache.Enabled, err = getEnvBool("FACTOR_CACHE_ENABLED", c.Cache.Enabled); err != nil {
		return err
	}
	if c.FactorDB.Enabled, err = getEnvBool("FACTORDB_ENABLED", c.FactorDB.Enabled); err != nil {
		return err
	}
	if c.FactorDB.Timeout, err = getEnvDuration("FACTORDB_TIMEOUT", c.FactorDB.Timeout); err != nil {
		return err
	}
	if c.Engine.Workers, err = getEnvInt("ENGINE_WORKERS", c.Engine.Workers); err != nil {
		return err
	}
	if c.Engine.QueueSize, err = getEnvInt("ENGINE_QUEUE_SIZE", c.Engine.QueueSize); err != nil {
		return err
	}
	if c.Engine.JobTimeout, err = getEnvDuration("ENGINE_JOB_TIMEOUT", c.Engine.JobTimeout); err != nil {
		return err
	}

	interval, err := getEnvInt("ENGINE_CHECKPOINT_INTERVAL", int(c.Engine.CheckpointInterval))
	if err != nil {
		return err
	}
	c.Engine.CheckpointInterval = uint64(interval)

	return nil
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("config error: server port cannot be empty")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("config error: invalid server port %q", c.Server.Port)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("config error: engine workers must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Engine.QueueSize < 1 {
		return fmt.Errorf("config error: engine queue size must be at least 1, got %d", c.Engine.QueueSize)
	}
	if c.Engine.JobTimeout < 0 {
		return fmt.Errorf("config error: engine job timeout must be non-negative")
	}
	if c.Engine.CheckpointInterval < 1 {
		return fmt.Errorf("config error: checkpoint interval must be at least 1")
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("config error: cache path cannot be empty when the cache is enabled")
	}
	if c.FactorDB.Enabled && c.FactorDB.BaseURL == "" {
		return fmt.Errorf("config error: factordb base URL cannot be empty when lookups are enabled")
	}
	return nil
}

// getEnvString gets an environment variable as a string with a default value.
func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %v", key, err)
	}
	return b, nil
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return d, nil
}
