package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values loaded from the config file.
const (
	EnvBaseURL  = "STUDYCTL_API_BASE_URL"
	EnvToken    = "STUDYCTL_API_TOKEN"
	EnvDatabase = "STUDYCTL_DATABASE_PATH"
	EnvStrategy = "STUDYCTL_JOBS_STRATEGY"
	EnvStateDir = "STUDYCTL_STATE_DIR"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Chat     ChatConfig     `toml:"chat"`
	Jobs     JobsConfig     `toml:"jobs"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
}

// APIConfig contains backend connection settings.
type APIConfig struct {
	BaseURL        string  `toml:"base_url"`
	Token          string  `toml:"token"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Retries        int     `toml:"retries"`
	RateLimit      float64 `toml:"rate_limit"`
}

// ChatConfig contains chat streaming settings.
type ChatConfig struct {
	FlushDelayMS int `toml:"flush_delay_ms"`
	EventDelayMS int `toml:"event_delay_ms"`
}

// JobsConfig contains background job monitoring settings.
type JobsConfig struct {
	Strategy         string `toml:"strategy"`
	PollIntervalMS   int    `toml:"poll_interval_ms"`
	DisableStreaming bool   `toml:"disable_streaming"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// AuthConfig contains local session state settings.
type AuthConfig struct {
	StateDir string `toml:"state_dir"`
}

// Timeout returns the request timeout as a [time.Duration].
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FlushDelay returns the token flush delay as a [time.Duration].
func (c ChatConfig) FlushDelay() time.Duration {
	return time.Duration(c.FlushDelayMS) * time.Millisecond
}

// EventDelay returns the pause after each dispatched stream event.
func (c ChatConfig) EventDelay() time.Duration {
	return time.Duration(c.EventDelayMS) * time.Millisecond
}

// PollInterval returns the job polling interval as a [time.Duration].
func (c JobsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads a .env file when present and applies STUDYCTL_* overrides to the config.
//
// A missing .env file is not an error.
func LoadEnv(c *Config, envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, envFile, err)
			}
		}
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvStrategy); v != "" {
		c.Jobs.Strategy = v
	}
	if v := os.Getenv(EnvStateDir); v != "" {
		c.Auth.StateDir = v
	}
	if v := os.Getenv("STUDYCTL_JOBS_DISABLE_STREAMING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Jobs.DisableStreaming = b
		}
	}

	return c.Validate()
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("%w: api.base_url is required", ErrInvalidConfig)
	}
	switch c.Jobs.Strategy {
	case "", "auto", "sse", "polling":
	default:
		return fmt.Errorf("%w: unknown jobs.strategy %q", ErrInvalidConfig, c.Jobs.Strategy)
	}
	if c.Chat.FlushDelayMS < 0 || c.Chat.EventDelayMS < 0 || c.Jobs.PollIntervalMS < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	return nil
}

// StatePath resolves a file inside the configured state directory, expanding a leading "~".
func (c *Config) StatePath(name string) string {
	dir := c.Auth.StateDir
	if dir == "" {
		dir = "~/.studyctl"
	}
	if strings.HasPrefix(dir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	return filepath.Join(dir, name)
}
