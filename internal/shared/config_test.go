package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.API.BaseURL != "http://localhost:8010" {
			t.Errorf("expected base url http://localhost:8010, got %s", config.API.BaseURL)
		}

		if config.Chat.FlushDelay() != 80*time.Millisecond {
			t.Errorf("expected flush delay 80ms, got %v", config.Chat.FlushDelay())
		}

		if config.Jobs.PollInterval() != 4*time.Second {
			t.Errorf("expected poll interval 4s, got %v", config.Jobs.PollInterval())
		}

		if config.Jobs.Strategy != "auto" {
			t.Errorf("expected strategy auto, got %s", config.Jobs.Strategy)
		}

		if config.Database.Path != "./studyctl.db" {
			t.Errorf("expected database path ./studyctl.db, got %s", config.Database.Path)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.API.BaseURL != DefaultConfig().API.BaseURL {
			t.Errorf("created config base url doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[api]
base_url = "https://study.example.com"
retries = 5

[chat]
flush_delay_ms = 40

[jobs]
strategy = "polling"
poll_interval_ms = 1500
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.API.BaseURL != "https://study.example.com" {
			t.Errorf("expected base url override, got %s", config.API.BaseURL)
		}
		if config.API.Retries != 5 {
			t.Errorf("expected 5 retries, got %d", config.API.Retries)
		}
		if config.Chat.FlushDelay() != 40*time.Millisecond {
			t.Errorf("expected flush delay 40ms, got %v", config.Chat.FlushDelay())
		}
		if config.Jobs.PollInterval() != 1500*time.Millisecond {
			t.Errorf("expected poll interval 1.5s, got %v", config.Jobs.PollInterval())
		}

		// Unset keys keep their defaults.
		if config.API.TimeoutSeconds != 30 {
			t.Errorf("expected default timeout 30, got %d", config.API.TimeoutSeconds)
		}
	})

	t.Run("LoadConfig Invalid", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[api\nbase_url = "), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("Environment Overrides", func(t *testing.T) {
		t.Setenv(EnvBaseURL, "https://env.example.com")
		t.Setenv(EnvStrategy, "sse")
		t.Setenv("STUDYCTL_JOBS_DISABLE_STREAMING", "true")

		config := DefaultConfig()
		if err := LoadEnv(config, ""); err != nil {
			t.Fatalf("LoadEnv failed: %v", err)
		}

		if config.API.BaseURL != "https://env.example.com" {
			t.Errorf("expected env base url, got %s", config.API.BaseURL)
		}
		if config.Jobs.Strategy != "sse" {
			t.Errorf("expected strategy sse, got %s", config.Jobs.Strategy)
		}
		if !config.Jobs.DisableStreaming {
			t.Error("expected streaming to be disabled")
		}
	})

	t.Run("Dotenv File", func(t *testing.T) {
		t.Setenv(EnvToken, "")
		envPath := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(envPath, []byte(EnvToken+"=from-dotenv\n"), 0644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		// godotenv does not override variables that are already set.
		os.Unsetenv(EnvToken)

		config := DefaultConfig()
		if err := LoadEnv(config, envPath); err != nil {
			t.Fatalf("LoadEnv failed: %v", err)
		}

		if config.API.Token != "from-dotenv" {
			t.Errorf("expected token from .env, got %q", config.API.Token)
		}
	})

	t.Run("Missing Dotenv", func(t *testing.T) {
		config := DefaultConfig()
		if err := LoadEnv(config, filepath.Join(t.TempDir(), "absent.env")); err != nil {
			t.Errorf("missing .env should not fail: %v", err)
		}
	})

	t.Run("Invalid Strategy", func(t *testing.T) {
		t.Setenv(EnvStrategy, "carrier-pigeon")

		err := LoadEnv(DefaultConfig(), "")
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestStatePath(t *testing.T) {
	config := DefaultConfig()
	config.Auth.StateDir = "/tmp/studyctl-state"

	if got := config.StatePath("cookies.json"); got != "/tmp/studyctl-state/cookies.json" {
		t.Errorf("StatePath() = %s", got)
	}

	config.Auth.StateDir = "~/.studyctl"
	if got := config.StatePath("cookies.json"); strings.HasPrefix(got, "~") {
		t.Errorf("expected ~ to be expanded, got %s", got)
	}
}
