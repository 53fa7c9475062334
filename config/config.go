// Package config loads the gateway settings from a YAML or TOML file and the environment.
//
// Precedence, lowest to highest: Default, the file, then ARK_* environment variables. A
// missing file is not an error, a fresh install runs on defaults plus ARK_API_KEY.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
	"github.com/victhorio/arkchat/agg"
	"github.com/victhorio/arkchat/agg/models"
	"github.com/victhorio/arkchat/prompts"
)

type Config struct {
	Provider        models.Provider `yaml:"provider" toml:"provider"`
	APIKey          string          `yaml:"api_key" toml:"api_key"`
	BaseURL         string          `yaml:"base_url" toml:"base_url"`
	Model           string          `yaml:"model" toml:"model"`
	MaxTokens       int             `yaml:"max_tokens" toml:"max_tokens"`
	Temperature     float64         `yaml:"temperature" toml:"temperature"`
	TimeoutMS       int             `yaml:"timeout_ms" toml:"timeout_ms"`
	EnableReasoning bool            `yaml:"enable_reasoning" toml:"enable_reasoning"`
	// SystemPrompt is either a prompt catalog name or literal prompt text.
	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`
	// UsageDB is the SQLite usage ledger path. Empty keeps usage in memory only.
	UsageDB  string `yaml:"usage_db" toml:"usage_db"`
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// RateLimit is in requests per second, 0 disables pacing.
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst"`
}

const (
	MinMaxTokens = 1
	MaxMaxTokens = 32768
	MinTimeoutMS = 1000
)

func Default() Config {
	return Config{
		Provider:        models.ProviderVolcengine,
		BaseURL:         "https://ark.cn-beijing.volces.com",
		Model:           "deepseek-r1-250120",
		MaxTokens:       2000,
		Temperature:     0.7,
		TimeoutMS:       30000,
		EnableReasoning: true,
		SystemPrompt:    prompts.Default,
		UsageDB:         filepath.Join(homeDir(), ".arkchat", "usage.db"),
		LogLevel:        "info",
		RateBurst:       1,
	}
}

// Load reads path on top of Default and applies the environment overrides. The format is
// picked from the extension: .toml for TOML, anything else is read as YAML.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config.Load: %w", err)
		default:
			if err := decode(path, data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config.Load: %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	c.APIKey = envOr("ARK_API_KEY", c.APIKey)
	c.BaseURL = envOr("ARK_BASE_URL", c.BaseURL)
	c.Model = envOr("ARK_MODEL", c.Model)
	c.LogLevel = envOr("ARK_LOG_LEVEL", c.LogLevel)
}

// Save writes the config to path, creating parent directories as needed. The file holds the
// API key, so it's only readable by its owner.
func (c Config) Save(path string) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("config.Save: %w", err)
		}
	} else {
		data, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("config.Save: %w", err)
		}
		buf.Write(data)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config.Save: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("config.Save: %w", err)
	}
	return nil
}

// Validate reports every rule the config breaks at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("api_key must not be empty"))
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("base_url must not be empty"))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		errs = append(errs, fmt.Errorf("max_tokens must be within %d-%d, got %d", MinMaxTokens, MaxMaxTokens, c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within 0-2, got %g", c.Temperature))
	}
	if c.TimeoutMS < MinTimeoutMS {
		errs = append(errs, fmt.Errorf("timeout_ms must be at least %d, got %d", MinTimeoutMS, c.TimeoutMS))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative, got %g", c.RateLimit))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// IsConfigured reports whether there's enough to make a request at all.
func (c Config) IsConfigured() bool {
	return c.APIKey != "" && c.BaseURL != "" && c.Model != ""
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Client converts the settings the chat client cares about.
func (c Config) Client() agg.Config {
	return agg.Config{
		BaseURL:         c.BaseURL,
		APIKey:          c.APIKey,
		Model:           c.Model,
		MaxTokens:       c.MaxTokens,
		Temperature:     c.Temperature,
		Timeout:         c.Timeout(),
		EnableReasoning: c.EnableReasoning,
	}
}

// SystemPromptText resolves SystemPrompt through the prompt catalog.
func (c Config) SystemPromptText() string {
	return prompts.Resolve(c.SystemPrompt)
}

// SlogLevel returns the configured level, falling back to info for unknown names.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// DefaultPath is where the binary looks for its config when none is given.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".arkchat", "config.yaml")
}
