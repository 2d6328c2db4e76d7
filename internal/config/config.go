// Package config handles configuration loading and management for
// Know-Flow. It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Know-Flow.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Store    StoreConfig    `mapstructure:"store"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr"`
	// AuthToken is the bearer token required on API routes. Empty
	// disables authentication.
	AuthToken string `mapstructure:"auth_token"`
	// RateLimit is the number of prompt submissions allowed per user
	// within RateWindow. Zero disables rate limiting.
	RateLimit int `mapstructure:"rate_limit"`
	// RateWindow is the sliding window the rate limit applies over.
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// ProviderConfig selects and configures the inference backend.
type ProviderConfig struct {
	// Backend is "anthropic" or "openai".
	Backend   string          `mapstructure:"backend"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
	MaxTokens     int    `mapstructure:"max_tokens"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `mapstructure:"path"`
}

// PipelineConfig holds pipeline behavior settings.
type PipelineConfig struct {
	// MaxLessons caps lessons per generated plan.
	MaxLessons int `mapstructure:"max_lessons"`
	// MaxResourcesPerLesson caps external references per lesson.
	MaxResourcesPerLesson int `mapstructure:"max_resources_per_lesson"`
	// MaxRetries is the retry budget per pipeline stage.
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffBase is the first retry delay; it doubles per retry.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	// BackoffCap bounds the retry delay.
	BackoffCap time.Duration `mapstructure:"backoff_cap"`
	// StageTimeout bounds a single provider call.
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is zap's level name: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is "json" or "console".
	Format string `mapstructure:"format"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, KNOWFLOW_AUTH_TOKEN)
// 2. Project config (.knowflow.yaml in current directory or parent)
// 3. User config (~/.config/knowflow/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("")

	v.BindEnv("provider.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("provider.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("server.auth_token", "KNOWFLOW_AUTH_TOKEN")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Provider.Anthropic.APIKey = expandEnv(cfg.Provider.Anthropic.APIKey)
	cfg.Provider.OpenAI.APIKey = expandEnv(cfg.Provider.OpenAI.APIKey)
	cfg.Server.AuthToken = expandEnv(cfg.Server.AuthToken)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.Anthropic.APIKey = expandEnv(cfg.Provider.Anthropic.APIKey)
	cfg.Provider.OpenAI.APIKey = expandEnv(cfg.Provider.OpenAI.APIKey)
	cfg.Server.AuthToken = expandEnv(cfg.Server.AuthToken)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.rate_limit", 30)
	v.SetDefault("server.rate_window", "1m")

	// Provider defaults
	v.SetDefault("provider.backend", "anthropic")
	v.SetDefault("provider.anthropic.api_key", "")
	v.SetDefault("provider.anthropic.model", "")
	v.SetDefault("provider.anthropic.use_aws_bedrock", false)
	v.SetDefault("provider.anthropic.aws_region", "us-east-1")
	v.SetDefault("provider.anthropic.max_tokens", 8192)
	v.SetDefault("provider.openai.api_key", "")
	v.SetDefault("provider.openai.model", "gpt-4o")
	v.SetDefault("provider.openai.max_tokens", 8192)

	// Store defaults
	v.SetDefault("store.path", "knowflow.db")

	// Pipeline defaults
	v.SetDefault("pipeline.max_lessons", 10)
	v.SetDefault("pipeline.max_resources_per_lesson", 5)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.backoff_base", "500ms")
	v.SetDefault("pipeline.backoff_cap", "10s")
	v.SetDefault("pipeline.stage_timeout", "2m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// getUserConfigDir returns the XDG config directory for Know-Flow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "knowflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "knowflow")
	}
	return filepath.Join(home, ".config", "knowflow")
}

// findProjectConfig searches for .knowflow.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".knowflow.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       ":8080",
			RateLimit:  30,
			RateWindow: time.Minute,
		},
		Provider: ProviderConfig{
			Backend: "anthropic",
			Anthropic: AnthropicConfig{
				AWSRegion: "us-east-1",
				MaxTokens: 8192,
			},
			OpenAI: OpenAIConfig{
				Model:     "gpt-4o",
				MaxTokens: 8192,
			},
		},
		Store: StoreConfig{
			Path: "knowflow.db",
		},
		Pipeline: PipelineConfig{
			MaxLessons:            10,
			MaxResourcesPerLesson: 5,
			MaxRetries:            3,
			BackoffBase:           500 * time.Millisecond,
			BackoffCap:            10 * time.Second,
			StageTimeout:          2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
