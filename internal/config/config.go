// Package config handles configuration for localchat.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/diogo/localchat/internal/models"
)

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	Style            string `json:"style"`              // "dark", "light", or path to JSON theme
	EnableEmoji      bool   `json:"enable_emoji"`       // Convert :emoji: to unicode
	PreserveNewLines bool   `json:"preserve_newlines"`  // Preserve original line breaks
	TableWrap        bool   `json:"table_wrap"`         // Enable word wrap in table cells
	InlineTableLinks bool   `json:"inline_table_links"` // Render links inline in tables
}

// Config represents the user configuration
type Config struct {
	// Model is the runtime identifier of the model loaded by the load action.
	Model string `json:"model"`
	// Backend selects the runtime protocol: "ollama" or "openai".
	Backend string `json:"backend"`
	// BaseURL of the runtime. Empty means the backend's default.
	BaseURL      string  `json:"base_url,omitempty"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `json:"log_level"`
	// LogFile receives structured logs. Empty means ~/.localchat/localchat.log.
	LogFile string `json:"log_file,omitempty"`
	// RequestTimeout in seconds for a single runtime request. 0 disables it.
	RequestTimeout  int            `json:"request_timeout"`
	CopyToClipboard bool           `json:"copy_to_clipboard"`
	TUITheme        string         `json:"tui_theme,omitempty"`
	Markdown        MarkdownConfig `json:"markdown,omitempty"`
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		Style:            "dark",
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
		InlineTableLinks: false,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Model:           models.DefaultModel.ID,
		Backend:         models.BackendOllama,
		SystemPrompt:    models.DefaultSystemPrompt,
		Temperature:     models.DefaultTemperature,
		MaxTokens:       models.DefaultMaxTokens,
		LogLevel:        models.DefaultLogLevel,
		RequestTimeout:  0,
		CopyToClipboard: false,
		TUITheme:        "tokyonight",
		Markdown:        DefaultMarkdownConfig(),
	}
}

// ResolvedBaseURL returns the runtime URL honoring, in order, the
// LOCALCHAT_BASE_URL environment variable, the config value and the
// backend default.
func (c Config) ResolvedBaseURL() string {
	if env := os.Getenv("LOCALCHAT_BASE_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Backend == models.BackendOpenAI {
		return models.DefaultOpenAIURL
	}
	return models.DefaultOllamaURL
}

// Validate checks values that would make every request fail
func (c Config) Validate() error {
	switch c.Backend {
	case models.BackendOllama, models.BackendOpenAI:
	default:
		return fmt.Errorf("unknown backend %q (expected %q or %q)", c.Backend, models.BackendOllama, models.BackendOpenAI)
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".localchat")
	return configDir, nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetLogPath returns the log file path from config, defaulting inside the config dir
func GetLogPath(cfg Config) (string, error) {
	if cfg.LogFile != "" {
		return cfg.LogFile, nil
	}
	configDir, err := EnsureConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "localchat.log"), nil
}

// LoadConfig loads the configuration from disk
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	configPath, err := GetConfigPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if config doesn't exist
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to disk
func SaveConfig(cfg Config) error {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.json")

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AvailableBackends returns the supported runtime protocols
func AvailableBackends() []string {
	return []string{
		models.BackendOllama,
		models.BackendOpenAI,
	}
}

// AvailableLogLevels returns the accepted log level names
func AvailableLogLevels() []string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}
}
