package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when config.json leaves a value unset.
const (
	DefaultNickname     = "あなた"
	DefaultChatModel    = "gemini-2.5-flash"
	DefaultChatEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultAPIKeyEnv    = "GEMINI_API_KEY"
	DefaultChatTimeout  = 60
	DefaultLogLevel     = "info"
)

// Config holds application configuration.
type Config struct {
	// DefaultNickname seeds Settings.Nickname when no data exists yet.
	DefaultNickname string `json:"default_nickname"`

	// Timezone is the IANA zone used to bucket times for analytics.
	// Empty means the system local zone.
	Timezone string `json:"timezone,omitempty"`

	// ChatModel is the generative model name used by the assistant.
	ChatModel string `json:"chat_model"`

	// ChatEndpoint is the base URL of the generative language API.
	ChatEndpoint string `json:"chat_endpoint"`

	// ChatAPIKeyEnv names the environment variable holding the API key.
	// The key itself is never stored in config.json.
	ChatAPIKeyEnv string `json:"chat_api_key_env"`

	// ChatTimeoutSeconds bounds a single assistant request.
	ChatTimeoutSeconds int `json:"chat_timeout_seconds"`

	// LogLevel is a zap level name (debug, info, warn, error).
	LogLevel string `json:"log_level"`

	// LogDevelopment switches to the human-readable console encoder.
	LogDevelopment bool `json:"log_development,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.nami/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "urge", "mood", "stats", "history", "chat", "settings",
	// "strategy", "data". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultNickname:    DefaultNickname,
		ChatModel:          DefaultChatModel,
		ChatEndpoint:       DefaultChatEndpoint,
		ChatAPIKeyEnv:      DefaultAPIKeyEnv,
		ChatTimeoutSeconds: DefaultChatTimeout,
		LogLevel:           DefaultLogLevel,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.nami.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadEnv reads baseDir/.env into the process environment.
// Variables already set in the environment are left untouched.
// A missing file is not an error.
func LoadEnv(baseDir string) error {
	path := filepath.Join(baseDir, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// APIKey returns the assistant API key from the configured variable.
func (c *Config) APIKey() string {
	return strings.TrimSpace(os.Getenv(c.ChatAPIKeyEnv))
}

// ChatTimeout returns the per-request assistant timeout.
func (c *Config) ChatTimeout() time.Duration {
	if c.ChatTimeoutSeconds <= 0 {
		return DefaultChatTimeout * time.Second
	}
	return time.Duration(c.ChatTimeoutSeconds) * time.Second
}

// Location resolves Timezone. An empty zone is time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if _, err := merged.Location(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.DefaultNickname = pick(overlay.DefaultNickname, base.DefaultNickname)
	result.Timezone = pick(overlay.Timezone, base.Timezone)
	result.ChatModel = pick(overlay.ChatModel, base.ChatModel)
	result.ChatEndpoint = strings.TrimRight(pick(overlay.ChatEndpoint, base.ChatEndpoint), "/")
	result.ChatAPIKeyEnv = pick(overlay.ChatAPIKeyEnv, base.ChatAPIKeyEnv)
	result.LogLevel = pick(overlay.LogLevel, base.LogLevel)
	result.ChatTimeoutSeconds = pick(overlay.ChatTimeoutSeconds, base.ChatTimeoutSeconds)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.LogDevelopment = base.LogDevelopment || overlay.LogDevelopment

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
