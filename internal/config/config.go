// Package config provides application configuration.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port   string
	DBPath string

	Discord DiscordConfig
	Roblox  RobloxConfig
	Prompt  PromptConfig

	SweepInterval time.Duration
	LogLevel      slog.Level
}

// DiscordConfig holds the application credentials and API endpoints.
type DiscordConfig struct {
	ApplicationID string
	PublicKey     string // hex encoded Ed25519 key from the developer portal
	Token         string
	APIURL        string

	// GatewayEnabled receives interactions over the gateway in addition to
	// the HTTP endpoint.
	GatewayEnabled bool
	GatewayURL     string
}

// RobloxConfig controls the Roblox API client.
type RobloxConfig struct {
	BaseURL  string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// PromptConfig controls wizard sessions.
type PromptConfig struct {
	SessionTTL time.Duration
	AutoDefer  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:   getEnv("PORT", "8080"),
		DBPath: getEnv("DB_PATH", "./data/rolelink.db"),
		Discord: DiscordConfig{
			ApplicationID:  getEnv("DISCORD_APPLICATION_ID", ""),
			PublicKey:      getEnv("DISCORD_PUBLIC_KEY", ""),
			Token:          getEnv("DISCORD_TOKEN", ""),
			APIURL:         getEnv("DISCORD_API_URL", "https://discord.com/api/v10"),
			GatewayEnabled: getEnvBool("GATEWAY_ENABLED", false),
			GatewayURL:     getEnv("DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json"),
		},
		Roblox: RobloxConfig{
			BaseURL:  getEnv("ROBLOX_API_URL", "roblox.com"),
			CacheTTL: getEnvDuration("ROBLOX_CACHE_TTL", 5*time.Minute),
			Timeout:  getEnvDuration("ROBLOX_TIMEOUT", 10*time.Second),
		},
		Prompt: PromptConfig{
			SessionTTL: getEnvDuration("PROMPT_SESSION_TTL", 15*time.Minute),
			AutoDefer:  getEnvDuration("PROMPT_AUTO_DEFER", 2*time.Second),
		},
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		LogLevel:      getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Discord.ApplicationID == "" {
		return fmt.Errorf("DISCORD_APPLICATION_ID cannot be empty")
	}
	if c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN cannot be empty")
	}
	key, err := hex.DecodeString(c.Discord.PublicKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("DISCORD_PUBLIC_KEY must be a 64 character hex string")
	}
	if c.Prompt.SessionTTL <= 0 {
		return fmt.Errorf("PROMPT_SESSION_TTL must be > 0")
	}
	if c.Prompt.AutoDefer < 0 || c.Prompt.AutoDefer >= 3*time.Second {
		return fmt.Errorf("PROMPT_AUTO_DEFER must be between 0 and 3s")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true when the Discord API points somewhere local.
func (c *Config) IsDevelopment() bool {
	return strings.Contains(c.Discord.APIURL, "localhost") ||
		strings.Contains(c.Discord.APIURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// getEnvDuration accepts Go durations ("90s") or whole seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
