package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens         = 1024
	DefaultTemperature       = 0.8
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 18820
	DefaultBufSize           = 100
	DefaultCommandPrefix     = "!"
	DefaultOutboundRate      = 1.5 // messages per second across all channels
	DefaultOutboundBurst     = 5
	DefaultCleanupSpec       = "0 * * * * *"    // every minute
	DefaultThreadSweepSpec   = "30 * * * * *"   // every minute, offset
	DefaultPromotionSpec     = "0 */2 * * * *"  // every two minutes
	DefaultLookupCacheTTLSec = 600
)

type Config struct {
	Bot       BotConfig       `json:"bot"`
	Provider  ProviderConfig  `json:"provider"`
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Memory    MemoryConfig    `json:"memory"`
	Lookup    LookupConfig    `json:"lookup"`
	Persona   PersonaConfig   `json:"persona"`
	Schedules SchedulesConfig `json:"schedules"`
}

type BotConfig struct {
	Name          string  `json:"name"`
	Model         string  `json:"model"`
	MaxTokens     int     `json:"maxTokens"`
	Temperature   float64 `json:"temperature"`
	CommandPrefix string  `json:"commandPrefix"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Dashboard DashboardConfig `json:"dashboard"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

type DashboardConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host          string  `json:"host"`
	Port          int     `json:"port"`
	OutboundRate  float64 `json:"outboundRate,omitempty"`
	OutboundBurst int     `json:"outboundBurst,omitempty"`
}

type MemoryConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type LookupConfig struct {
	EmoteBaseURL string `json:"emoteBaseUrl,omitempty"`
	GameBaseURL  string `json:"gameBaseUrl,omitempty"`
	CacheTTLSec  int    `json:"cacheTtlSec,omitempty"`
}

type PersonaConfig struct {
	Path string `json:"path,omitempty"`
}

// SchedulesConfig holds cron expressions (with seconds field) for the
// background memory maintenance jobs.
type SchedulesConfig struct {
	Cleanup     string `json:"cleanup,omitempty"`
	ThreadSweep string `json:"threadSweep,omitempty"`
	Promotion   string `json:"promotion,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Name:          "mochi",
			Model:         DefaultModel,
			MaxTokens:     DefaultMaxTokens,
			Temperature:   DefaultTemperature,
			CommandPrefix: DefaultCommandPrefix,
		},
		Provider: ProviderConfig{},
		Channels: ChannelsConfig{},
		Gateway: GatewayConfig{
			Host:          DefaultHost,
			Port:          DefaultPort,
			OutboundRate:  DefaultOutboundRate,
			OutboundBurst: DefaultOutboundBurst,
		},
		Lookup: LookupConfig{
			CacheTTLSec: DefaultLookupCacheTTLSec,
		},
		Schedules: SchedulesConfig{
			Cleanup:     DefaultCleanupSpec,
			ThreadSweep: DefaultThreadSweepSpec,
			Promotion:   DefaultPromotionSpec,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".mochi")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return loadConfigFrom(ConfigPath())
}

func loadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("MOCHI_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("MOCHI_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if token := os.Getenv("MOCHI_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
		cfg.Channels.Telegram.Enabled = true
	}
	if model := os.Getenv("MOCHI_MODEL"); model != "" {
		cfg.Bot.Model = model
	}
	if port := os.Getenv("MOCHI_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && parsed > 0 {
			cfg.Gateway.Port = parsed
		}
	}
	if db := os.Getenv("MOCHI_MEMORY_DB"); db != "" {
		cfg.Memory.DBPath = db
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = "mochi"
	}
	if cfg.Bot.Model == "" {
		cfg.Bot.Model = DefaultModel
	}
	if cfg.Bot.MaxTokens <= 0 {
		cfg.Bot.MaxTokens = DefaultMaxTokens
	}
	if cfg.Bot.CommandPrefix == "" {
		cfg.Bot.CommandPrefix = DefaultCommandPrefix
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.OutboundRate <= 0 {
		cfg.Gateway.OutboundRate = DefaultOutboundRate
	}
	if cfg.Gateway.OutboundBurst <= 0 {
		cfg.Gateway.OutboundBurst = DefaultOutboundBurst
	}
	if cfg.Lookup.CacheTTLSec <= 0 {
		cfg.Lookup.CacheTTLSec = DefaultLookupCacheTTLSec
	}
	if cfg.Schedules.Cleanup == "" {
		cfg.Schedules.Cleanup = DefaultCleanupSpec
	}
	if cfg.Schedules.ThreadSweep == "" {
		cfg.Schedules.ThreadSweep = DefaultThreadSweepSpec
	}
	if cfg.Schedules.Promotion == "" {
		cfg.Schedules.Promotion = DefaultPromotionSpec
	}
}
