// Package config loads service settings from an optional YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "TERMIN_CONFIG"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	checkIntervalEnv  = "CHECK_INTERVAL_MINUTES"
	subscribersEnv    = "SUBSCRIBERS_FILE"
	listenAddrEnv     = "LISTEN_ADDR"
	logLevelEnv       = "LOG_LEVEL"
	baseURLEnv        = "BOOKING_BASE_URL"
)

// Config holds all settings required across the application.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Poll     PollConfig     `yaml:"poll"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"logLevel"`
}

// TelegramConfig wires the bot credential and optional default recipient.
type TelegramConfig struct {
	BotToken      string `yaml:"botToken"`
	DefaultChatID int64  `yaml:"defaultChatId"`
}

// PollConfig controls the check cycle.
type PollConfig struct {
	IntervalMinutes int    `yaml:"intervalMinutes"`
	BaseURL         string `yaml:"baseUrl"`
}

// StorageConfig locates persisted state.
type StorageConfig struct {
	SubscribersFile string `yaml:"subscribersFile"`
}

// ServerConfig configures the admin HTTP surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Load reads YAML configuration (if TERMIN_CONFIG points at a file) and
// applies environment overrides on top of defaults.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}

	if cfg.Poll.IntervalMinutes <= 0 {
		return Config{}, fmt.Errorf("poll interval must be positive, got %d", cfg.Poll.IntervalMinutes)
	}

	return cfg, nil
}

// ValidateForServe checks the settings only the long-running service
// needs. One-shot CLI commands work without a bot credential.
func (c *Config) ValidateForServe() error {
	if c.Telegram.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN not set")
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", telegramChatIDEnv, err)
		}
		c.Telegram.DefaultChatID = id
	}
	if v := os.Getenv(checkIntervalEnv); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", checkIntervalEnv, err)
		}
		c.Poll.IntervalMinutes = minutes
	}
	if v := os.Getenv(subscribersEnv); v != "" {
		c.Storage.SubscribersFile = v
	}
	if v := os.Getenv(listenAddrEnv); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(baseURLEnv); v != "" {
		c.Poll.BaseURL = v
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Poll:     PollConfig{IntervalMinutes: 5},
		Storage:  StorageConfig{SubscribersFile: "subscribers.json"},
		Server:   ServerConfig{ListenAddr: ":8080"},
		LogLevel: "info",
	}
}
