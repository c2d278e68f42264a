// Package config provides YAML-based configuration loading for Greenroom.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Greenroom configuration, loaded from config.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Chat     ChatConfig     `yaml:"chat"`
	Booking  BookingConfig  `yaml:"booking"`
	Lottery  LotteryConfig  `yaml:"lottery"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig holds connection settings for the MySQL server.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ServerConfig holds settings for the inbound webhook HTTP server.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	WebhookPath string `yaml:"webhook_path"`
}

// ChatConfig selects and configures the chat transport.
type ChatConfig struct {
	Platform string        `yaml:"platform"` // "webhook" or "discord"
	ReplyURL string        `yaml:"reply_url"`
	Token    string        `yaml:"token"` // bearer token for the reply endpoint
	Discord  DiscordConfig `yaml:"discord"`
}

// DiscordConfig holds Discord gateway settings.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// BookingConfig holds the availability and blackout policy knobs.
type BookingConfig struct {
	CutoffHour        int `yaml:"cutoff_hour"`         // before this hour, tomorrow is bookable
	BlackoutStartHour int `yaml:"blackout_start_hour"` // daily write-blackout window start
	BlackoutEndHour   int `yaml:"blackout_end_hour"`   // daily write-blackout window end
	ConfigTTLMinutes  int `yaml:"config_ttl_minutes"`  // availability config cache TTL
}

// LotteryConfig schedules the rank and confirmation passes inside the
// serve daemon. Both use standard 5-field cron expressions.
type LotteryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RankCron    string `yaml:"rank_cron"`
	ConfirmCron string `yaml:"confirm_cron"`
}

// NotifyConfig controls outbound posting of lottery results.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8700
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = "/webhook"
	}
	if c.Chat.Platform == "" {
		c.Chat.Platform = "webhook"
	}
	if c.Booking.CutoffHour == 0 {
		c.Booking.CutoffHour = 21
	}
	if c.Booking.BlackoutStartHour == 0 {
		c.Booking.BlackoutStartHour = 21
	}
	if c.Booking.BlackoutEndHour == 0 {
		c.Booking.BlackoutEndHour = 23
	}
	if c.Booking.ConfigTTLMinutes == 0 {
		c.Booking.ConfigTTLMinutes = 5
	}
	if c.Lottery.RankCron == "" {
		c.Lottery.RankCron = "0 22 * * *"
	}
	if c.Lottery.ConfirmCron == "" {
		c.Lottery.ConfirmCron = "30 22 * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Database.Name == "" {
		errs = append(errs, "database.name is required")
	}
	switch c.Chat.Platform {
	case "webhook":
		// reply_url may stay empty for local runs; serve checks it.
	case "discord":
		if c.Chat.Discord.BotToken == "" {
			errs = append(errs, "chat.discord.bot_token is required for the discord platform")
		}
		if c.Chat.Discord.ChannelID == "" {
			errs = append(errs, "chat.discord.channel_id is required for the discord platform")
		}
	default:
		errs = append(errs, fmt.Sprintf("chat.platform %q is not supported (use webhook or discord)", c.Chat.Platform))
	}
	if c.Booking.CutoffHour < 0 || c.Booking.CutoffHour > 23 {
		errs = append(errs, "booking.cutoff_hour must be between 0 and 23")
	}
	if c.Booking.BlackoutStartHour < 0 || c.Booking.BlackoutStartHour > 23 ||
		c.Booking.BlackoutEndHour < 0 || c.Booking.BlackoutEndHour > 24 {
		errs = append(errs, "booking blackout hours must be within a day")
	}
	if c.Booking.BlackoutStartHour >= c.Booking.BlackoutEndHour {
		errs = append(errs, "booking.blackout_start_hour must be before blackout_end_hour")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
