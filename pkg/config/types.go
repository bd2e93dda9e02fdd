package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct, merged from the YAML file and
// environment overrides.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Bot       BotConfig       `yaml:"bot"`
	Board     BoardConfig     `yaml:"board"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// StorageConfig holds the pebble path.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// BotConfig holds the chat-platform credential and dispatch settings.
type BotConfig struct {
	Token string `yaml:"token"`
	// APIBase overrides the bot API root; used by tests to point the
	// client at a local server.
	APIBase string `yaml:"api_base"`
	// AdminIDs is the static set of privileged actor identifiers.
	AdminIDs []int64 `yaml:"admin_ids"`
	// WebhookBudget is the wall-clock budget the deadline guard races
	// business logic against.
	WebhookBudget Duration `yaml:"webhook_budget"`
}

// BoardConfig holds confession-board tunables.
type BoardConfig struct {
	PageSize     int   `yaml:"page_size"`
	SeqBase      int64 `yaml:"seq_base"`
	ApproveAward int64 `yaml:"approve_award"`
	CommentAward int64 `yaml:"comment_award"`
}

// OutboxConfig holds the async send queue settings.
type OutboxConfig struct {
	Capacity int     `yaml:"capacity"`
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
}

// RetentionConfig holds configuration for the automatic purge runner.
type RetentionConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Cron     string   `yaml:"cron"`
	Period   Duration `yaml:"period"`
	DedupTTL Duration `yaml:"dedup_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns the combined listen address.
func (c *Config) Addr() string {
	addr := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// IsAdmin reports whether the given actor identifier is in the static
// privileged set.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.Bot.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// Duration is a wrapper around time.Duration that supports YAML parsing
// from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
