package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// envOverrides mirrors the environment surface. Every field is optional
// here; requiredness is enforced after merging in Validate.
type envOverrides struct {
	BotToken      string        `env:"CONFESSD_BOT_TOKEN"`
	APIBase       string        `env:"CONFESSD_API_BASE"`
	DBPath        string        `env:"CONFESSD_DB_PATH"`
	AdminIDs      string        `env:"CONFESSD_ADMIN_IDS"`
	WebhookBudget time.Duration `env:"CONFESSD_WEBHOOK_BUDGET"`
	LogLevel      string        `env:"CONFESSD_LOG_LEVEL"`
}

// ParseCommandFlags parses command-line flags and returns them as a Flags
// struct alongside the set-ness map so callers can tell defaults from
// explicit values.
func ParseCommandFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// LoadFile loads the YAML config file at path. A missing file is not an
// error; the caller proceeds with defaults plus env.
func LoadFile(path string) (*Config, bool, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, false, nil
		}
		return nil, false, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, false, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, true, nil
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Board.PageSize = 10
	cfg.Board.SeqBase = 1000
	cfg.Board.ApproveAward = 10
	cfg.Board.CommentAward = 2
	cfg.Outbox.Capacity = 1024
	cfg.Outbox.RPS = 25
	cfg.Outbox.Burst = 5
	cfg.Bot.WebhookBudget = Duration(5 * time.Second)
	cfg.Retention.Enabled = true
	cfg.Retention.Cron = "0 2 * * *"
	cfg.Retention.Period = Duration(30 * 24 * time.Hour)
	cfg.Retention.DedupTTL = Duration(24 * time.Hour)
	return cfg
}

// ApplyEnv overlays environment variables onto cfg. Env wins over file
// values when present.
func ApplyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if ov.BotToken != "" {
		cfg.Bot.Token = ov.BotToken
	}
	if ov.APIBase != "" {
		cfg.Bot.APIBase = ov.APIBase
	}
	if ov.DBPath != "" {
		cfg.Storage.DBPath = ov.DBPath
	}
	if ov.WebhookBudget > 0 {
		cfg.Bot.WebhookBudget = Duration(ov.WebhookBudget)
	}
	if ov.LogLevel != "" {
		cfg.Logging.Level = ov.LogLevel
	}
	if ov.AdminIDs != "" {
		ids, err := ParseAdminIDs(ov.AdminIDs)
		if err != nil {
			return err
		}
		cfg.Bot.AdminIDs = ids
	}
	return nil
}

// ParseAdminIDs parses a comma-separated list of actor identifiers.
// Entries are trimmed of surrounding whitespace; empty entries are skipped.
func ParseAdminIDs(raw string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Validate checks the merged config for the values the process cannot
// start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot.Token) == "" {
		return fmt.Errorf("bot token must be provided (CONFESSD_BOT_TOKEN or bot.token)")
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("db path must be provided (CONFESSD_DB_PATH or storage.db_path)")
	}
	if c.Bot.WebhookBudget.Std() <= 0 {
		return fmt.Errorf("webhook budget must be positive")
	}
	if c.Board.PageSize <= 0 {
		return fmt.Errorf("board page size must be positive")
	}
	return nil
}

// LoadEffective merges file, env and flags into the final Config. Flags
// win over env over file when explicitly set.
func LoadEffective(flags Flags) (*Config, error) {
	cfg, _, err := LoadFile(flags.Config)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if flags.Set["db"] {
		cfg.Storage.DBPath = flags.DB
	} else if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = flags.DB
	}
	if flags.Set["addr"] {
		host, port, ok := strings.Cut(strings.TrimSpace(flags.Addr), ":")
		if ok {
			cfg.Server.Address = host
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = p
			}
		}
	}
	return cfg, nil
}
