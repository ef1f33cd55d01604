// Package config loads and validates matchweek-ingest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Season      string         `mapstructure:"season"`
	Workers     int            `mapstructure:"workers"`
	TaskTimeout time.Duration  `mapstructure:"task_timeout"`
	Seasons     map[string]int `mapstructure:"seasons"`

	Browser   BrowserConfig   `mapstructure:"browser"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Transform TransformConfig `mapstructure:"transform"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// BrowserConfig configures Chrome sessions.
type BrowserConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BaseURL         string        `mapstructure:"base_url"`
	ExecPath        string        `mapstructure:"exec_path"`
	Headless        bool          `mapstructure:"headless"`
	UserAgent       string        `mapstructure:"user_agent"`
	WindowWidth     int           `mapstructure:"window_width"`
	WindowHeight    int           `mapstructure:"window_height"`
	ProfileRoot     string        `mapstructure:"profile_root"`
	StartTimeout    time.Duration `mapstructure:"start_timeout"`
	PageTimeout     time.Duration `mapstructure:"page_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	RequestInterval time.Duration `mapstructure:"request_interval"`
	MinMatches      int           `mapstructure:"min_matches"`
	// MemoryBudgetMB is the expected footprint of one browser, used by the host check.
	MemoryBudgetMB int `mapstructure:"memory_budget_mb"`
}

// StorageConfig selects the blob store backing the result sink.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// LedgerConfig selects where per-matchweek outcomes are recorded.
type LedgerConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for capture notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the ops HTTP listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name; empty keeps the mode's default.
	Level string `mapstructure:"level"`
}

// TransformConfig controls the bronze to silver stage.
type TransformConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// Load builds a Config from defaults, an optional file at path, a .env file
// in the working directory, and MATCHWEEK_* environment variables. The result
// is not validated so callers can apply command-line overrides first; call
// Validate afterwards.
func Load(path string) (Config, error) {
	// A missing .env is normal; variables already set win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MATCHWEEK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("season", "2025/26")
	v.SetDefault("workers", 3)
	v.SetDefault("task_timeout", 15*time.Minute)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.base_url", "https://www.premierleague.com")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.start_timeout", 30*time.Second)
	v.SetDefault("browser.page_timeout", 30*time.Second)
	v.SetDefault("browser.settle_delay", 3*time.Second)
	v.SetDefault("browser.request_interval", 2*time.Second)
	v.SetDefault("browser.min_matches", 1)
	v.SetDefault("browser.memory_budget_mb", 512)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.prefix", "premier_league")
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.path", "data/ledger.db")
	v.SetDefault("ledger.table", "matchweek_captures")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic_name", "matchweek-captures")
	v.SetDefault("logging.development", true)
	v.SetDefault("transform.concurrency", 4)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Season) == "" {
		return errors.New("season is required")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if c.TaskTimeout < 0 {
		return errors.New("task_timeout must be >= 0")
	}
	for name, start := range c.Seasons {
		if start <= 0 {
			return fmt.Errorf("seasons.%s must be a positive match id", name)
		}
	}
	if c.Browser.MinMatches < 1 || c.Browser.MinMatches > 10 {
		return errors.New("browser.min_matches must be between 1 and 10")
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir is required for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Ledger.Driver {
	case "none":
	case "postgres":
		if c.Ledger.DSN == "" {
			return errors.New("ledger.dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Ledger.Path == "" {
			return errors.New("ledger.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return errors.New("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Transform.Concurrency <= 0 {
		return errors.New("transform.concurrency must be > 0")
	}
	return nil
}
