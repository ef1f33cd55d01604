package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "2025/26", cfg.Season)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 15*time.Minute, cfg.TaskTimeout)
	assert.True(t, cfg.Browser.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Browser.PageTimeout)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.False(t, cfg.PubSub.Enabled)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Equal(t, 4, cfg.Transform.Concurrency)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
season: "2024/25"
workers: 5
task_timeout: 20m
seasons:
  "2022-23": 2128288
browser:
  headless: false
  page_timeout: 45s
  min_matches: 8
storage:
  provider: gcs
  gcs_bucket: pl-bronze
  prefix: pl
ledger:
  driver: postgres
  dsn: postgres://localhost/matchweeks
pubsub:
  enabled: true
  project_id: proj
  topic_name: captures
metrics:
  addr: ":9102"
logging:
  development: false
transform:
  concurrency: 2
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2024/25", cfg.Season)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 20*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, map[string]int{"2022-23": 2128288}, cfg.Seasons)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser.PageTimeout)
	assert.Equal(t, 8, cfg.Browser.MinMatches)
	assert.Equal(t, "pl-bronze", cfg.Storage.GCSBucket)
	assert.Equal(t, "postgres://localhost/matchweeks", cfg.Ledger.DSN)
	assert.True(t, cfg.PubSub.Enabled)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, 2, cfg.Transform.Concurrency)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MATCHWEEK_WORKERS", "7")
	t.Setenv("MATCHWEEK_STORAGE_PROVIDER", "memory")
	t.Setenv("MATCHWEEK_BROWSER_PAGE_TIMEOUT", "10s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, "memory", cfg.Storage.Provider)
	assert.Equal(t, 10*time.Second, cfg.Browser.PageTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Workers)
	require.ErrorContains(t, cfg.Validate(), "workers must be > 0")

	cfg.Workers = 3
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Season:    "2025/26",
			Workers:   2,
			Browser:   BrowserConfig{MinMatches: 1},
			Storage:   StorageConfig{Provider: "memory"},
			Ledger:    LedgerConfig{Driver: "none"},
			Transform: TransformConfig{Concurrency: 1},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"season", func(c *Config) { c.Season = " " }, "season is required"},
		{"workers", func(c *Config) { c.Workers = 0 }, "workers must be > 0"},
		{"task timeout", func(c *Config) { c.TaskTimeout = -time.Second }, "task_timeout"},
		{"season start", func(c *Config) { c.Seasons = map[string]int{"2019/20": 0} }, "seasons.2019/20"},
		{"min matches", func(c *Config) { c.Browser.MinMatches = 11 }, "browser.min_matches"},
		{"storage provider", func(c *Config) { c.Storage.Provider = "s3" }, "unknown storage.provider"},
		{"local dir", func(c *Config) { c.Storage = StorageConfig{Provider: "local"} }, "storage.local_dir"},
		{"gcs bucket", func(c *Config) { c.Storage = StorageConfig{Provider: "gcs"} }, "storage.gcs_bucket"},
		{"ledger driver", func(c *Config) { c.Ledger.Driver = "mysql" }, "unknown ledger.driver"},
		{"postgres dsn", func(c *Config) { c.Ledger.Driver = "postgres" }, "ledger.dsn"},
		{"sqlite path", func(c *Config) { c.Ledger.Driver = "sqlite" }, "ledger.path"},
		{"pubsub", func(c *Config) { c.PubSub.Enabled = true }, "pubsub.project_id"},
		{"transform", func(c *Config) { c.Transform.Concurrency = 0 }, "transform.concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
