package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/app"
	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/capture/capturetest"
	"github.com/JakeFAU/matchweek-ingest/internal/config"
	"github.com/JakeFAU/matchweek-ingest/internal/hostcheck"
	"github.com/JakeFAU/matchweek-ingest/internal/season"
	"github.com/JakeFAU/matchweek-ingest/internal/transform"
)

const testConfigYAML = `
season: "2025/26"
workers: 2
browser:
  enabled: false
storage:
  provider: memory
ledger:
  driver: none
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))
	return path
}

func testDeps(factory *capturetest.Factory) deps {
	return deps{
		build: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
			return app.Build(ctx, cfg, logger, app.Options{Factory: factory, Registerer: prometheus.NewRegistry()})
		},
		newLogger: func(config.Config) (*zap.Logger, error) { return zap.NewNop(), nil },
		probe: func(context.Context) (hostcheck.Capacity, error) {
			return hostcheck.Capacity{AvailableMB: 1 << 16, LogicalCPUs: 16}, nil
		},
	}
}

func execute(t *testing.T, d deps, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(d)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapeCommand(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{}
	out, err := execute(t, testDeps(factory),
		"scrape", "--config", writeConfig(t), "--matchweeks", "1-3", "--workers", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "Scrape 2025/26")
	assert.Equal(t, 3, strings.Count(out, string(capture.StatusSucceeded)))
	assert.Equal(t, 3, factory.Stats().Acquired)
	assert.LessOrEqual(t, factory.Stats().MaxLive, 2)
	assert.Zero(t, factory.Live())
}

func TestScrapeCommandFailsWithoutSuccess(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{
		AcquireErr: func(int) error { return errors.New("chrome not found") },
	}
	out, err := execute(t, testDeps(factory), "scrape", "--config", writeConfig(t), "--matchweeks", "4,5")
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrNoSuccess)
	assert.Equal(t, 2, strings.Count(out, "chrome not found"))
}

func TestScrapeCommandPartialFailureSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	factory := &capturetest.Factory{
		AcquireErr: func(int) error {
			if calls.Add(1) == 1 {
				return errors.New("chrome crashed")
			}
			return nil
		},
	}
	out, err := execute(t, testDeps(factory),
		"scrape", "--config", writeConfig(t), "--matchweeks", "1,2", "--workers", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "chrome crashed")
	assert.Contains(t, out, "1 ok, 0 reused, 1 failed, 0 aborted")
}

func TestScrapeCommandRejectsUnknownSeason(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{}
	_, err := execute(t, testDeps(factory),
		"scrape", "--config", writeConfig(t), "--season", "1999-00", "--all-matchweeks")
	require.ErrorIs(t, err, season.ErrUnknownSeason)
	assert.Zero(t, factory.Stats().Acquired)
}

func TestPipelineCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, testDeps(&capturetest.Factory{}),
		"pipeline", "--config", writeConfig(t), "--matchweeks", "1,2")
	require.NoError(t, err)
	assert.Contains(t, out, "Transform 2025/26")
	assert.Equal(t, 2, strings.Count(out, "matches.csv"))
}

func TestPipelineSkipScrapeNeedsCaptures(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{}
	out, err := execute(t, testDeps(factory),
		"pipeline", "--config", writeConfig(t), "--matchweeks", "1", "--skip-scrape")
	require.ErrorIs(t, err, transform.ErrNothingTransformed)
	assert.Contains(t, out, "no bronze capture")
	assert.Zero(t, factory.Stats().Acquired)
}

func TestTransformCommandNeedsSelection(t *testing.T) {
	t.Parallel()

	_, err := execute(t, testDeps(&capturetest.Factory{}), "transform", "--config", writeConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--matchweeks or --all-matchweeks")
}

func TestConfigErrorsStopTheCommand(t *testing.T) {
	t.Parallel()

	_, err := execute(t, testDeps(&capturetest.Factory{}),
		"scrape", "--config", writeConfig(t), "--matchweeks", "1", "--workers", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be > 0")
}

func TestWorkersFlagRepairsConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(testConfigYAML, "workers: 2", "workers: 0", 1)), 0o600))

	factory := &capturetest.Factory{}
	_, err := execute(t, testDeps(factory), "scrape", "--config", path, "--matchweeks", "1", "--workers", "3")
	require.NoError(t, err)
	assert.Equal(t, 1, factory.Stats().Acquired)
}

func TestSelectionMatchweekList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sel     selection
		want    []int
		wantErr string
	}{
		{name: "ranges", sel: selection{matchweeks: []string{"1", "3-4"}}, want: []int{1, 3, 4}},
		{name: "all", sel: selection{all: true}, want: season.AllMatchweeks()},
		{name: "none", sel: selection{}, wantErr: "pass --matchweeks"},
		{name: "both", sel: selection{all: true, matchweeks: []string{"1"}}, wantErr: "mutually exclusive"},
		{name: "out of range", sel: selection{matchweeks: []string{"39"}}, wantErr: "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.sel.matchweekList()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectionSeasonList(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Season: "2025-26"}
	assert.Equal(t, []string{"2025/26"}, selection{}.seasonList(cfg))
	assert.Equal(t, []string{"2023/24", "2024/25"},
		selection{seasons: []string{"2023-24", "2024/25"}}.seasonList(cfg))
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "x"}
	var opts scrapeOptions
	addScrapeFlags(cmd, &opts)
	require.NoError(t, cmd.ParseFlags([]string{"--season", "2024-25", "--workers", "5", "--metrics-addr", ":9090"}))

	cfg := config.Config{Season: "2025/26", Workers: 3}
	require.NoError(t, applyOverrides(cmd, &cfg))
	assert.Equal(t, "2024/25", cfg.Season)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	s := capture.NewSummary("run-1", "2025/26", 2, []int{1, 2, 3, 4}, start)
	s.Add(capture.Result{Task: capture.Task{Matchweek: 2}, Status: capture.StatusSucceeded, URI: "mem://mw2"})
	s.Add(capture.Result{Task: capture.Task{Matchweek: 3}, Status: capture.StatusFailed, Err: errors.New("timeout")})
	s.Add(capture.Result{Task: capture.Task{Matchweek: 4}, Status: capture.StatusAborted})
	s.AddReused(1, "mem://mw1")
	s.Finish(start.Add(90 * time.Second))

	var out bytes.Buffer
	renderSummary(&out, s)
	text := out.String()

	assert.Contains(t, text, "run run-1")
	assert.Less(t, strings.Index(text, "mem://mw1"), strings.Index(text, "mem://mw2"))
	assert.Less(t, strings.Index(text, "mem://mw2"), strings.Index(text, "timeout"))
	assert.Contains(t, text, "1 ok, 1 reused, 1 failed, 1 aborted")
	assert.Contains(t, text, "1m30s")
}
