package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/app"
	"github.com/JakeFAU/matchweek-ingest/internal/config"
	"github.com/JakeFAU/matchweek-ingest/internal/hostcheck"
	"github.com/JakeFAU/matchweek-ingest/internal/logging"
)

// envKeyType is the key for storing the command environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// deps holds the seams commands use to build the application. Tests replace
// them with fakes.
type deps struct {
	build     func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)
	newLogger func(cfg config.Config) (*zap.Logger, error)
	probe     hostcheck.Probe
}

func defaultDeps() deps {
	return deps{
		build: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
			return app.Build(ctx, cfg, logger, app.Options{})
		},
		newLogger: func(cfg config.Config) (*zap.Logger, error) {
			return logging.New(cfg.Logging.Development, cfg.Logging.Level)
		},
		probe: hostcheck.SystemProbe,
	}
}

// env is what PersistentPreRunE prepares for the subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	deps   deps
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd(d deps) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "matchweek-ingest",
		Short: "Scrapes Premier League matchweek stats and turns them into tables.",
		Long: `matchweek-ingest drives a small pool of headless Chrome sessions over the
matchweeks of a season, stores each matchweek's raw capture, and transforms
the captures into flat per-match CSV rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flag parsing, so subcommand flags can override the file.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyOverrides(cmd, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, err := d.newLogger(cfg)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger, deps: d}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := resolveEnv(cmd.Context()); err == nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newTransformCmd())
	cmd.AddCommand(newPipelineCmd())

	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// withApp builds the application, runs fn and always closes it again.
func (e *env) withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	a, err := e.deps.build(ctx, e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			e.logger.Warn("failed to close application", zap.Error(cerr))
		}
	}()
	if e.cfg.Metrics.Addr != "" {
		if _, err := a.StartOps(e.cfg.Metrics.Addr); err != nil {
			return err
		}
	}
	return fn(a)
}

// Execute is the main entry point. It exits non-zero when the command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(defaultDeps()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
