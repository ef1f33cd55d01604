package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/app"
	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/coordinator"
	"github.com/JakeFAU/matchweek-ingest/internal/hostcheck"
)

type scrapeOptions struct {
	sel    selection
	resume bool
}

func addScrapeFlags(cmd *cobra.Command, opts *scrapeOptions) {
	addSelectionFlags(cmd, &opts.sel)
	cmd.Flags().Int("workers", 0, "maximum concurrent browser sessions (overrides config)")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "skip matchweeks that already have a capture")
}

// newScrapeCmd creates the 'scrape' subcommand.
func newScrapeCmd() *cobra.Command {
	var opts scrapeOptions
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Captures matchweek stats into the bronze layer",
		Long: `Runs one capture task per requested matchweek on a bounded pool of
browser sessions. Failed matchweeks are listed in the summary; the command
fails only when nothing usable was captured or the run was interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				_, err := runScrape(cmd.Context(), e, a, opts, cmd.OutOrStdout())
				return err
			})
		},
	}
	addScrapeFlags(cmd, &opts)
	return cmd
}

// runScrape scrapes every selected season in turn and returns their summaries.
func runScrape(ctx context.Context, e *env, a *app.App, opts scrapeOptions, out io.Writer) ([]capture.Summary, error) {
	seasons := opts.sel.seasonList(e.cfg)
	matchweeks, err := opts.sel.matchweekList()
	if err != nil {
		return nil, err
	}
	if err := checkSeasons(a.Catalog, seasons); err != nil {
		return nil, err
	}
	preflight(ctx, e)

	var (
		summaries []capture.Summary
		errs      []error
	)
	for _, name := range seasons {
		summary, err := scrapeSeason(ctx, e, a, name, matchweeks, opts.resume, out)
		summaries = append(summaries, summary)
		if err != nil {
			errs = append(errs, err)
			var aborted *capture.RunAbortedError
			if errors.As(err, &aborted) {
				break
			}
		}
	}
	return summaries, errors.Join(errs...)
}

func scrapeSeason(ctx context.Context, e *env, a *app.App, name string, matchweeks []int, resume bool, out io.Writer) (capture.Summary, error) {
	summary, err := a.Coordinator.Run(ctx, coordinator.Request{
		Season:     name,
		Matchweeks: matchweeks,
		Workers:    e.cfg.Workers,
		Resume:     resume,
	})
	if summary.RunID != "" {
		renderSummary(out, summary)
	}
	if err != nil {
		return summary, fmt.Errorf("scrape %s: %w", name, err)
	}
	return summary, nil
}

// preflight warns when the worker bound exceeds what the host can hold.
func preflight(ctx context.Context, e *env) {
	if !e.cfg.Browser.Enabled {
		return
	}
	advice := hostcheck.Check(ctx, e.deps.probe, e.cfg.Workers, e.cfg.Browser.MemoryBudgetMB, e.logger.Named("hostcheck"))
	if !advice.OK() {
		e.logger.Info("continuing with the requested worker bound",
			zap.Int("workers", e.cfg.Workers),
			zap.Int("suggested_workers", advice.Suggested),
		)
	}
}
