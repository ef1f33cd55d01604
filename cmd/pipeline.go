package cmd

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/matchweek-ingest/internal/app"
	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

type pipelineOptions struct {
	scrapeOptions
	skipScrape bool
}

// newPipelineCmd creates the 'pipeline' subcommand.
func newPipelineCmd() *cobra.Command {
	var opts pipelineOptions
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Scrapes and then transforms the selected matchweeks",
		Long: `Runs a scrape and transforms every matchweek that ended up with a usable
capture. With --skip-scrape only the transform runs, over the selected
matchweeks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				return runPipeline(cmd.Context(), e, a, opts, cmd.OutOrStdout())
			})
		},
	}
	addScrapeFlags(cmd, &opts.scrapeOptions)
	cmd.Flags().BoolVar(&opts.skipScrape, "skip-scrape", false, "only transform existing captures")
	return cmd
}

func runPipeline(ctx context.Context, e *env, a *app.App, opts pipelineOptions, out io.Writer) error {
	if opts.skipScrape {
		return runTransform(ctx, e, a, opts.sel, out)
	}
	seasons := opts.sel.seasonList(e.cfg)
	matchweeks, err := opts.sel.matchweekList()
	if err != nil {
		return err
	}
	if err := checkSeasons(a.Catalog, seasons); err != nil {
		return err
	}
	preflight(ctx, e)

	var errs []error
	for _, name := range seasons {
		summary, err := scrapeSeason(ctx, e, a, name, matchweeks, opts.resume, out)
		if err != nil {
			errs = append(errs, err)
			var aborted *capture.RunAbortedError
			if errors.As(err, &aborted) {
				break
			}
			// Partial results never come with an error, so there is nothing to transform.
			continue
		}
		if err := transformSeason(ctx, a, name, summary.Available(), out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
