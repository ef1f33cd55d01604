package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/matchweek-ingest/internal/app"
)

// newTransformCmd creates the 'transform' subcommand.
func newTransformCmd() *cobra.Command {
	var sel selection
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Turns bronze captures into silver CSV rows",
		Long: `Reads previously written captures, cleans and flattens each match's stats
and writes one CSV per matchweek. Matchweeks without a capture are reported
and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(a *app.App) error {
				return runTransform(cmd.Context(), e, a, sel, cmd.OutOrStdout())
			})
		},
	}
	addSelectionFlags(cmd, &sel)
	return cmd
}

func runTransform(ctx context.Context, e *env, a *app.App, sel selection, out io.Writer) error {
	seasons := sel.seasonList(e.cfg)
	matchweeks, err := sel.matchweekList()
	if err != nil {
		return err
	}
	if err := checkSeasons(a.Catalog, seasons); err != nil {
		return err
	}
	var errs []error
	for _, name := range seasons {
		if err := transformSeason(ctx, a, name, matchweeks, out); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

func transformSeason(ctx context.Context, a *app.App, name string, matchweeks []int, out io.Writer) error {
	report, err := a.Transformer.Run(ctx, name, matchweeks)
	renderReport(out, report)
	if err != nil {
		return fmt.Errorf("transform %s: %w", name, err)
	}
	return nil
}
