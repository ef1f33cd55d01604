package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/matchweek-ingest/internal/config"
	"github.com/JakeFAU/matchweek-ingest/internal/season"
)

// selection is the season and matchweek choice shared by every subcommand.
type selection struct {
	seasons    []string
	matchweeks []string
	all        bool
}

func addSelectionFlags(cmd *cobra.Command, sel *selection) {
	flags := cmd.Flags()
	flags.String("season", "", "season to process, e.g. 2025/26 (overrides config)")
	flags.StringSliceVar(&sel.seasons, "seasons", nil, "several seasons to process one after another")
	flags.StringSliceVar(&sel.matchweeks, "matchweeks", nil, `matchweeks such as "1,2,5-7"`)
	flags.BoolVar(&sel.all, "all-matchweeks", false, "process every matchweek of the season")
	flags.String("metrics-addr", "", "serve health and metrics endpoints on this address")
}

// applyOverrides copies explicitly set flags over the loaded configuration.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if f := flags.Lookup("season"); f != nil && f.Changed {
		cfg.Season = season.Normalize(f.Value.String())
	}
	if f := flags.Lookup("workers"); f != nil && f.Changed {
		workers, err := flags.GetInt("workers")
		if err != nil {
			return fmt.Errorf("read --workers: %w", err)
		}
		cfg.Workers = workers
	}
	if f := flags.Lookup("metrics-addr"); f != nil && f.Changed {
		cfg.Metrics.Addr = f.Value.String()
	}
	return nil
}

// seasonList returns the normalized seasons to process, falling back to the
// configured season.
func (s selection) seasonList(cfg config.Config) []string {
	if len(s.seasons) == 0 {
		return []string{season.Normalize(cfg.Season)}
	}
	out := make([]string, 0, len(s.seasons))
	for _, name := range s.seasons {
		out = append(out, season.Normalize(name))
	}
	return out
}

func (s selection) matchweekList() ([]int, error) {
	switch {
	case s.all && len(s.matchweeks) > 0:
		return nil, errors.New("--matchweeks and --all-matchweeks are mutually exclusive")
	case s.all:
		return season.AllMatchweeks(), nil
	case len(s.matchweeks) == 0:
		return nil, errors.New("pass --matchweeks or --all-matchweeks")
	}
	return season.ParseMatchweeks(s.matchweeks)
}

// checkSeasons rejects seasons the catalog cannot resolve before any browser starts.
func checkSeasons(catalog *season.Catalog, seasons []string) error {
	for _, name := range seasons {
		if !catalog.Known(name) {
			return fmt.Errorf("%w: %s (known: %v)", season.ErrUnknownSeason, name, catalog.Seasons())
		}
	}
	return nil
}
