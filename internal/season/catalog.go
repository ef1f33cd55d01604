// Package season maps season tokens and matchweeks onto match identifiers.
package season

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// TotalMatchweeks is the number of rounds in a league season.
	TotalMatchweeks = 38
	// MatchesPerWeek is the number of fixtures in one round.
	MatchesPerWeek = 10
)

var (
	// ErrUnknownSeason is returned for seasons missing from the catalog.
	ErrUnknownSeason = errors.New("unknown season")
	// ErrMatchweekRange is returned for matchweeks outside 1..TotalMatchweeks.
	ErrMatchweekRange = errors.New("matchweek out of range")
)

// builtin holds the first match id of matchweek 1 per season. Match ids are
// sequential within a season but the gaps between seasons are irregular.
var builtin = map[string]int{
	"2025/26": 2561895,
	"2024/25": 2444470,
	"2023/24": 2367538,
}

// Catalog resolves seasons to match ids.
type Catalog struct {
	starts map[string]int
}

// NewCatalog returns a catalog with the built-in seasons plus overrides.
// Override keys may use either "2025/26" or "2025-26".
func NewCatalog(overrides map[string]int) (*Catalog, error) {
	starts := make(map[string]int, len(builtin)+len(overrides))
	for k, v := range builtin {
		starts[k] = v
	}
	for k, v := range overrides {
		if v <= 0 {
			return nil, fmt.Errorf("season %q start match id must be > 0", k)
		}
		starts[Normalize(k)] = v
	}
	return &Catalog{starts: starts}, nil
}

// Normalize converts a slug such as "2025-26" back into "2025/26".
func Normalize(season string) string {
	return strings.ReplaceAll(strings.TrimSpace(season), "-", "/")
}

// Slug renders a season for use in storage keys.
func Slug(season string) string {
	return strings.ReplaceAll(strings.TrimSpace(season), "/", "-")
}

// Known reports whether the catalog can resolve the season.
func (c *Catalog) Known(season string) bool {
	_, ok := c.starts[Normalize(season)]
	return ok
}

// Seasons lists catalogued seasons, newest first.
func (c *Catalog) Seasons() []string {
	out := make([]string, 0, len(c.starts))
	for k := range c.starts {
		out = append(out, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// MatchIDs returns the match ids of the given matchweek.
func (c *Catalog) MatchIDs(season string, matchweek int) ([]int, error) {
	start, ok := c.starts[Normalize(season)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSeason, season)
	}
	if matchweek < 1 || matchweek > TotalMatchweeks {
		return nil, fmt.Errorf("%w: %d", ErrMatchweekRange, matchweek)
	}
	first := start + (matchweek-1)*MatchesPerWeek
	ids := make([]int, MatchesPerWeek)
	for i := range ids {
		ids[i] = first + i
	}
	return ids, nil
}

// AllMatchweeks returns 1..TotalMatchweeks.
func AllMatchweeks() []int {
	out := make([]int, TotalMatchweeks)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// ParseMatchweeks parses tokens such as "1", "3-5" or "1,2" into matchweeks.
// Order is preserved and duplicates are kept; deduplication happens when the
// run is planned.
func ParseMatchweeks(tokens []string) ([]int, error) {
	var out []int
	for _, raw := range tokens {
		for _, tok := range strings.Split(raw, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			lo, hi, err := parseRange(tok)
			if err != nil {
				return nil, err
			}
			for mw := lo; mw <= hi; mw++ {
				out = append(out, mw)
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no matchweeks given")
	}
	return out, nil
}

func parseRange(tok string) (int, int, error) {
	loText, hiText, isRange := strings.Cut(tok, "-")
	lo, err := parseMatchweek(loText)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := parseMatchweek(hiText)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("invalid matchweek range %q", tok)
	}
	return lo, hi, nil
}

func parseMatchweek(s string) (int, error) {
	mw, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse matchweek %q: %w", s, err)
	}
	if mw < 1 || mw > TotalMatchweeks {
		return 0, fmt.Errorf("%w: %d", ErrMatchweekRange, mw)
	}
	return mw, nil
}
