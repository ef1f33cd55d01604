package sink

import (
	"fmt"
	"path"

	"github.com/JakeFAU/matchweek-ingest/internal/season"
)

// Object names inside a matchweek directory.
const (
	CaptureObject = "capture.json"
	SummaryObject = "summary.csv"
	MatchesObject = "matches.csv"
)

// Layer names used in object keys.
const (
	LayerBronze = "bronze"
	LayerSilver = "silver"
)

// Key builds `<prefix>/<layer>/<season-slug>/matchweek_<NN>/<object>`.
// An empty prefix drops the leading segment.
func Key(prefix, layer, seasonName string, matchweek int, object string) string {
	return path.Join(prefix, layer, season.Slug(seasonName), fmt.Sprintf("matchweek_%02d", matchweek), object)
}
