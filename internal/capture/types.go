package capture

import (
	"fmt"
	"time"
)

// Status represents the terminal state of a capture task.
type Status string

// Task status values reported in results and persisted in the ledger.
const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Task is one unit of scrape work: a single matchweek of a season.
type Task struct {
	Season    string `json:"season"`
	Matchweek int    `json:"matchweek"`
}

func (t Task) String() string {
	return fmt.Sprintf("%s/mw%02d", t.Season, t.Matchweek)
}

// Stat is a single home/away statistic as displayed on a match page.
type Stat struct {
	Home       string   `json:"home"`
	Away       string   `json:"away"`
	HomeParsed *float64 `json:"home_parsed,omitempty"`
	AwayParsed *float64 `json:"away_parsed,omitempty"`
}

// MatchInfo holds the header details of a match page.
type MatchInfo struct {
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	HomeScore *int   `json:"home_score,omitempty"`
	AwayScore *int   `json:"away_score,omitempty"`
	Date      string `json:"date,omitempty"`
	Venue     string `json:"venue,omitempty"`
	Referee   string `json:"referee,omitempty"`
}

// Match is the structured record extracted from one match page.
type Match struct {
	MatchID            int                        `json:"match_id"`
	URL                string                     `json:"url"`
	Season             string                     `json:"season"`
	Matchweek          int                        `json:"matchweek"`
	Info               MatchInfo                  `json:"match_info"`
	Statistics         map[string]Stat            `json:"statistics"`
	DetailedStatistics map[string]map[string]Stat `json:"detailed_statistics,omitempty"`
	ScrapedAt          time.Time                  `json:"scraped_at"`
}

// Capture is the raw payload produced by one successful task. It is
// self-describing so downstream consumers need no other context.
type Capture struct {
	Season          string    `json:"season"`
	Matchweek       int       `json:"matchweek"`
	CapturedAt      time.Time `json:"captured_at"`
	Matches         []Match   `json:"matches"`
	MissingMatchIDs []int     `json:"missing_match_ids,omitempty"`
}

// Task returns the task the capture belongs to.
func (c Capture) Task() Task {
	return Task{Season: c.Season, Matchweek: c.Matchweek}
}

// Result is the outcome of exactly one task.
type Result struct {
	Task    Task
	Status  Status
	Capture *Capture
	Err     error

	// URI and ContentHash describe the sink entry written for a success.
	URI         string
	ContentHash string

	Worker   int
	Started  time.Time
	Finished time.Time
}

// Duration reports how long the task ran.
func (r Result) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// LedgerEntry is the persisted record of the latest outcome for a matchweek.
type LedgerEntry struct {
	RunID       string
	Season      string
	Matchweek   int
	Status      Status
	BlobURI     string
	ContentHash string
	MatchCount  int
	ErrorText   string
	RecordedAt  time.Time
}

// Notification announces that a capture is ready for downstream processing.
type Notification struct {
	RunID      string    `json:"run_id"`
	Season     string    `json:"season"`
	Matchweek  int       `json:"matchweek"`
	BlobURI    string    `json:"blob_uri"`
	MatchCount int       `json:"match_count"`
	CapturedAt time.Time `json:"captured_at"`
}
