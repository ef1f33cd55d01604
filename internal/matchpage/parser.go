// Package matchpage turns a rendered match page into a structured record.
package matchpage

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

var (
	teamSelectors = []string{
		".match-header__team-name",
		".team-name",
		`[class*="team-name"]`,
		".mc-summary__team-name",
	}
	scorePattern   = regexp.MustCompile(`(\d+)\s*[-–]\s*(\d+)`)
	leadingNumber  = regexp.MustCompile(`^([\d.]+)`)
	categoryPrefix = []struct {
		prefix   string
		category string
	}{
		{"top stats", "top_stats"},
		{"attack", "attack"},
		{"possession", "possession"},
		{"defence", "defence"},
		{"defense", "defence"},
		{"physical", "physical"},
		{"discipline", "discipline"},
	}
)

const (
	scoreSelector   = `.match-header__score, .score, [class*="score"]`
	dateSelector    = `.match-header__date, [class*="match-date"], time`
	venueSelector   = `.match-header__venue, [class*="venue"]`
	refereeSelector = `[class*="referee"]`
	statRowSelector = `.match-stats__table-row, [class*="stats-row"], [class*="stat-row"]`
	statName        = `.match-stats__stat-name, [class*="stat-name"], [class*="name"]`
	statHome        = `.match-stats__table-cell--home, [class*="home"][class*="value"], td:first-child`
	statAway        = `.match-stats__table-cell--away, [class*="away"][class*="value"], td:last-child`
	detailRow       = ".match-stats__table-row"
	detailCell      = ".match-stats__table-cell"
)

// Parse extracts match info and statistics from rendered HTML. The caller
// fills in identifiers such as match id, season, and matchweek.
func Parse(html []byte) (capture.Match, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return capture.Match{}, fmt.Errorf("parse match html: %w", err)
	}
	info, ok := parseInfo(doc)
	if !ok {
		return capture.Match{}, fmt.Errorf("team names not found: %w", capture.ErrUnexpectedStructure)
	}
	return capture.Match{
		Info:               info,
		Statistics:         parseStats(doc),
		DetailedStatistics: parseDetailed(doc),
	}, nil
}

func parseInfo(doc *goquery.Document) (capture.MatchInfo, bool) {
	var info capture.MatchInfo
	found := false
	for _, sel := range teamSelectors {
		teams := doc.Find(sel)
		if teams.Length() >= 2 {
			info.HomeTeam = text(teams.Eq(0))
			info.AwayTeam = text(teams.Eq(1))
			found = true
			break
		}
	}
	if !found || info.HomeTeam == "" || info.AwayTeam == "" {
		return capture.MatchInfo{}, false
	}

	if score := doc.Find(scoreSelector).First(); score.Length() > 0 {
		if m := scorePattern.FindStringSubmatch(text(score)); m != nil {
			home, _ := strconv.Atoi(m[1])
			away, _ := strconv.Atoi(m[2])
			info.HomeScore = &home
			info.AwayScore = &away
		}
	}
	info.Date = text(doc.Find(dateSelector).First())
	info.Venue = text(doc.Find(venueSelector).First())
	info.Referee = strings.TrimSpace(strings.Replace(text(doc.Find(refereeSelector).First()), "Referee:", "", 1))
	return info, true
}

func parseStats(doc *goquery.Document) map[string]capture.Stat {
	stats := make(map[string]capture.Stat)
	doc.Find(statRowSelector).Each(func(_ int, row *goquery.Selection) {
		name := text(row.Find(statName).First())
		if name == "" {
			return
		}
		home := text(row.Find(statHome).First())
		away := text(row.Find(statAway).First())
		stats[name] = capture.Stat{
			Home:       home,
			Away:       away,
			HomeParsed: leadingValue(home),
			AwayParsed: leadingValue(away),
		}
	})
	return stats
}

func parseDetailed(doc *goquery.Document) map[string]map[string]capture.Stat {
	out := make(map[string]map[string]capture.Stat)
	doc.Find(detailRow).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find(detailCell)
		if cells.Length() < 3 {
			return
		}
		name := text(cells.Eq(1))
		if name == "" || strings.Contains(name, "undefined") {
			return
		}
		category := categoryOf(row.Closest(`[class*="section"]`))
		if out[category] == nil {
			out[category] = make(map[string]capture.Stat)
		}
		out[category][name] = capture.Stat{
			Home: text(cells.Eq(0)),
			Away: text(cells.Eq(2)),
		}
	})
	return out
}

func categoryOf(section *goquery.Selection) string {
	if section.Length() == 0 {
		return "top_stats"
	}
	heading := strings.ToLower(text(section))
	for _, c := range categoryPrefix {
		if strings.HasPrefix(heading, c.prefix) {
			return c.category
		}
	}
	return "top_stats"
}

func leadingValue(s string) *float64 {
	m := leadingNumber.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

func text(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}
