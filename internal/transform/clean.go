package transform

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

// Kind classifies a parsed statistic value.
type Kind int

// Value kinds.
const (
	KindEmpty Kind = iota
	KindNumber
	// KindRatio is a count with a success percentage, e.g. "5 (60%)".
	KindRatio
	KindText
)

// Value is a cleaned statistic cell.
type Value struct {
	Kind    Kind
	Number  float64
	Percent float64
	Text    string
}

var ratioPattern = regexp.MustCompile(`([\d.]+)\s*\(([\d.]+)%\)`)

// ParseValue interprets a raw statistic string. Distances ("12.3km") and
// percentages ("55%") become plain numbers; anything unrecognized is kept as text.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{Kind: KindEmpty}
	}
	if strings.Contains(s, "(") && strings.Contains(s, ")") {
		if m := ratioPattern.FindStringSubmatch(s); m != nil {
			n, errN := strconv.ParseFloat(m[1], 64)
			p, errP := strconv.ParseFloat(m[2], 64)
			if errN == nil && errP == nil {
				return Value{Kind: KindRatio, Number: n, Percent: p}
			}
		}
	}
	if lower := strings.ToLower(s); strings.HasSuffix(lower, "km") {
		if n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(lower, "km")), 64); err == nil {
			return Value{Kind: KindNumber, Number: n}
		}
	}
	if strings.HasSuffix(s, "%") {
		if n, err := strconv.ParseFloat(strings.TrimRight(s, "%"), 64); err == nil {
			return Value{Kind: KindNumber, Number: n}
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Value{Kind: KindNumber, Number: n}
	}
	return Value{Kind: KindText, Text: s}
}

// String renders the value for CSV output. Whole numbers print without a fraction.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber, KindRatio:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindText:
		return v.Text
	default:
		return ""
	}
}

// StatValue is a cleaned home/away statistic.
type StatValue struct {
	Home Value
	Away Value
}

// CleanMatch is a match with trimmed header fields and parsed statistics.
type CleanMatch struct {
	MatchID   int
	Season    string
	Matchweek int
	Info      capture.MatchInfo
	Stats     map[string]StatValue
}

// Clean trims header strings and merges headline and detailed statistics into
// one parsed set. Detailed categories are applied in name order and override
// headline stats with the same name.
func Clean(m capture.Match) CleanMatch {
	info := m.Info
	info.HomeTeam = strings.TrimSpace(info.HomeTeam)
	info.AwayTeam = strings.TrimSpace(info.AwayTeam)
	info.Date = strings.TrimSpace(info.Date)
	info.Venue = strings.TrimSpace(info.Venue)
	info.Referee = strings.TrimSpace(info.Referee)

	raw := make(map[string]capture.Stat, len(m.Statistics))
	for name, st := range m.Statistics {
		raw[name] = st
	}
	categories := make([]string, 0, len(m.DetailedStatistics))
	for cat := range m.DetailedStatistics {
		categories = append(categories, cat)
	}
	slices.Sort(categories)
	for _, cat := range categories {
		for name, st := range m.DetailedStatistics[cat] {
			raw[name] = st
		}
	}

	stats := make(map[string]StatValue, len(raw))
	for name, st := range raw {
		clean := strings.TrimSpace(name)
		// The possession bar sometimes swaps label and value cells.
		if strings.Contains(clean, "%") && strings.ContainsAny(clean, "0123456789") &&
			(st.Home == "Possession" || st.Away == "Possession") {
			clean = "Possession"
		}
		stats[clean] = StatValue{Home: ParseValue(st.Home), Away: ParseValue(st.Away)}
	}

	return CleanMatch{
		MatchID:   m.MatchID,
		Season:    m.Season,
		Matchweek: m.Matchweek,
		Info:      info,
		Stats:     stats,
	}
}
