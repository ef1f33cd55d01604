package transform

import (
	"bytes"
	"encoding/csv"
	"slices"
	"strconv"
	"strings"
)

// BaseColumns lead every silver row, in this order.
var BaseColumns = []string{
	"match_id", "season", "matchweek", "date", "venue", "referee",
	"home_team", "away_team", "home_score", "away_score",
}

var columnReplacer = strings.NewReplacer(" ", "_", "(", "", ")", "", "%", "")

// ColumnName converts a statistic label into a column stem, e.g.
// "Shots on target" -> "shots_on_target", "Possession %" -> "possession".
func ColumnName(stat string) string {
	return strings.Trim(columnReplacer.Replace(strings.ToLower(strings.TrimSpace(stat))), "_")
}

// Row is one flattened match keyed by column name.
type Row map[string]string

// Flatten turns a cleaned match into a single row with home_/away_ columns per
// statistic. Ratio values add a <side>_<stat>_pct column.
func Flatten(m CleanMatch) Row {
	row := Row{
		"match_id":   strconv.Itoa(m.MatchID),
		"season":     m.Season,
		"matchweek":  strconv.Itoa(m.Matchweek),
		"date":       m.Info.Date,
		"venue":      m.Info.Venue,
		"referee":    m.Info.Referee,
		"home_team":  m.Info.HomeTeam,
		"away_team":  m.Info.AwayTeam,
		"home_score": intCell(m.Info.HomeScore),
		"away_score": intCell(m.Info.AwayScore),
	}
	for name, st := range m.Stats {
		stem := ColumnName(name)
		if stem == "" {
			continue
		}
		setSide(row, "home_"+stem, st.Home)
		setSide(row, "away_"+stem, st.Away)
	}
	return row
}

func setSide(row Row, col string, v Value) {
	row[col] = v.String()
	if v.Kind == KindRatio {
		row[col+"_pct"] = strconv.FormatFloat(v.Percent, 'f', -1, 64)
	}
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// Columns returns BaseColumns followed by the sorted union of every other
// column present in rows.
func Columns(rows []Row) []string {
	base := make(map[string]struct{}, len(BaseColumns))
	for _, c := range BaseColumns {
		base[c] = struct{}{}
	}
	extra := make(map[string]struct{})
	for _, r := range rows {
		for c := range r {
			if _, ok := base[c]; !ok {
				extra[c] = struct{}{}
			}
		}
	}
	rest := make([]string, 0, len(extra))
	for c := range extra {
		rest = append(rest, c)
	}
	slices.Sort(rest)
	return append(slices.Clone(BaseColumns), rest...)
}

// EncodeCSV writes rows under a header of Columns(rows). Absent cells are empty.
func EncodeCSV(rows []Row) ([]byte, error) {
	cols := Columns(rows)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	record := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			record[i] = r[c]
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
