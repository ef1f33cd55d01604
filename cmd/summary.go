package cmd

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/transform"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// renderSummary prints one row per matchweek of a scrape run.
func renderSummary(out io.Writer, s capture.Summary) {
	t := newTable(out)
	t.SetTitle(fmt.Sprintf("Scrape %s (run %s, %d workers)", s.Season, s.RunID, s.Workers))
	t.AppendHeader(table.Row{"Matchweek", "Status", "Detail"})

	rows := make(map[int]table.Row)
	for _, mw := range s.Succeeded {
		rows[mw] = table.Row{mw, string(capture.StatusSucceeded), s.URIs[mw]}
	}
	for _, mw := range s.Reused {
		rows[mw] = table.Row{mw, "reused", s.URIs[mw]}
	}
	for mw, reason := range s.Failed {
		rows[mw] = table.Row{mw, string(capture.StatusFailed), reason}
	}
	for _, mw := range s.Aborted {
		rows[mw] = table.Row{mw, string(capture.StatusAborted), ""}
	}
	appendSorted(t, rows)

	t.AppendFooter(table.Row{
		"Total",
		fmt.Sprintf("%d ok, %d reused, %d failed, %d aborted",
			len(s.Succeeded), len(s.Reused), len(s.Failed), len(s.Aborted)),
		s.Duration().Round(time.Millisecond).String(),
	})
	t.Render()
}

// renderReport prints one row per matchweek of a transform run.
func renderReport(out io.Writer, r transform.Report) {
	t := newTable(out)
	t.SetTitle(fmt.Sprintf("Transform %s", r.Season))
	t.AppendHeader(table.Row{"Matchweek", "Status", "Detail"})

	rows := make(map[int]table.Row)
	for mw, uri := range r.Written {
		rows[mw] = table.Row{mw, "written", uri}
	}
	for _, mw := range r.Missing {
		rows[mw] = table.Row{mw, "missing", "no bronze capture"}
	}
	for mw, reason := range r.Failed {
		rows[mw] = table.Row{mw, string(capture.StatusFailed), reason}
	}
	appendSorted(t, rows)

	t.AppendFooter(table.Row{
		"Total",
		fmt.Sprintf("%d written, %d missing, %d failed", len(r.Written), len(r.Missing), len(r.Failed)),
		"",
	})
	t.Render()
}

func appendSorted(t table.Writer, rows map[int]table.Row) {
	keys := make([]int, 0, len(rows))
	for mw := range rows {
		keys = append(keys, mw)
	}
	slices.Sort(keys)
	for _, mw := range keys {
		t.AppendRow(rows[mw])
	}
}
