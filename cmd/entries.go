package cmd

import (
	"fmt"
	"io"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"mts/internal/cache"
	"mts/internal/utils"
)

// Entry status labels shared by the list command and the browser
const (
	statusFresh   = "fresh"
	statusStale   = "stale"
	statusUntimed = "untimed"
	statusOrphan  = "orphan"
)

// entryStatus classifies an entry against the freshness window
func entryStatus(e cache.EntryInfo, now time.Time, freshness time.Duration) string {
	switch {
	case !e.HasValue:
		return statusOrphan
	case e.Timestamp.IsZero():
		return statusUntimed
	case e.Age(now) <= freshness:
		return statusFresh
	default:
		return statusStale
	}
}

func renderEntriesTable(w io.Writer, entries []cache.EntryInfo, now time.Time, freshness time.Duration) {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)

	t.AppendHeader(prettytable.Row{"Key", "Size", "Written", "Status"})

	var total int64
	for _, e := range entries {
		total += e.Size
		t.AppendRow(prettytable.Row{
			e.Key,
			utils.FormatBytes(e.Size),
			utils.FormatAge(e.Timestamp, now),
			entryStatus(e, now, freshness),
		})
	}
	t.AppendFooter(prettytable.Row{fmt.Sprintf("%s entries", utils.FormatCount(len(entries))), utils.FormatBytes(total), "", ""})

	fmt.Fprintln(w, t.Render())
}
