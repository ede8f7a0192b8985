package utils

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes formats a byte count using binary units, e.g. "1.5 KB"
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatAge renders ts relative to now, e.g. "3 minutes ago". A zero ts
// renders as "-".
func FormatAge(ts, now time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return humanize.RelTime(ts, now, "ago", "from now")
}

// FormatCount renders n with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}
