package tui

import (
	"fmt"
	"time"
)

// FormatEligibility formats a not-before or next-eligible time relative to
// now. Past and zero times render as "now"; future times as a compact
// countdown.
func FormatEligibility(t time.Time, now time.Time) string {
	if t.IsZero() || !t.After(now) {
		return "now"
	}
	return "in " + FormatCompactDuration(t.Sub(now))
}

// FormatCompactDuration renders a duration as the two most significant
// units: "1h05m", "12m30s", "45s".
func FormatCompactDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// RelativeTime formats a past time as a human-readable relative string:
// "just now", "2 minutes ago", "1 hour ago", "3 days ago".
func RelativeTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
