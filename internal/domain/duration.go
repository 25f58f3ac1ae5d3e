package domain

import "fmt"

const (
	minutesPerHour = 60
	minutesPerDay  = 24 * minutesPerHour
)

// FormatDuration renders a minute count as a coarse, human-readable span.
// Tiers key off the whole-day component only, so 29 days reads as weeks and 30 as a month.
func FormatDuration(totalMinutes int) string {
	if totalMinutes < 1 {
		return "Less than a minute"
	}
	days := totalMinutes / minutesPerDay
	hours := (totalMinutes % minutesPerDay) / minutesPerHour
	minutes := totalMinutes % minutesPerHour

	switch {
	case days >= 30:
		return plural(days/30, "month")
	case days >= 7:
		return plural(days/7, "week")
	case days > 0:
		if hours > 0 {
			return fmt.Sprintf("%s %dh", plural(days, "day"), hours)
		}
		return plural(days, "day")
	case hours > 0:
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return plural(hours, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
