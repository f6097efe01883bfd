// utils/week.go
package utils

import (
	"fmt"
	"time"
)

// All weekly boundaries in the system use one convention: ISO weeks starting
// Monday 00:00 UTC. Partitions, tournaments and weekly aggregates all align
// to it so nothing ever straddles a week ambiguously.

// WeekStart returns Monday 00:00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// Monday=0 ... Sunday=6
	offset := (int(midnight.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}

// NextWeekStart returns the Monday 00:00 UTC strictly after t.
func NextWeekStart(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 7)
}

// WeekLabel formats the ISO (year, week) of t as e.g. "2026w35".
func WeekLabel(t time.Time) string {
	year, week := WeekStart(t).ISOWeek()
	return fmt.Sprintf("%dw%02d", year, week)
}

// WeekStartOf returns Monday 00:00 UTC of the given ISO year/week.
func WeekStartOf(isoYear, isoWeek int) time.Time {
	// Jan 4 is always inside ISO week 1.
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, time.UTC)
	return WeekStart(jan4).AddDate(0, 0, (isoWeek-1)*7)
}

// ParseWeekLabel parses a label produced by WeekLabel back into the week's
// Monday 00:00 UTC.
func ParseWeekLabel(label string) (time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(label, "%dw%02d", &year, &week); err != nil {
		return time.Time{}, fmt.Errorf("invalid week label %q: %w", label, err)
	}
	if week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("invalid week label %q: week out of range", label)
	}
	return WeekStartOf(year, week), nil
}

// DayStart returns midnight UTC of t's day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
