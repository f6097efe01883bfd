package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekStart_ReturnsMonday(t *testing.T) {
	// 2026-08-30 is a Sunday; its ISO week started Monday 2026-08-24.
	sunday := time.Date(2026, 8, 30, 15, 4, 5, 0, time.UTC)
	start := WeekStart(sunday)

	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Monday, start.Weekday())

	// A Monday is its own week start.
	assert.Equal(t, start, WeekStart(start))
}

func TestWeekStart_SundayMidnightBoundary(t *testing.T) {
	// The last millisecond of Sunday and the first instant of Monday must
	// land in different weeks — this is the partition boundary rule.
	lastOfWeek := time.Date(2026, 8, 30, 23, 59, 59, 999_000_000, time.UTC)
	firstOfNext := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), WeekStart(lastOfWeek))
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), WeekStart(firstOfNext))
	assert.NotEqual(t, WeekLabel(lastOfWeek), WeekLabel(firstOfNext))
	assert.Equal(t, "2026w35", WeekLabel(lastOfWeek))
	assert.Equal(t, "2026w36", WeekLabel(firstOfNext))
}

func TestWeekStart_NonUTCInput(t *testing.T) {
	// Week boundaries are a UTC convention regardless of the input zone.
	nyc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// Sunday 21:00 in New York is Monday 01:00 UTC.
	local := time.Date(2026, 8, 30, 21, 0, 0, 0, nyc)

	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), WeekStart(local))
}

func TestNextWeekStart(t *testing.T) {
	sunday := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), NextWeekStart(sunday))

	// From a Monday, next week is seven days out, not today.
	monday := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), NextWeekStart(monday))
}

func TestWeekLabel_RoundTrip(t *testing.T) {
	for _, ts := range []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),   // ISO week 1
		time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC), // ISO week 53
	} {
		label := WeekLabel(ts)
		parsed, err := ParseWeekLabel(label)
		require.NoError(t, err, label)
		assert.Equal(t, WeekStart(ts), parsed, label)
	}
}

func TestParseWeekLabel_Invalid(t *testing.T) {
	for _, label := range []string{"", "garbage", "2026w99", "w12"} {
		_, err := ParseWeekLabel(label)
		assert.Error(t, err, label)
	}
}

func TestWeekStartOf(t *testing.T) {
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), WeekStartOf(2026, 35))
	assert.Equal(t, time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC), WeekStartOf(2026, 53))
}

func TestDayStart(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		DayStart(time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC)))
}
