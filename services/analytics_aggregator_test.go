package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMauWindow_ContainsTheDayItself(t *testing.T) {
	day := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	start, end := mauWindow(day)

	// The window ends at the day's exclusive upper bound, so every user active
	// on the day is inside it. This is what makes MAU >= DAU.
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 30*24*time.Hour, end.Sub(start))
}

func TestMauWindow_IgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2026, 8, 30, 0, 0, 1, 0, time.UTC)
	night := time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC)

	ms, me := mauWindow(morning)
	ns, ne := mauWindow(night)
	assert.Equal(t, ms, ns)
	assert.Equal(t, me, ne)
}
