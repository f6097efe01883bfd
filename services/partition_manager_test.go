package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPartitionName(t *testing.T) {
	weekStart := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "game_events_2026w35", partitionName(weekStart))

	// Single-digit weeks are zero padded; names stay valid identifiers.
	jan := time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC) // Monday of ISO 2026w01
	assert.Equal(t, "game_events_2026w01", partitionName(jan))
}
