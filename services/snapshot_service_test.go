package services

import (
	"testing"
	"time"

	"arcade-analytics-system/models"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotStale(t *testing.T) {
	fresh := models.SnapshotVersion{
		Name:          snapshotLeaderboard,
		ActiveVersion: 3,
		RefreshedAt:   time.Now(),
	}
	assert.False(t, snapshotStale(fresh))

	// A rebuild in flight or a failed last rebuild both flag the active
	// version as behind.
	assert.True(t, snapshotStale(models.SnapshotVersion{Refreshing: true}))
	assert.True(t, snapshotStale(models.SnapshotVersion{LastError: "rebuild failed"}))
	assert.True(t, snapshotStale(models.SnapshotVersion{Refreshing: true, LastError: "rebuild failed"}))
}
