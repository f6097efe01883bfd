package services

import (
	"fmt"
	"testing"
	"time"

	"arcade-analytics-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gameEndedEvent(id, userID, mode string, score, duration int64, at time.Time) models.GameEvent {
	return models.GameEvent{
		ID:         id,
		EventType:  models.EventGameEnded,
		UserID:     userID,
		Payload:    fmt.Sprintf(`{"mode":%q,"score":%d,"duration_sec":%d}`, mode, score, duration),
		ReceivedAt: at,
	}
}

func TestFoldGameResults_MaxScoreRegardlessOfOrder(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	// High score arrives first, then a lower one: the high score must stick.
	events := []models.GameEvent{
		gameEndedEvent("e1", "user-1", "endless", 900, 60, base),
		gameEndedEvent("e2", "user-1", "endless", 300, 45, base.Add(time.Minute)),
	}

	deltas, consumed, failed := foldGameResults(events)
	require.Empty(t, failed)
	assert.Len(t, consumed, 2)

	d := deltas["user-1"]
	assert.EqualValues(t, 900, d.HighScore)
	assert.EqualValues(t, 2, d.Games)
	assert.EqualValues(t, 105, d.PlaytimeSec)
	assert.Equal(t, base.Add(time.Minute), d.LastPlayedAt)
}

func TestFoldGameResults_NonEndlessConsumedButIgnored(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []models.GameEvent{
		gameEndedEvent("e1", "user-1", "tournament", 5000, 120, base),
	}

	deltas, consumed, failed := foldGameResults(events)
	assert.Empty(t, failed)
	// The event is consumed (stamped processed) so it is never refetched,
	// but it must not touch the endless leaderboard.
	assert.Len(t, consumed, 1)
	assert.Empty(t, deltas)
}

func TestFoldGameResults_MalformedGoesToFailed(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	bad := models.GameEvent{
		ID:         "e-bad",
		EventType:  models.EventGameEnded,
		UserID:     "user-2",
		Payload:    `{not json`,
		ReceivedAt: base,
	}
	events := []models.GameEvent{
		bad,
		gameEndedEvent("e-good", "user-1", "endless", 100, 30, base),
	}

	deltas, consumed, failed := foldGameResults(events)

	// The bad event must not block the good one.
	require.Len(t, failed, 1)
	assert.Error(t, failed["e-bad"])
	require.Len(t, consumed, 1)
	assert.Equal(t, "e-good", consumed[0].ID)
	assert.EqualValues(t, 100, deltas["user-1"].HighScore)
}

func TestFoldGameResults_MultipleUsers(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []models.GameEvent{
		gameEndedEvent("e1", "user-1", "endless", 100, 30, base),
		gameEndedEvent("e2", "user-2", "endless", 250, 90, base),
		gameEndedEvent("e3", "user-1", "endless", 150, 20, base.Add(time.Hour)),
	}

	deltas, _, failed := foldGameResults(events)
	require.Empty(t, failed)
	require.Len(t, deltas, 2)
	assert.EqualValues(t, 150, deltas["user-1"].HighScore)
	assert.EqualValues(t, 2, deltas["user-1"].Games)
	assert.EqualValues(t, 250, deltas["user-2"].HighScore)
	assert.EqualValues(t, 1, deltas["user-2"].Games)
}
