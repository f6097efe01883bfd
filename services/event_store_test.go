package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"arcade-analytics-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunDB builds statements without touching a server, for asserting the
// SQL the query builders generate.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=arcade dbname=arcade"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func testEventStore(holdUnknown bool) *EventStore {
	return &EventStore{
		Log: zap.NewNop(),
		Registry: &EventTypeRegistry{types: map[string]bool{
			models.EventInstall:     true,
			models.EventGameEnded:   true,
			models.EventPurchase:    true,
			models.EventTypeHolding: true,
		}},
		HoldUnknown: holdUnknown,
	}
}

func TestBuildEvent_Valid(t *testing.T) {
	s := testEventStore(false)
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	evt, err := s.BuildEvent(models.EventGameEnded, "user-1",
		map[string]interface{}{"mode": "endless", "score": 1200}, at)
	require.NoError(t, err)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, models.EventGameEnded, evt.EventType)
	assert.Equal(t, "user-1", evt.UserID)
	assert.Equal(t, at, evt.ReceivedAt)
	assert.Nil(t, evt.ProcessedAt)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(evt.Payload), &payload))
	assert.Equal(t, "endless", payload["mode"])
}

func TestBuildEvent_EmptyUserRejected(t *testing.T) {
	s := testEventStore(false)

	_, err := s.BuildEvent(models.EventGameEnded, "  ", nil, time.Now())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "user_id", vErr.Field)
}

func TestBuildEvent_EmptyTypeRejected(t *testing.T) {
	s := testEventStore(true) // holding mode must not rescue a blank type

	_, err := s.BuildEvent("", "user-1", nil, time.Now())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "event_type", vErr.Field)
}

func TestBuildEvent_UnknownTypeRejected(t *testing.T) {
	s := testEventStore(false)

	_, err := s.BuildEvent("mystery_event", "user-1", nil, time.Now())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "event_type", vErr.Field)
}

func TestBuildEvent_UnknownTypeParkedInHoldingMode(t *testing.T) {
	s := testEventStore(true)

	evt, err := s.BuildEvent("mystery_event", "user-1",
		map[string]interface{}{"level": 3}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeHolding, evt.EventType)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(evt.Payload), &payload))
	assert.Equal(t, "mystery_event", payload["original_type"])
	assert.EqualValues(t, 3, payload["level"])
}

func TestBuildEvent_HoldingTypeNeverDirect(t *testing.T) {
	// Clients may not submit the holding type themselves; outside holding mode
	// it is rejected like any other reserved name.
	s := testEventStore(false)
	_, err := s.BuildEvent(models.EventTypeHolding, "user-1", nil, time.Now())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestBuildEvent_NestedPayloadRejected(t *testing.T) {
	s := testEventStore(false)

	_, err := s.BuildEvent(models.EventPurchase, "user-1",
		map[string]interface{}{"item": map[string]interface{}{"sku": "coins_100"}},
		time.Now())
	var sErr *SchemaError
	require.ErrorAs(t, err, &sErr)
	assert.Contains(t, sErr.Error(), "item")

	_, err = s.BuildEvent(models.EventPurchase, "user-1",
		map[string]interface{}{"items": []interface{}{"a", "b"}}, time.Now())
	require.ErrorAs(t, err, &sErr)
}

func TestBuildEvent_ReceivedAtNormalizedToUTC(t *testing.T) {
	s := testEventStore(false)
	nyc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	evt, err := s.BuildEvent(models.EventInstall, "user-1", nil,
		time.Date(2026, 8, 30, 21, 0, 0, 0, nyc))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, evt.ReceivedAt.Location())
	assert.Equal(t, time.Date(2026, 8, 31, 1, 0, 0, 0, time.UTC), evt.ReceivedAt)
}

func TestBuildEvent_HoldingModeDoesNotMutateCallerPayload(t *testing.T) {
	s := testEventStore(true)
	payload := map[string]interface{}{"level": 3}

	_, err := s.BuildEvent("mystery_event", "user-1", payload, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, payload, "original_type")
	assert.Len(t, payload, 1)
}

func TestFetchUnprocessed_SkipsEventsAtAttemptCap(t *testing.T) {
	// Events that keep failing must drop out of the batch once they hit the
	// attempts cap, or a batch worth of old poison rows would be refetched
	// every run and newer valid events would never be reached. Capped rows
	// stay visible through FetchStuck.
	db := dryRunDB(t)
	s := testEventStore(false)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return s.unprocessedQuery(tx, models.EventGameEnded, 100).Find(&[]models.GameEvent{})
	})
	assert.Contains(t, sql, "processed_at IS NULL")
	assert.Contains(t, sql, fmt.Sprintf("processing_attempts < %d", maxProcessingAttempts))
	assert.Contains(t, sql, "ORDER BY received_at")
	assert.Contains(t, sql, "LIMIT 100")
}

func TestCheckFlatPayload(t *testing.T) {
	assert.NoError(t, checkFlatPayload(nil))
	assert.NoError(t, checkFlatPayload(map[string]interface{}{
		"score": 12.0, "mode": "endless", "won": true, "note": nil,
	}))

	err := checkFlatPayload(map[string]interface{}{"nested": map[string]interface{}{}})
	var sErr *SchemaError
	assert.True(t, errors.As(err, &sErr))
}
