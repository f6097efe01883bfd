package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"arcade-analytics-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxProcessingAttempts is the point at which a repeatedly failing event is
// surfaced for inspection. The row itself always stays in place.
const maxProcessingAttempts = 5

// EventTypeRegistry is the versioned allow-list of event types, loaded from
// the event_types table at startup. Adding a type is an insert, never a code
// edit at the call sites.
type EventTypeRegistry struct {
	mu    sync.RWMutex
	types map[string]bool
}

func (r *EventTypeRegistry) Allowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[name]
}

func (r *EventTypeRegistry) replace(types map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = types
}

// EventStore owns the append-only, weekly-partitioned game_events table.
type EventStore struct {
	DB          *gorm.DB
	Log         *zap.Logger
	Registry    *EventTypeRegistry
	HoldUnknown bool // route unrecognized-but-well-formed types to the holding type
}

func NewEventStore(db *gorm.DB, log *zap.Logger, holdUnknown bool) *EventStore {
	return &EventStore{
		DB:          db,
		Log:         log,
		Registry:    &EventTypeRegistry{types: map[string]bool{}},
		HoldUnknown: holdUnknown,
	}
}

// Migrate creates the partitioned parent table and its partial index. GORM's
// AutoMigrate cannot emit PARTITION BY, so this is raw DDL. Partitions
// themselves are the PartitionManager's job.
func (s *EventStore) Migrate() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS game_events (
			id uuid NOT NULL,
			event_type text NOT NULL,
			user_id text NOT NULL,
			payload jsonb,
			received_at timestamptz NOT NULL,
			processed_at timestamptz,
			processing_attempts integer NOT NULL DEFAULT 0,
			processing_error text,
			PRIMARY KEY (id, received_at)
		) PARTITION BY RANGE (received_at)`,
		// Makes "unprocessed of type X" cheap no matter how large the table gets.
		`CREATE INDEX IF NOT EXISTS idx_game_events_unprocessed
			ON game_events (event_type, received_at)
			WHERE processed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_game_events_user ON game_events (user_id, received_at)`,
	}
	for _, stmt := range ddl {
		if err := s.DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("event store migration failed: %w", err)
		}
	}
	return s.seedEventTypes()
}

// seedEventTypes inserts the version-1 allow-list additively and loads the
// registry. Existing rows are never updated.
func (s *EventStore) seedEventTypes() error {
	seed := []models.EventTypeDef{
		{Name: models.EventInstall, Version: 1},
		{Name: models.EventSessionStart, Version: 1},
		{Name: models.EventSessionEnd, Version: 1},
		{Name: models.EventGameEnded, Version: 1},
		{Name: models.EventPurchase, Version: 1},
		{Name: models.EventCrash, Version: 1},
		{Name: models.EventTutorialStep, Version: 1},
		{Name: models.EventTypeHolding, Version: 1},
	}
	if err := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("failed to seed event types: %w", err)
	}
	return s.ReloadRegistry()
}

// ReloadRegistry re-reads the active allow-list from the database.
func (s *EventStore) ReloadRegistry() error {
	var defs []models.EventTypeDef
	if err := s.DB.Where("active = ?", true).Find(&defs).Error; err != nil {
		return fmt.Errorf("failed to load event types: %w", err)
	}
	types := make(map[string]bool, len(defs))
	for _, d := range defs {
		types[d.Name] = true
	}
	s.Registry.replace(types)
	return nil
}

// BuildEvent validates raw ingestion input and produces the immutable event
// row. Unknown types either reject (ValidationError) or, in holding mode, are
// parked under the holding type with the original type preserved in payload.
func (s *EventStore) BuildEvent(eventType, userID string, payload map[string]interface{}, receivedAt time.Time) (*models.GameEvent, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(eventType) == "" {
		return nil, &ValidationError{Field: "event_type", Reason: "must not be empty"}
	}
	if err := checkFlatPayload(payload); err != nil {
		return nil, err
	}

	if !s.Registry.Allowed(eventType) || eventType == models.EventTypeHolding {
		if !s.HoldUnknown {
			return nil, &ValidationError{Field: "event_type", Reason: fmt.Sprintf("%q is not an allowed event type", eventType)}
		}
		// Annotate a copy; the caller's map stays untouched.
		annotated := make(map[string]interface{}, len(payload)+1)
		for k, v := range payload {
			annotated[k] = v
		}
		annotated["original_type"] = eventType
		payload = annotated
		eventType = models.EventTypeHolding
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("payload not serializable: %v", err)}
	}

	return &models.GameEvent{
		ID:         uuid.NewString(),
		EventType:  eventType,
		UserID:     userID,
		Payload:    string(raw),
		ReceivedAt: receivedAt.UTC(),
	}, nil
}

// checkFlatPayload enforces the flat-document rule: scalar values only.
func checkFlatPayload(payload map[string]interface{}) error {
	for k, v := range payload {
		switch v.(type) {
		case map[string]interface{}:
			return &SchemaError{Reason: fmt.Sprintf("field %q is a nested object", k)}
		case []interface{}:
			return &SchemaError{Reason: fmt.Sprintf("field %q is an array", k)}
		}
	}
	return nil
}

// Append inserts one event. A missing weekly partition is a loud failure —
// better to reject ingestion for the week than to silently drop events.
func (s *EventStore) Append(evt *models.GameEvent) error {
	if err := s.DB.Create(evt).Error; err != nil {
		if strings.Contains(err.Error(), "no partition of relation") {
			s.Log.Error("no partition for event week — ensure_future_partitions is behind",
				zap.Time("received_at", evt.ReceivedAt), zap.Error(err))
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// unprocessedQuery selects rows still eligible for processing: unprocessed,
// of the given type, and under the attempts cap. Rows at the cap stay in
// place and are served by FetchStuck instead — without the cap filter, a
// batch worth of permanently failing old events would be refetched forever
// and starve everything newer.
func (s *EventStore) unprocessedQuery(db *gorm.DB, eventType string, limit int) *gorm.DB {
	return db.
		Where("event_type = ? AND processed_at IS NULL AND processing_attempts < ?",
			eventType, maxProcessingAttempts).
		Order("received_at ASC").
		Limit(limit)
}

// FetchUnprocessed returns unprocessed events of one type in arrival order,
// bounded. Served by the partial index, so cost is independent of table size.
func (s *EventStore) FetchUnprocessed(eventType string, limit int) ([]models.GameEvent, error) {
	var events []models.GameEvent
	if err := s.unprocessedQuery(s.DB, eventType, limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch unprocessed %s events: %w", eventType, err)
	}
	return events, nil
}

// MarkProcessedTx stamps processed_at inside the caller's transaction. This
// is the sole commit boundary for incremental consumers: the aggregate upsert
// and the stamp commit or roll back together.
func (s *EventStore) MarkProcessedTx(tx *gorm.DB, events []models.GameEvent, now time.Time) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	err := tx.Model(&models.GameEvent{}).
		Where("id IN ?", ids).
		Update("processed_at", now.UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to mark %d events processed: %w", len(ids), err)
	}
	return nil
}

// MarkFailed records a processing failure without losing the event. The row
// stays put; once attempts pass the cap it is only logged for inspection.
func (s *EventStore) MarkFailed(evt *models.GameEvent, procErr error) error {
	res := s.DB.Model(&models.GameEvent{}).
		Where("id = ? AND received_at = ?", evt.ID, evt.ReceivedAt).
		Updates(map[string]interface{}{
			"processing_attempts": gorm.Expr("processing_attempts + 1"),
			"processing_error":    procErr.Error(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record processing failure: %w", res.Error)
	}
	if evt.ProcessingAttempts+1 >= maxProcessingAttempts {
		s.Log.Warn("event exceeded processing attempts, needs inspection",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.EventType),
			zap.Int("attempts", evt.ProcessingAttempts+1),
			zap.String("error", procErr.Error()))
	}
	return nil
}

// FetchStuck lists events that have failed repeatedly, for operator review.
func (s *EventStore) FetchStuck(limit int) ([]models.GameEvent, error) {
	var events []models.GameEvent
	err := s.DB.
		Where("processed_at IS NULL AND processing_attempts >= ?", maxProcessingAttempts).
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stuck events: %w", err)
	}
	return events, nil
}
