package models

import (
	"time"
)

// Known event types, seeded into the event_types allow-list at version 1.
const (
	EventInstall      = "install"
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventGameEnded    = "game_ended"
	EventPurchase     = "purchase"
	EventCrash        = "crash"
	EventTutorialStep = "tutorial_step"

	// EventTypeHolding parks well-formed events of unrecognized types when
	// holding mode is on. The original type is preserved in the payload.
	EventTypeHolding = "_holding"
)

// GameEvent is one immutable row in the append-only, weekly-partitioned
// game_events table. Rows are never updated after insert except for the
// processing bookkeeping columns. The primary key includes received_at because
// Postgres requires the partition key in it.
type GameEvent struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:uuid"`
	EventType          string     `json:"event_type" gorm:"not null"`
	UserID             string     `json:"user_id" gorm:"not null"`
	Payload            string     `json:"payload" gorm:"type:jsonb"`
	ReceivedAt         time.Time  `json:"received_at" gorm:"primaryKey"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	ProcessingAttempts int        `json:"processing_attempts" gorm:"default:0"`
	ProcessingError    string     `json:"processing_error,omitempty"`
}

// EventTypeDef is one row of the versioned event-type allow-list. Definitions
// are additive: a schema change is a new version row, never an update.
type EventTypeDef struct {
	Name      string    `json:"name" gorm:"primaryKey"`
	Version   int       `json:"version" gorm:"primaryKey;default:1"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
