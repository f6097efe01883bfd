package models

import (
	"time"
)

// Prize is a write-once ledger row created at tournament close. The unique
// (tournament_id, user_id) index is what makes prize computation re-runnable
// without duplicates. ClaimedAt transitions null → timestamp exactly once.
type Prize struct {
	ID           string     `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       string     `json:"user_id" gorm:"not null;index;uniqueIndex:idx_prize_tournament_user"`
	TournamentID string     `json:"tournament_id" gorm:"not null;uniqueIndex:idx_prize_tournament_user"`
	Rank         int        `json:"rank" gorm:"not null"`
	Coins        int64      `json:"coins" gorm:"default:0"`
	Gems         int64      `json:"gems" gorm:"default:0"`
	AwardedAt    time.Time  `json:"awarded_at" gorm:"not null"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}
