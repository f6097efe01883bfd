package models

import (
	"time"
)

// Tournament statuses. Lifecycle is monotonic: upcoming → active → ended.
// cancelled is reachable only from upcoming/active.
const (
	TournamentStatusUpcoming  = "upcoming"
	TournamentStatusActive    = "active"
	TournamentStatusEnded     = "ended"
	TournamentStatusCancelled = "cancelled"
)

// Tournament is one recurring weekly competition. The ID is derived from
// (iso year, iso week), e.g. "weekly-2026-w35", so duplicate creation is
// naturally idempotent.
type Tournament struct {
	ID                  string     `json:"id" gorm:"primaryKey"`
	Name                string     `json:"name" gorm:"not null"`
	Slug                string     `json:"slug" gorm:"index"`
	Status              string     `json:"status" gorm:"not null;default:'upcoming';index"`
	StartDate           time.Time  `json:"start_date" gorm:"not null"`
	EndDate             time.Time  `json:"end_date" gorm:"not null"`
	RegistrationOpensAt time.Time  `json:"registration_opens_at"`
	PrizePoolCoins      int64      `json:"prize_pool_coins" gorm:"default:0"`
	MaxParticipants     int        `json:"max_participants" gorm:"default:0"`
	PrizesComputedAt    *time.Time `json:"prizes_computed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TournamentParticipant is the per-user standing inside one tournament,
// written only by the tournament leaderboard aggregator until close.
// BestScore is monotonically non-decreasing; FinalRank is set exactly once.
type TournamentParticipant struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TournamentID  string    `json:"tournament_id" gorm:"not null;uniqueIndex:idx_tournament_user"`
	UserID        string    `json:"user_id" gorm:"not null;uniqueIndex:idx_tournament_user"`
	BestScore     int64     `json:"best_score" gorm:"default:0"`
	TotalGames    int64     `json:"total_games" gorm:"default:0"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	FinalRank     *int      `json:"final_rank,omitempty"`
	PrizeWon      bool      `json:"prize_won" gorm:"default:false"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
