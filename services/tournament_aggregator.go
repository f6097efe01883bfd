package services

import (
	"fmt"

	"arcade-analytics-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TournamentLeaderboardAggregator maintains participant standings for every
// open tournament. Rather than consuming the processed flag (which belongs to
// the global leaderboard consumer), it recomputes each open tournament's
// window straight from event history — the standings are a pure function of
// events in [start_date, end_date), so reruns and replays are free.
type TournamentLeaderboardAggregator struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewTournamentLeaderboardAggregator(db *gorm.DB, log *zap.Logger) *TournamentLeaderboardAggregator {
	return &TournamentLeaderboardAggregator{DB: db, Log: log}
}

const tournamentUpsertSQL = `
INSERT INTO tournament_participants
	(id, tournament_id, user_id, best_score, total_games, last_attempt_at, updated_at)
SELECT
	gen_random_uuid(),
	?,
	user_id,
	MAX(COALESCE((payload->>'score')::bigint, 0)),
	COUNT(*),
	MAX(received_at),
	NOW()
FROM game_events
WHERE event_type = ?
  AND received_at >= ?
  AND received_at < ?
GROUP BY user_id
ON CONFLICT (tournament_id, user_id) DO UPDATE SET
	best_score      = GREATEST(tournament_participants.best_score, EXCLUDED.best_score),
	total_games     = GREATEST(tournament_participants.total_games, EXCLUDED.total_games),
	last_attempt_at = GREATEST(tournament_participants.last_attempt_at, EXCLUDED.last_attempt_at),
	updated_at      = EXCLUDED.updated_at`

// RefreshOne recomputes standings for a single tournament's score window.
// Also used by the lifecycle close path for one final sweep before ranks
// freeze, so events from the last aggregation interval still count.
func (a *TournamentLeaderboardAggregator) RefreshOne(t models.Tournament) error {
	res := a.DB.Exec(tournamentUpsertSQL, t.ID, models.EventGameEnded, t.StartDate, t.EndDate)
	if res.Error != nil {
		return fmt.Errorf("failed to upsert participants for %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected > 0 {
		a.Log.Info("tournament standings updated",
			zap.String("tournament_id", t.ID),
			zap.Int64("participants", res.RowsAffected))
	}
	return nil
}

// Run upserts standings for every upcoming/active tournament. best_score and
// last_attempt_at only move forward; final_rank is never touched here.
func (a *TournamentLeaderboardAggregator) Run() error {
	var open []models.Tournament
	err := a.DB.
		Where("status IN ?", []string{models.TournamentStatusUpcoming, models.TournamentStatusActive}).
		Find(&open).Error
	if err != nil {
		return fmt.Errorf("failed to load open tournaments: %w", err)
	}

	for _, t := range open {
		if err := a.RefreshOne(t); err != nil {
			return err
		}
	}
	return nil
}
