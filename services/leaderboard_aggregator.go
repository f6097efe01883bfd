package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"arcade-analytics-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const leaderboardBatchSize = 1000

// LeaderboardAggregator consumes endless-mode game_ended events and maintains
// the global leaderboard. It is the one incremental consumer of game_ended:
// the aggregate upsert and the processed stamp share a transaction, and every
// upsert is a GREATEST/addition, so an at-least-once replay cannot corrupt
// the board.
type LeaderboardAggregator struct {
	DB    *gorm.DB
	Store *EventStore
	Log   *zap.Logger
}

func NewLeaderboardAggregator(db *gorm.DB, store *EventStore, log *zap.Logger) *LeaderboardAggregator {
	return &LeaderboardAggregator{DB: db, Store: store, Log: log}
}

type gameEndedPayload struct {
	Mode        string `json:"mode"`
	Score       int64  `json:"score"`
	DurationSec int64  `json:"duration_sec"`
}

// leaderboardDelta is the per-user contribution of one event batch.
type leaderboardDelta struct {
	HighScore    int64
	Games        int64
	PlaytimeSec  int64
	LastPlayedAt time.Time
}

// foldGameResults collapses a batch into per-user deltas. Non-endless events
// are consumed without contributing; malformed events are returned separately
// so they can be marked failed instead of blocking the batch.
func foldGameResults(events []models.GameEvent) (map[string]leaderboardDelta, []models.GameEvent, map[string]error) {
	deltas := map[string]leaderboardDelta{}
	consumed := make([]models.GameEvent, 0, len(events))
	failed := map[string]error{}

	for _, evt := range events {
		var p gameEndedPayload
		if err := json.Unmarshal([]byte(evt.Payload), &p); err != nil {
			failed[evt.ID] = fmt.Errorf("unparseable game_ended payload: %w", err)
			continue
		}
		consumed = append(consumed, evt)
		if p.Mode != "endless" {
			continue
		}

		d := deltas[evt.UserID]
		if p.Score > d.HighScore {
			d.HighScore = p.Score
		}
		d.Games++
		d.PlaytimeSec += p.DurationSec
		if evt.ReceivedAt.After(d.LastPlayedAt) {
			d.LastPlayedAt = evt.ReceivedAt
		}
		deltas[evt.UserID] = d
	}
	return deltas, consumed, failed
}

// Run processes one batch. Crash-safety: if the process dies before commit,
// nothing is stamped and the whole batch is refetched; the GREATEST upserts
// make the replay harmless.
func (a *LeaderboardAggregator) Run() error {
	events, err := a.Store.FetchUnprocessed(models.EventGameEnded, leaderboardBatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	deltas, consumed, failures := foldGameResults(events)

	rows := make([]models.LeaderboardEntry, 0, len(deltas))
	userIDs := make([]string, 0, len(deltas))
	for userID := range deltas {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs) // stable insert order keeps deadlocks away
	for _, userID := range userIDs {
		d := deltas[userID]
		rows = append(rows, models.LeaderboardEntry{
			UserID:           userID,
			HighScore:        d.HighScore,
			TotalGames:       d.Games,
			TotalPlaytimeSec: d.PlaytimeSec,
			LastPlayedAt:     d.LastPlayedAt,
		})
	}

	now := time.Now()
	err = a.DB.Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"high_score":         gorm.Expr("GREATEST(leaderboard_entries.high_score, EXCLUDED.high_score)"),
					"total_games":        gorm.Expr("leaderboard_entries.total_games + EXCLUDED.total_games"),
					"total_playtime_sec": gorm.Expr("leaderboard_entries.total_playtime_sec + EXCLUDED.total_playtime_sec"),
					"last_played_at":     gorm.Expr("GREATEST(leaderboard_entries.last_played_at, EXCLUDED.last_played_at)"),
					"updated_at":         now,
				}),
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("leaderboard upsert failed: %w", err)
			}
		}
		return a.Store.MarkProcessedTx(tx, consumed, now)
	})
	if err != nil {
		return err
	}

	for _, evt := range events {
		if ferr, ok := failures[evt.ID]; ok {
			if merr := a.Store.MarkFailed(&evt, ferr); merr != nil {
				a.Log.Error("failed to record event failure", zap.String("event_id", evt.ID), zap.Error(merr))
			}
		}
	}

	a.Log.Info("leaderboard batch applied",
		zap.Int("events", len(consumed)),
		zap.Int("users", len(rows)),
		zap.Int("failed", len(failures)))
	return nil
}
