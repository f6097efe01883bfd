package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"arcade-analytics-system/models"
	"arcade-analytics-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// prizeTier maps a final-rank range to its reward.
type prizeTier struct {
	FromRank int
	ToRank   int
	Coins    int64
	Gems     int64
}

// Weekly tournament reward tiers: 1 / 2 / 3 / 4-10 / 11-50.
var prizeTiers = []prizeTier{
	{FromRank: 1, ToRank: 1, Coins: 1000, Gems: 100},
	{FromRank: 2, ToRank: 2, Coins: 500, Gems: 50},
	{FromRank: 3, ToRank: 3, Coins: 250, Gems: 25},
	{FromRank: 4, ToRank: 10, Coins: 100, Gems: 10},
	{FromRank: 11, ToRank: 50, Coins: 25, Gems: 0},
}

// prizeForRank returns the reward for a final rank, or ok=false outside the
// rewarded range.
func prizeForRank(rank int) (coins, gems int64, ok bool) {
	for _, t := range prizeTiers {
		if rank >= t.FromRank && rank <= t.ToRank {
			return t.Coins, t.Gems, true
		}
	}
	return 0, 0, false
}

// totalPrizeBudgetCoins is the most coins one tournament can ever pay out.
func totalPrizeBudgetCoins() int64 {
	var total int64
	for _, t := range prizeTiers {
		total += int64(t.ToRank-t.FromRank+1) * t.Coins
	}
	return total
}

// standingsSweeper forces a final standings recompute for one tournament
// before its ranks freeze.
type standingsSweeper interface {
	RefreshOne(t models.Tournament) error
}

// TournamentService is the time-driven lifecycle state machine: it creates
// the recurring weekly tournaments, advances their statuses on wall-clock
// time, and computes prizes exactly once at close. It owns the Tournament and
// Prize tables.
type TournamentService struct {
	DB        *gorm.DB
	Standings standingsSweeper
	Log       *zap.Logger
}

func NewTournamentService(db *gorm.DB, standings standingsSweeper, log *zap.Logger) *TournamentService {
	return &TournamentService{DB: db, Standings: standings, Log: log}
}

// TournamentIDFor derives the deterministic id of the tournament whose cycle
// starts at weekStart. Same week in, same id out — duplicate creation is a
// natural no-op.
func TournamentIDFor(weekStart time.Time) string {
	year, week := weekStart.ISOWeek()
	return fmt.Sprintf("weekly-%d-w%02d", year, week)
}

// CreateNext inserts next week's tournament if it does not exist yet.
// Scheduled shortly before each cycle boundary; safe to run any number of
// times.
func (s *TournamentService) CreateNext(now time.Time) error {
	start := utils.NextWeekStart(now)
	end := start.AddDate(0, 0, 7)
	name := fmt.Sprintf("Weekly Arcade Cup %s", utils.WeekLabel(start))

	t := models.Tournament{
		ID:                  TournamentIDFor(start),
		Name:                name,
		Slug:                slug.Make(name),
		Status:              models.TournamentStatusUpcoming,
		StartDate:           start,
		EndDate:             end,
		RegistrationOpensAt: start.AddDate(0, 0, -1),
		PrizePoolCoins:      totalPrizeBudgetCoins(),
	}

	res := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&t)
	if res.Error != nil {
		return fmt.Errorf("failed to create tournament %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected > 0 {
		s.Log.Info("created next weekly tournament",
			zap.String("tournament_id", t.ID),
			zap.Time("start", start))
	}
	return nil
}

// validTransition is the single source of truth for the status machine.
func validTransition(from, to string) bool {
	switch from {
	case models.TournamentStatusUpcoming:
		return to == models.TournamentStatusActive ||
			to == models.TournamentStatusEnded ||
			to == models.TournamentStatusCancelled
	case models.TournamentStatusActive:
		return to == models.TournamentStatusEnded ||
			to == models.TournamentStatusCancelled
	}
	return false
}

// AdvanceStatuses moves tournaments along the clock. The active→ended flip is
// a conditional UPDATE on the old status, so concurrent runs agree on which
// one saw the transition. Prize computation runs separately, as a catch-up
// over ended tournaments that have not paid out, so it survives crashes and
// failed runs.
func (s *TournamentService) AdvanceStatuses(now time.Time) error {
	err := s.DB.Model(&models.Tournament{}).
		Where("status = ? AND start_date <= ? AND end_date > ?", models.TournamentStatusUpcoming, now, now).
		Update("status", models.TournamentStatusActive).Error
	if err != nil {
		return fmt.Errorf("failed to activate tournaments: %w", err)
	}

	var closing []models.Tournament
	err = s.DB.
		Where("status IN ? AND end_date <= ?",
			[]string{models.TournamentStatusUpcoming, models.TournamentStatusActive}, now).
		Find(&closing).Error
	if err != nil {
		return fmt.Errorf("failed to load closing tournaments: %w", err)
	}

	for _, t := range closing {
		res := s.DB.Model(&models.Tournament{}).
			Where("id = ? AND status = ?", t.ID, t.Status).
			Update("status", models.TournamentStatusEnded)
		if res.Error != nil {
			return fmt.Errorf("failed to end tournament %s: %w", t.ID, res.Error)
		}
		if res.RowsAffected > 0 {
			s.Log.Info("tournament ended", zap.String("tournament_id", t.ID))
		}
	}

	// Prize computation is a catch-up pass over ended tournaments whose
	// prizes_computed_at is still unset, so a failed sweep or prize run is
	// retried every cycle until it lands.
	var pending []models.Tournament
	if err := s.pendingPrizeQuery(s.DB).Find(&pending).Error; err != nil {
		return fmt.Errorf("failed to load tournaments awaiting prizes: %w", err)
	}
	for _, t := range pending {
		if err := s.closeOut(t); err != nil {
			s.Log.Error("tournament close-out failed, will retry",
				zap.String("tournament_id", t.ID), zap.Error(err))
		}
	}
	return nil
}

// pendingPrizeQuery selects ended tournaments that have not paid out yet.
// Cancelled tournaments never match; they pay nothing.
func (s *TournamentService) pendingPrizeQuery(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND prizes_computed_at IS NULL", models.TournamentStatusEnded)
}

// closeOut finalizes one ended tournament: sweeps the score window one last
// time so events from the final aggregation interval are in the standings,
// then computes prizes. Ranks must never freeze over stale standings, so a
// failed sweep blocks the prize run for this cycle.
func (s *TournamentService) closeOut(t models.Tournament) error {
	if err := s.Standings.RefreshOne(t); err != nil {
		return fmt.Errorf("final standings sweep for %s: %w", t.ID, err)
	}
	return s.ComputePrizes(t.ID)
}

// Cancel moves a tournament to cancelled, allowed from upcoming/active only.
func (s *TournamentService) Cancel(id string) error {
	var t models.Tournament
	if err := s.DB.First(&t, "id = ?", id).Error; err != nil {
		return fmt.Errorf("tournament %s not found: %w", id, err)
	}
	if t.Status == models.TournamentStatusEnded || t.Status == models.TournamentStatusCancelled {
		return fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
	}
	if !validTransition(t.Status, models.TournamentStatusCancelled) {
		return fmt.Errorf("%w: %s to cancelled", ErrInvalidTransition, t.Status)
	}
	return s.DB.Model(&models.Tournament{}).
		Where("id = ? AND status = ?", id, t.Status).
		Update("status", models.TournamentStatusCancelled).Error
}

// rankParticipants orders by (best_score desc, last_attempt_at asc) — ties go
// to whoever got there first — and returns the ordered slice.
func rankParticipants(participants []models.TournamentParticipant) []models.TournamentParticipant {
	ranked := make([]models.TournamentParticipant, len(participants))
	copy(ranked, participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].BestScore != ranked[j].BestScore {
			return ranked[i].BestScore > ranked[j].BestScore
		}
		return ranked[i].LastAttemptAt.Before(ranked[j].LastAttemptAt)
	})
	return ranked
}

// ComputePrizes ranks participants and writes the prize ledger for one ended
// tournament. Re-runnable: prizes_computed_at short-circuits a finished run,
// final_rank is only set where still null, and the unique
// (tournament_id, user_id) prize index swallows any duplicate insert.
func (s *TournamentService) ComputePrizes(tournamentID string) error {
	var t models.Tournament
	if err := s.DB.First(&t, "id = ?", tournamentID).Error; err != nil {
		return fmt.Errorf("tournament %s not found: %w", tournamentID, err)
	}
	if t.Status != models.TournamentStatusEnded {
		return fmt.Errorf("%w: cannot award prizes while %s", ErrInvalidTransition, t.Status)
	}
	if t.PrizesComputedAt != nil {
		return nil
	}

	var participants []models.TournamentParticipant
	if err := s.DB.Where("tournament_id = ?", tournamentID).Find(&participants).Error; err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}

	ranked := rankParticipants(participants)
	now := time.Now().UTC()

	return s.DB.Transaction(func(tx *gorm.DB) error {
		for i := range ranked {
			rank := i + 1
			coins, gems, rewarded := prizeForRank(rank)

			res := tx.Model(&models.TournamentParticipant{}).
				Where("tournament_id = ? AND user_id = ? AND final_rank IS NULL",
					tournamentID, ranked[i].UserID).
				Updates(map[string]interface{}{
					"final_rank": rank,
					"prize_won":  rewarded,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to set final rank: %w", res.Error)
			}

			if !rewarded {
				continue
			}
			prize := models.Prize{
				ID:           uuid.NewString(),
				UserID:       ranked[i].UserID,
				TournamentID: tournamentID,
				Rank:         rank,
				Coins:        coins,
				Gems:         gems,
				AwardedAt:    now,
			}
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&prize).Error
			if err != nil {
				return fmt.Errorf("failed to write prize for %s: %w", ranked[i].UserID, err)
			}
		}

		err := tx.Model(&models.Tournament{}).
			Where("id = ?", tournamentID).
			Update("prizes_computed_at", now).Error
		if err != nil {
			return fmt.Errorf("failed to stamp prize computation: %w", err)
		}
		s.Log.Info("prizes computed",
			zap.String("tournament_id", tournamentID),
			zap.Int("participants", len(ranked)))
		return nil
	})
}

// pickCurrent is the one shared "current tournament" rule: active beats
// upcoming, earlier start wins inside a status. Ended and cancelled never
// qualify.
func pickCurrent(tournaments []models.Tournament) *models.Tournament {
	var best *models.Tournament
	priority := func(status string) int {
		switch status {
		case models.TournamentStatusActive:
			return 0
		case models.TournamentStatusUpcoming:
			return 1
		}
		return 2
	}
	for i := range tournaments {
		t := &tournaments[i]
		if priority(t.Status) > 1 {
			continue
		}
		if best == nil ||
			priority(t.Status) < priority(best.Status) ||
			(priority(t.Status) == priority(best.Status) && t.StartDate.Before(best.StartDate)) {
			best = t
		}
	}
	return best
}

// CurrentTournament returns the tournament clients should see right now.
func (s *TournamentService) CurrentTournament() (*models.Tournament, error) {
	var open []models.Tournament
	err := s.DB.
		Where("status IN ?", []string{models.TournamentStatusActive, models.TournamentStatusUpcoming}).
		Find(&open).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open tournaments: %w", err)
	}
	return pickCurrent(open), nil
}

// --- HTTP endpoints ---

func (s *TournamentService) GetCurrentTournament(c *fiber.Ctx) error {
	t, err := s.CurrentTournament()
	if err != nil {
		s.Log.Error("failed to resolve current tournament", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch tournament"})
	}
	if t == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no open tournament"})
	}
	return c.JSON(t)
}

func (s *TournamentService) GetTournamentByID(c *fiber.Ctx) error {
	var t models.Tournament
	if err := s.DB.First(&t, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(t)
}

// GetTournamentLeaderboard returns standings ordered by the same rule prize
// computation uses.
func (s *TournamentService) GetTournamentLeaderboard(c *fiber.Ctx) error {
	var participants []models.TournamentParticipant
	err := s.DB.
		Where("tournament_id = ?", c.Params("id")).
		Order("best_score DESC, last_attempt_at ASC").
		Limit(100).
		Find(&participants).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch standings"})
	}
	return c.JSON(participants)
}
