package services

import (
	"fmt"
	"time"

	"arcade-analytics-system/models"
	"arcade-analytics-system/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnalyticsAggregator recomputes per-day platform counters and per-user
// totals straight from event history. Every unique-user number is a
// COUNT(DISTINCT user_id) in SQL — never an event count, never an average of
// counts — so reruns over the same days are idempotent by construction.
type AnalyticsAggregator struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewAnalyticsAggregator(db *gorm.DB, log *zap.Logger) *AnalyticsAggregator {
	return &AnalyticsAggregator{DB: db, Log: log}
}

// Run recomputes the trailing daysBack days (including today).
func (a *AnalyticsAggregator) Run(now time.Time, daysBack int) error {
	today := utils.DayStart(now)
	for i := daysBack - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		if err := a.recomputeDay(day); err != nil {
			return err
		}
	}
	if err := a.recomputeUserStats(today.AddDate(0, 0, -daysBack+1), today.AddDate(0, 0, 1)); err != nil {
		return err
	}
	a.Log.Info("analytics recomputed", zap.Int("days", daysBack))
	return nil
}

// mauWindow returns the trailing-30-day window [start, end) whose distinct
// active-user union defines MAU for the given day. It always contains the
// day itself, which is what makes MAU(T) >= DAU(T) hold.
func mauWindow(day time.Time) (time.Time, time.Time) {
	end := utils.DayStart(day).AddDate(0, 0, 1)
	return end.AddDate(0, 0, -30), end
}

func (a *AnalyticsAggregator) recomputeDay(day time.Time) error {
	dayEnd := day.AddDate(0, 0, 1)

	var counters struct {
		ActiveUsers int64
		NewInstalls int64
		Sessions    int64
		Crashes     int64
		RevenueUSD  float64
	}
	err := a.DB.Raw(`
		SELECT
			COUNT(DISTINCT user_id)                                           AS active_users,
			COUNT(DISTINCT user_id) FILTER (WHERE event_type = 'install')     AS new_installs,
			COUNT(*) FILTER (WHERE event_type = 'session_start')              AS sessions,
			COUNT(*) FILTER (WHERE event_type = 'crash')                      AS crashes,
			COALESCE(SUM(CASE WHEN event_type = 'purchase'
				THEN (payload->>'amount_usd')::numeric ELSE 0 END), 0)        AS revenue_usd
		FROM game_events
		WHERE received_at >= ? AND received_at < ?`,
		day, dayEnd,
	).Scan(&counters).Error
	if err != nil {
		return fmt.Errorf("failed to compute counters for %s: %w", day.Format("2006-01-02"), err)
	}

	// MAU is a rolling union over the trailing 30 days, not a daily snapshot.
	mauStart, mauEnd := mauWindow(day)
	var mau int64
	err = a.DB.Raw(
		`SELECT COUNT(DISTINCT user_id) FROM game_events WHERE received_at >= ? AND received_at < ?`,
		mauStart, mauEnd,
	).Scan(&mau).Error
	if err != nil {
		return fmt.Errorf("failed to compute MAU for %s: %w", day.Format("2006-01-02"), err)
	}

	metric := models.DailyMetric{
		Date:               day,
		ActiveUsers:        counters.ActiveUsers,
		MonthlyActiveUsers: mau,
		NewInstalls:        counters.NewInstalls,
		Sessions:           counters.Sessions,
		Crashes:            counters.Crashes,
		RevenueUSD:         counters.RevenueUSD,
	}
	err = a.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		UpdateAll: true,
	}).Create(&metric).Error
	if err != nil {
		return fmt.Errorf("failed to upsert daily metric: %w", err)
	}

	return a.recomputeFunnel(day, dayEnd)
}

// recomputeFunnel sets each step's unique-user count for the day. A user
// firing the same step five times still counts once.
func (a *AnalyticsAggregator) recomputeFunnel(day, dayEnd time.Time) error {
	var steps []struct {
		Step        string
		UniqueUsers int64
	}
	err := a.DB.Raw(`
		SELECT payload->>'step' AS step, COUNT(DISTINCT user_id) AS unique_users
		FROM game_events
		WHERE event_type = 'tutorial_step'
		  AND payload->>'step' IS NOT NULL
		  AND received_at >= ? AND received_at < ?
		GROUP BY payload->>'step'`,
		day, dayEnd,
	).Scan(&steps).Error
	if err != nil {
		return fmt.Errorf("failed to compute funnel for %s: %w", day.Format("2006-01-02"), err)
	}

	for _, s := range steps {
		row := models.FunnelDaily{Date: day, Step: s.Step, UniqueUsers: s.UniqueUsers}
		err := a.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "step"}},
			UpdateAll: true,
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to upsert funnel row %s/%s: %w", day.Format("2006-01-02"), s.Step, err)
		}
	}
	return nil
}

// recomputeUserStats rebuilds lifetime totals for every user active in the
// given window. Totals are recomputed over full history, so they stay a pure
// function of events regardless of how often this runs.
func (a *AnalyticsAggregator) recomputeUserStats(windowStart, windowEnd time.Time) error {
	err := a.DB.Exec(`
		INSERT INTO user_stats (user_id, sessions, crashes, revenue_usd, first_seen, last_seen, updated_at)
		SELECT
			user_id,
			COUNT(*) FILTER (WHERE event_type = 'session_start'),
			COUNT(*) FILTER (WHERE event_type = 'crash'),
			COALESCE(SUM(CASE WHEN event_type = 'purchase'
				THEN (payload->>'amount_usd')::numeric ELSE 0 END), 0),
			MIN(received_at),
			MAX(received_at),
			NOW()
		FROM game_events
		WHERE user_id IN (
			SELECT DISTINCT user_id FROM game_events
			WHERE received_at >= ? AND received_at < ?
		)
		GROUP BY user_id
		ON CONFLICT (user_id) DO UPDATE SET
			sessions    = EXCLUDED.sessions,
			crashes     = EXCLUDED.crashes,
			revenue_usd = EXCLUDED.revenue_usd,
			first_seen  = EXCLUDED.first_seen,
			last_seen   = EXCLUDED.last_seen,
			updated_at  = EXCLUDED.updated_at`,
		windowStart, windowEnd,
	).Error
	if err != nil {
		return fmt.Errorf("failed to recompute user stats: %w", err)
	}
	return nil
}
