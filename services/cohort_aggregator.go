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

// Retention horizons, in days after install.
var retentionHorizons = []int{1, 2, 3, 7, 30}

// CohortAggregator computes install cohorts (install date × campaign ×
// platform) and their Dn retention. A horizon is reported only once the
// cohort is old enough; until then it stays NULL and drops out of rollups
// instead of being counted as retained=0.
type CohortAggregator struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewCohortAggregator(db *gorm.DB, log *zap.Logger) *CohortAggregator {
	return &CohortAggregator{DB: db, Log: log}
}

// horizonMature reports whether a cohort installed on installDate can report
// day-d retention as of today.
func horizonMature(installDate time.Time, d int, today time.Time) bool {
	return !utils.DayStart(today).Before(utils.DayStart(installDate).AddDate(0, 0, d))
}

// RollupRetention combines per-cohort rows into one rate for a horizon by
// summing numerators and denominators separately and dividing once.
// Averaging per-cohort percentages is exactly the historical bug this
// replaces. Cohorts too young for the horizon are excluded entirely.
func RollupRetention(cohorts []models.CohortMetric, horizon int) (retained, size int64, rate *float64) {
	for _, c := range cohorts {
		r := retainedForHorizon(c, horizon)
		if r == nil {
			continue
		}
		retained += *r
		size += c.CohortSize
	}
	if size == 0 {
		return retained, size, nil
	}
	v := float64(retained) / float64(size)
	return retained, size, &v
}

func retainedForHorizon(c models.CohortMetric, d int) *int64 {
	switch d {
	case 1:
		return c.RetainedD1
	case 2:
		return c.RetainedD2
	case 3:
		return c.RetainedD3
	case 7:
		return c.RetainedD7
	case 30:
		return c.RetainedD30
	}
	return nil
}

// Run recomputes every cohort whose install date falls in the trailing
// lookbackDays window. cohort_size and each mature horizon are recomputed
// from event history, so replayed or duplicated events change nothing.
func (a *CohortAggregator) Run(now time.Time, lookbackDays int) error {
	since := utils.DayStart(now).AddDate(0, 0, -lookbackDays)

	var cohorts []struct {
		InstallDate time.Time
		CampaignID  string
		Platform    string
		CohortSize  int64
	}
	err := a.DB.Raw(`
		SELECT
			date_trunc('day', received_at)            AS install_date,
			COALESCE(payload->>'campaign_id', '')     AS campaign_id,
			COALESCE(payload->>'platform', '')        AS platform,
			COUNT(DISTINCT user_id)                   AS cohort_size
		FROM game_events
		WHERE event_type = 'install' AND received_at >= ?
		GROUP BY 1, 2, 3`,
		since,
	).Scan(&cohorts).Error
	if err != nil {
		return fmt.Errorf("failed to compute cohorts: %w", err)
	}

	for _, c := range cohorts {
		row := models.CohortMetric{
			InstallDate: utils.DayStart(c.InstallDate),
			CampaignID:  c.CampaignID,
			Platform:    c.Platform,
			CohortSize:  c.CohortSize,
		}
		for _, d := range retentionHorizons {
			if !horizonMature(row.InstallDate, d, now) {
				continue
			}
			retained, err := a.retainedOnDay(row, d)
			if err != nil {
				return err
			}
			switch d {
			case 1:
				row.RetainedD1 = &retained
			case 2:
				row.RetainedD2 = &retained
			case 3:
				row.RetainedD3 = &retained
			case 7:
				row.RetainedD7 = &retained
			case 30:
				row.RetainedD30 = &retained
			}
		}

		err = a.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "install_date"}, {Name: "campaign_id"}, {Name: "platform"}},
			UpdateAll: true,
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to upsert cohort %s/%s/%s: %w",
				row.InstallDate.Format("2006-01-02"), row.CampaignID, row.Platform, err)
		}
	}

	a.Log.Info("cohorts recomputed", zap.Int("cohorts", len(cohorts)))
	return nil
}

// retainedOnDay counts cohort members active exactly d days after install.
func (a *CohortAggregator) retainedOnDay(c models.CohortMetric, d int) (int64, error) {
	installDayEnd := c.InstallDate.AddDate(0, 0, 1)
	horizonStart := c.InstallDate.AddDate(0, 0, d)
	horizonEnd := horizonStart.AddDate(0, 0, 1)

	var retained int64
	err := a.DB.Raw(`
		SELECT COUNT(DISTINCT e.user_id)
		FROM game_events e
		WHERE e.received_at >= ? AND e.received_at < ?
		  AND e.user_id IN (
			SELECT DISTINCT user_id FROM game_events
			WHERE event_type = 'install'
			  AND received_at >= ? AND received_at < ?
			  AND COALESCE(payload->>'campaign_id', '') = ?
			  AND COALESCE(payload->>'platform', '') = ?
		  )`,
		horizonStart, horizonEnd,
		c.InstallDate, installDayEnd, c.CampaignID, c.Platform,
	).Scan(&retained).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute D%d retention: %w", d, err)
	}
	return retained, nil
}
