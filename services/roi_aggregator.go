package services

import (
	"fmt"

	"arcade-analytics-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ROIAggregator joins imported campaign spend with attributed installs and
// revenue. The spend import itself is the cost worker's problem; this job
// only reads campaign_spend, so a failed import skips one refresh without
// touching anyone else.
type ROIAggregator struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewROIAggregator(db *gorm.DB, log *zap.Logger) *ROIAggregator {
	return &ROIAggregator{DB: db, Log: log}
}

// ComputeCPI is cost per install; undefined (nil), not zero, without installs.
func ComputeCPI(costUSD float64, installs int64) *float64 {
	if installs == 0 {
		return nil
	}
	v := costUSD / float64(installs)
	return &v
}

// ComputeROIPercent is (revenue-cost)/cost*100; undefined without spend.
func ComputeROIPercent(revenueUSD, costUSD float64) *float64 {
	if costUSD == 0 {
		return nil
	}
	v := (revenueUSD - costUSD) / costUSD * 100
	return &v
}

// Run recomputes one ROI row per campaign seen in either spend or events.
func (a *ROIAggregator) Run() error {
	var campaigns []struct {
		CampaignID string
		Installs   int64
		RevenueUSD float64
		CostUSD    float64
	}
	err := a.DB.Raw(`
		WITH attributed AS (
			SELECT
				COALESCE(payload->>'campaign_id', '')   AS campaign_id,
				COUNT(DISTINCT user_id) FILTER (WHERE event_type = 'install')  AS installs,
				COALESCE(SUM(CASE WHEN event_type = 'purchase'
					THEN (payload->>'amount_usd')::numeric ELSE 0 END), 0)     AS revenue_usd
			FROM game_events
			WHERE event_type IN ('install', 'purchase')
			  AND payload->>'campaign_id' IS NOT NULL
			GROUP BY 1
		), spend AS (
			SELECT campaign_id, SUM(cost_usd) AS cost_usd
			FROM campaign_spends
			GROUP BY campaign_id
		)
		SELECT
			COALESCE(attributed.campaign_id, spend.campaign_id) AS campaign_id,
			COALESCE(attributed.installs, 0)                    AS installs,
			COALESCE(attributed.revenue_usd, 0)                 AS revenue_usd,
			COALESCE(spend.cost_usd, 0)                         AS cost_usd
		FROM attributed
		FULL OUTER JOIN spend ON attributed.campaign_id = spend.campaign_id`,
	).Scan(&campaigns).Error
	if err != nil {
		return fmt.Errorf("failed to join spend with attribution: %w", err)
	}

	for _, c := range campaigns {
		if c.CampaignID == "" {
			continue
		}
		row := models.CampaignROI{
			CampaignID: c.CampaignID,
			Installs:   c.Installs,
			RevenueUSD: c.RevenueUSD,
			CostUSD:    c.CostUSD,
			CPI:        ComputeCPI(c.CostUSD, c.Installs),
			ROIPercent: ComputeROIPercent(c.RevenueUSD, c.CostUSD),
		}
		err := a.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}},
			UpdateAll: true,
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to upsert ROI for campaign %s: %w", c.CampaignID, err)
		}
	}

	a.Log.Info("campaign ROI recomputed", zap.Int("campaigns", len(campaigns)))
	return nil
}
