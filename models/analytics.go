package models

import (
	"time"
)

// LeaderboardEntry is the global endless-mode leaderboard row, owned by the
// leaderboard aggregator. HighScore and LastPlayedAt only move forward
// (GREATEST upserts), so replaying the same batch of events is harmless.
type LeaderboardEntry struct {
	UserID           string    `json:"user_id" gorm:"primaryKey"`
	HighScore        int64     `json:"high_score" gorm:"default:0"`
	TotalGames       int64     `json:"total_games" gorm:"default:0"`
	TotalPlaytimeSec int64     `json:"total_playtime_sec" gorm:"default:0"`
	LastPlayedAt     time.Time `json:"last_played_at"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// DailyMetric is one day of platform counters, recomputed from event history
// by the analytics aggregator. ActiveUsers/Sessions/Crashes are distinct-user
// or raw counts per day; MonthlyActiveUsers is the trailing-30-day distinct
// union ending on Date (never a per-day snapshot), so MAU >= DAU always.
type DailyMetric struct {
	Date               time.Time `json:"date" gorm:"primaryKey;type:date"`
	ActiveUsers        int64     `json:"active_users" gorm:"default:0"`
	MonthlyActiveUsers int64     `json:"monthly_active_users" gorm:"default:0"`
	NewInstalls        int64     `json:"new_installs" gorm:"default:0"`
	Sessions           int64     `json:"sessions" gorm:"default:0"`
	Crashes            int64     `json:"crashes" gorm:"default:0"`
	RevenueUSD         float64   `json:"revenue_usd" gorm:"default:0"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// FunnelDaily counts unique users (never raw events) reaching a funnel step
// on a given day.
type FunnelDaily struct {
	Date        time.Time `json:"date" gorm:"primaryKey;type:date"`
	Step        string    `json:"step" gorm:"primaryKey"`
	UniqueUsers int64     `json:"unique_users" gorm:"default:0"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// UserStat is the per-user lifetime totals row recomputed by the analytics
// aggregator.
type UserStat struct {
	UserID     string    `json:"user_id" gorm:"primaryKey"`
	Sessions   int64     `json:"sessions" gorm:"default:0"`
	Crashes    int64     `json:"crashes" gorm:"default:0"`
	RevenueUSD float64   `json:"revenue_usd" gorm:"default:0"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CohortMetric is one (install date × campaign × platform) cohort. CohortSize
// is computed once; each RetainedDn stays NULL until the cohort is at least n
// days old, so immature cohorts drop out of rollups instead of dragging them
// down as zero.
type CohortMetric struct {
	InstallDate time.Time `json:"install_date" gorm:"primaryKey;type:date"`
	CampaignID  string    `json:"campaign_id" gorm:"primaryKey"`
	Platform    string    `json:"platform" gorm:"primaryKey"`
	CohortSize  int64     `json:"cohort_size" gorm:"default:0"`
	RetainedD1  *int64    `json:"retained_d1,omitempty"`
	RetainedD2  *int64    `json:"retained_d2,omitempty"`
	RetainedD3  *int64    `json:"retained_d3,omitempty"`
	RetainedD7  *int64    `json:"retained_d7,omitempty"`
	RetainedD30 *int64    `json:"retained_d30,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CampaignSpend is imported ad spend, upserted by the cost import worker.
type CampaignSpend struct {
	CampaignID string    `json:"campaign_id" gorm:"primaryKey"`
	Date       time.Time `json:"date" gorm:"primaryKey;type:date"`
	CostUSD    float64   `json:"cost_usd" gorm:"default:0"`
	Source     string    `json:"source"`
	ImportedAt time.Time `json:"imported_at" gorm:"autoUpdateTime"`
}

// CampaignROI joins spend with attributed installs and revenue. CPI and
// ROIPercent are nil (not zero) when their denominator is zero.
type CampaignROI struct {
	CampaignID string    `json:"campaign_id" gorm:"primaryKey"`
	Installs   int64     `json:"installs" gorm:"default:0"`
	RevenueUSD float64   `json:"revenue_usd" gorm:"default:0"`
	CostUSD    float64   `json:"cost_usd" gorm:"default:0"`
	CPI        *float64  `json:"cpi,omitempty"`
	ROIPercent *float64  `json:"roi_percent,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
