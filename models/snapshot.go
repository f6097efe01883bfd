package models

import (
	"time"
)

// SnapshotVersion tracks which rebuild generation of a snapshot readers see.
// Rebuilds write a full new version and flip ActiveVersion atomically, so a
// half-built snapshot is never visible.
type SnapshotVersion struct {
	Name          string    `json:"name" gorm:"primaryKey"`
	ActiveVersion int64     `json:"active_version" gorm:"default:0"`
	RefreshedAt   time.Time `json:"refreshed_at"`
	Refreshing    bool      `json:"refreshing" gorm:"default:false"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// LeaderboardSnapshot is the read-optimized top-N leaderboard served to
// dashboards.
type LeaderboardSnapshot struct {
	Version   int64  `json:"-" gorm:"primaryKey"`
	Rank      int    `json:"rank" gorm:"primaryKey"`
	UserID    string `json:"user_id"`
	HighScore int64  `json:"high_score"`
}

// KPISnapshot is one day of headline numbers in the dashboard snapshot.
type KPISnapshot struct {
	Version            int64     `json:"-" gorm:"primaryKey"`
	Date               time.Time `json:"date" gorm:"primaryKey;type:date"`
	ActiveUsers        int64     `json:"active_users"`
	MonthlyActiveUsers int64     `json:"monthly_active_users"`
	Sessions           int64     `json:"sessions"`
	RevenueUSD         float64   `json:"revenue_usd"`
}
