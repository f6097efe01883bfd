package models

import (
	"time"
)

// JobRun is per-job scheduling bookkeeping so failures and skips are
// observable per job instead of vanishing into a bare timer.
type JobRun struct {
	Name          string     `json:"name" gorm:"primaryKey"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	RunCount      int64      `json:"run_count" gorm:"default:0"`
	FailureCount  int64      `json:"failure_count" gorm:"default:0"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
