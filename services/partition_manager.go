package services

import (
	"fmt"
	"strings"
	"time"

	"arcade-analytics-system/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PartitionManager creates future weekly partitions of game_events and
// retires expired ones. Partitioning is metadata-only over immutable rows:
// events never move between partitions.
type PartitionManager struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewPartitionManager(db *gorm.DB, log *zap.Logger) *PartitionManager {
	return &PartitionManager{DB: db, Log: log}
}

func partitionName(weekStart time.Time) string {
	return "game_events_" + utils.WeekLabel(weekStart)
}

// EnsureFuturePartitions idempotently creates partitions for every ISO week
// from the current one through horizonWeeks ahead. Run at startup and weekly;
// if it falls behind, ingestion for the missing week fails loudly.
func (m *PartitionManager) EnsureFuturePartitions(now time.Time, horizonWeeks int) error {
	week := utils.WeekStart(now)
	for i := 0; i <= horizonWeeks; i++ {
		start := week.AddDate(0, 0, 7*i)
		end := start.AddDate(0, 0, 7)
		name := partitionName(start)

		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF game_events FOR VALUES FROM ('%s') TO ('%s')`,
			name,
			start.Format("2006-01-02 15:04:05+00"),
			end.Format("2006-01-02 15:04:05+00"),
		)
		if err := m.DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create partition %s: %w", name, err)
		}
	}
	m.Log.Info("weekly partitions ensured",
		zap.String("from", utils.WeekLabel(week)),
		zap.Int("horizon_weeks", horizonWeeks))
	return nil
}

// listPartitions returns the current child partitions of game_events.
func (m *PartitionManager) listPartitions() ([]string, error) {
	var names []string
	err := m.DB.Raw(
		`SELECT inhrelid::regclass::text FROM pg_inherits WHERE inhparent = 'game_events'::regclass`,
	).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	return names, nil
}

// RetireOldPartitions drops partitions whose entire week is older than the
// retention horizon. Destructive and irreversible — callers must have
// exported anything they still need. The horizon is kept well behind any
// write-eligible timestamp so retirement never races live ingestion.
func (m *PartitionManager) RetireOldPartitions(now time.Time, retentionWeeks int) (int, error) {
	cutoff := utils.WeekStart(now).AddDate(0, 0, -7*retentionWeeks)

	names, err := m.listPartitions()
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, name := range names {
		label := strings.TrimPrefix(name, "game_events_")
		weekStart, err := utils.ParseWeekLabel(label)
		if err != nil {
			m.Log.Warn("skipping partition with unexpected name", zap.String("partition", name))
			continue
		}
		weekEnd := weekStart.AddDate(0, 0, 7)
		if weekEnd.After(cutoff) {
			continue
		}
		if err := m.DB.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)).Error; err != nil {
			return dropped, fmt.Errorf("failed to drop partition %s: %w", name, err)
		}
		m.Log.Info("retired expired partition", zap.String("partition", name))
		dropped++
	}
	return dropped, nil
}
