package services

import (
	"fmt"
	"time"

	"arcade-analytics-system/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	snapshotLeaderboard = "leaderboard_top"
	snapshotKPI         = "daily_kpi"

	snapshotLeaderboardSize = 100
	snapshotKPIDays         = 30
)

// SnapshotService rebuilds the read-optimized dashboard snapshots. A rebuild
// writes a complete new version and flips the active pointer in one
// transaction — readers never see a half-built snapshot, only the previous
// complete one plus a staleness flag.
type SnapshotService struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewSnapshotService(db *gorm.DB, log *zap.Logger) *SnapshotService {
	return &SnapshotService{DB: db, Log: log}
}

// RebuildAll refreshes every snapshot. One snapshot failing does not stop
// the others; its last_error is surfaced to readers instead.
func (s *SnapshotService) RebuildAll(now time.Time) error {
	var firstErr error
	if err := s.rebuild(snapshotLeaderboard, now, s.writeLeaderboardVersion); err != nil {
		firstErr = err
	}
	if err := s.rebuild(snapshotKPI, now, s.writeKPIVersion); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *SnapshotService) rebuild(name string, now time.Time, write func(tx *gorm.DB, version int64) error) error {
	var sv models.SnapshotVersion
	err := s.DB.Where(models.SnapshotVersion{Name: name}).FirstOrCreate(&sv).Error
	if err != nil {
		return fmt.Errorf("failed to load snapshot version %s: %w", name, err)
	}

	err = s.DB.Model(&models.SnapshotVersion{}).Where("name = ?", name).Update("refreshing", true).Error
	if err != nil {
		// Readers would miss the in-flight staleness flag; the rebuild itself
		// can still proceed.
		s.Log.Warn("failed to flag snapshot as refreshing", zap.String("snapshot", name), zap.Error(err))
	}

	next := sv.ActiveVersion + 1
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := write(tx, next); err != nil {
			return err
		}
		return tx.Model(&models.SnapshotVersion{}).
			Where("name = ?", name).
			Updates(map[string]interface{}{
				"active_version": next,
				"refreshed_at":   now.UTC(),
				"refreshing":     false,
				"last_error":     "",
			}).Error
	})
	if err != nil {
		s.DB.Model(&models.SnapshotVersion{}).
			Where("name = ?", name).
			Updates(map[string]interface{}{"refreshing": false, "last_error": err.Error()})
		return fmt.Errorf("snapshot %s rebuild failed: %w", name, err)
	}

	// Old versions are invisible once the pointer flips; purge lazily.
	s.purgeOldVersions(name, next)
	return nil
}

func (s *SnapshotService) writeLeaderboardVersion(tx *gorm.DB, version int64) error {
	return tx.Exec(`
		INSERT INTO leaderboard_snapshots (version, rank, user_id, high_score)
		SELECT ?, ROW_NUMBER() OVER (ORDER BY high_score DESC, last_played_at ASC), user_id, high_score
		FROM leaderboard_entries
		ORDER BY high_score DESC, last_played_at ASC
		LIMIT ?`, version, snapshotLeaderboardSize).Error
}

func (s *SnapshotService) writeKPIVersion(tx *gorm.DB, version int64) error {
	return tx.Exec(`
		INSERT INTO kpi_snapshots (version, date, active_users, monthly_active_users, sessions, revenue_usd)
		SELECT ?, date, active_users, monthly_active_users, sessions, revenue_usd
		FROM daily_metrics
		ORDER BY date DESC
		LIMIT ?`, version, snapshotKPIDays).Error
}

func (s *SnapshotService) purgeOldVersions(name string, active int64) {
	var err error
	switch name {
	case snapshotLeaderboard:
		err = s.DB.Where("version < ?", active).Delete(&models.LeaderboardSnapshot{}).Error
	case snapshotKPI:
		err = s.DB.Where("version < ?", active).Delete(&models.KPISnapshot{}).Error
	}
	if err != nil {
		s.Log.Warn("failed to purge old snapshot rows", zap.String("snapshot", name), zap.Error(err))
	}
}

// snapshotStale is the one staleness rule readers get: a rebuild in flight or
// a failed last rebuild both mean the active version is behind.
func snapshotStale(sv models.SnapshotVersion) bool {
	return sv.Refreshing || sv.LastError != ""
}

// status returns the version row plus the staleness verdict readers get.
func (s *SnapshotService) status(name string) (models.SnapshotVersion, bool, error) {
	var sv models.SnapshotVersion
	if err := s.DB.First(&sv, "name = ?", name).Error; err != nil {
		return sv, true, err
	}
	return sv, snapshotStale(sv), nil
}

// --- HTTP endpoints ---

// GetLeaderboardSnapshot serves the last complete top-N with staleness info.
func (s *SnapshotService) GetLeaderboardSnapshot(c *fiber.Ctx) error {
	sv, stale, err := s.status(snapshotLeaderboard)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "snapshot not built yet"})
	}
	var rows []models.LeaderboardSnapshot
	err = s.DB.Where("version = ?", sv.ActiveVersion).Order("rank ASC").Find(&rows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read snapshot"})
	}
	return c.JSON(fiber.Map{
		"entries":      rows,
		"refreshed_at": sv.RefreshedAt,
		"stale":        stale,
	})
}

// GetKPISnapshot serves the daily KPI rows from the last complete rebuild.
func (s *SnapshotService) GetKPISnapshot(c *fiber.Ctx) error {
	sv, stale, err := s.status(snapshotKPI)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "snapshot not built yet"})
	}
	var rows []models.KPISnapshot
	err = s.DB.Where("version = ?", sv.ActiveVersion).Order("date DESC").Find(&rows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read snapshot"})
	}
	return c.JSON(fiber.Map{
		"days":         rows,
		"refreshed_at": sv.RefreshedAt,
		"stale":        stale,
	})
}

// GetRetention rolls cohort rows up per horizon, summing numerators and
// denominators before the one division.
func (s *SnapshotService) GetRetention(c *fiber.Ctx) error {
	query := s.DB.Model(&models.CohortMetric{})
	if campaign := c.Query("campaign_id"); campaign != "" {
		query = query.Where("campaign_id = ?", campaign)
	}
	if platform := c.Query("platform"); platform != "" {
		query = query.Where("platform = ?", platform)
	}

	var cohorts []models.CohortMetric
	if err := query.Find(&cohorts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read cohorts"})
	}

	horizons := fiber.Map{}
	for _, d := range retentionHorizons {
		retained, size, rate := RollupRetention(cohorts, d)
		horizons[fmt.Sprintf("d%d", d)] = fiber.Map{
			"retained": retained,
			"size":     size,
			"rate":     rate,
		}
	}
	return c.JSON(fiber.Map{"cohorts": len(cohorts), "horizons": horizons})
}

// GetROI serves per-campaign ROI rows.
func (s *SnapshotService) GetROI(c *fiber.Ctx) error {
	var rows []models.CampaignROI
	if err := s.DB.Order("campaign_id ASC").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read ROI"})
	}
	return c.JSON(fiber.Map{"campaigns": rows})
}

// GetJobs exposes the per-job bookkeeping for operators.
func (s *SnapshotService) GetJobs(c *fiber.Ctx) error {
	var jobs []models.JobRun
	if err := s.DB.Order("name ASC").Find(&jobs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read job runs"})
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}
