// workers/cost_import_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"arcade-analytics-system/models"
	"arcade-analytics-system/services"
	"arcade-analytics-system/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// spendReportRow matches one line of the spend report dropped into R2 by the
// ad-ops export.
type spendReportRow struct {
	CampaignID string  `json:"campaign_id"`
	Date       string  `json:"date"` // 2006-01-02
	CostUSD    float64 `json:"cost_usd"`
	Source     string  `json:"source"`
}

type spendReport struct {
	Rows []spendReportRow `json:"rows"`
}

// CostImportClient pulls campaign spend reports from R2 into campaign_spends.
// The bucket is an external, fallible dependency: a failed pull skips one
// cycle and is retried on the next tick, never blocking any aggregator.
type CostImportClient struct {
	DB        *gorm.DB
	Log       *zap.Logger
	ObjectKey string
}

func NewCostImportClient(db *gorm.DB, log *zap.Logger) *CostImportClient {
	key := os.Getenv("SPEND_REPORT_KEY")
	if key == "" {
		key = "spend/latest.json"
	}
	return &CostImportClient{DB: db, Log: log, ObjectKey: key}
}

// ImportOnce downloads and upserts the current spend report.
func (c *CostImportClient) ImportOnce(ctx context.Context) (int, error) {
	data, err := utils.DownloadFileFromR2(ctx, c.ObjectKey)
	if err != nil {
		return 0, &services.DependencyError{Dependency: "spend report bucket", Err: err}
	}

	var report spendReport
	if err := json.Unmarshal(data, &report); err != nil {
		return 0, fmt.Errorf("spend report is not valid JSON: %w", err)
	}
	if len(report.Rows) == 0 {
		return 0, nil
	}

	rows := make([]models.CampaignSpend, 0, len(report.Rows))
	for _, r := range report.Rows {
		if r.CampaignID == "" {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if err != nil {
			c.Log.Warn("skipping spend row with bad date",
				zap.String("campaign_id", r.CampaignID), zap.String("date", r.Date))
			continue
		}
		rows = append(rows, models.CampaignSpend{
			CampaignID: r.CampaignID,
			Date:       day,
			CostUSD:    r.CostUSD,
			Source:     r.Source,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	// Re-imports of the same report overwrite in place, so duplicate pulls
	// never double-count spend.
	err = c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"cost_usd", "source", "imported_at"}),
	}).Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %d spend rows: %w", len(rows), err)
	}
	return len(rows), nil
}

// PollCampaignSpend runs the import loop until the context is cancelled.
func PollCampaignSpend(ctx context.Context, client *CostImportClient, pollInterval time.Duration) {
	client.Log.Info("starting campaign spend polling", zap.Duration("interval", pollInterval))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			client.Log.Info("campaign spend polling stopped")
			return
		case <-ticker.C:
			n, err := client.ImportOnce(ctx)
			if err != nil {
				// Skip this cycle, retry next tick.
				client.Log.Warn("spend import cycle skipped", zap.Error(err))
				continue
			}
			if n > 0 {
				client.Log.Info("imported campaign spend rows", zap.Int("rows", n))
			}
		}
	}
}
