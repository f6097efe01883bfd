// services/scheduler.go
package services

import (
	"time"

	"arcade-analytics-system/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Aggregation cadences. Aggregators are independent: they share nothing in
// process and touch disjoint target tables, so they can overlap each other
// freely — only two runs of the *same* job are serialized (singleton mode).
const (
	leaderboardCadence     = 1 * time.Minute
	tournamentBoardCadence = 2 * time.Minute
	lifecycleCadence       = 1 * time.Minute
	createNextCadence      = 1 * time.Hour
	analyticsCadence       = 1 * time.Hour
	cohortCadence          = 24 * time.Hour
	roiCadence             = 24 * time.Hour
	partitionCadence       = 24 * time.Hour
	snapshotCadence        = 10 * time.Minute

	analyticsRecomputeDays = 3
	cohortLookbackDays     = 35
)

// JobSet wires every scheduled job with its dependencies, plus the knobs the
// partition jobs need.
type JobSet struct {
	DB              *gorm.DB
	Log             *zap.Logger
	Partitions      *PartitionManager
	Leaderboard     *LeaderboardAggregator
	TournamentBoard *TournamentLeaderboardAggregator
	Analytics       *AnalyticsAggregator
	Cohorts         *CohortAggregator
	ROI             *ROIAggregator
	Tournaments     *TournamentService
	Snapshots       *SnapshotService

	PartitionHorizonWeeks   int
	PartitionRetentionWeeks int
}

// recordRun wraps a job so every outcome lands in job_runs — failures and
// skips are observable per job instead of disappearing into a timer.
func (j *JobSet) recordRun(name string, fn func() error) func() {
	return func() {
		now := time.Now().UTC()
		err := fn()

		var run models.JobRun
		if dbErr := j.DB.Where(models.JobRun{Name: name}).FirstOrCreate(&run).Error; dbErr != nil {
			j.Log.Error("failed to load job bookkeeping", zap.String("job", name), zap.Error(dbErr))
			return
		}

		updates := map[string]interface{}{
			"last_run_at": now,
			"run_count":   gorm.Expr("run_count + 1"),
		}
		if err != nil {
			updates["last_error"] = err.Error()
			updates["failure_count"] = gorm.Expr("failure_count + 1")
			j.Log.Error("job failed", zap.String("job", name), zap.Error(err))
		} else {
			updates["last_error"] = ""
			updates["last_success_at"] = now
		}
		if dbErr := j.DB.Model(&models.JobRun{}).Where("name = ?", name).Updates(updates).Error; dbErr != nil {
			j.Log.Error("failed to update job bookkeeping", zap.String("job", name), zap.Error(dbErr))
		}
	}
}

// StartScheduler registers every job and starts the clock. Singleton mode
// reschedules (skips) a trigger that fires while the previous run of the
// same job is still going.
func (j *JobSet) StartScheduler() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	jobs := []struct {
		name    string
		cadence time.Duration
		fn      func() error
	}{
		{"leaderboard_aggregator", leaderboardCadence, j.Leaderboard.Run},
		{"tournament_leaderboard_aggregator", tournamentBoardCadence, j.TournamentBoard.Run},
		{"tournament_lifecycle", lifecycleCadence, func() error {
			return j.Tournaments.AdvanceStatuses(time.Now().UTC())
		}},
		{"tournament_create_next", createNextCadence, func() error {
			return j.Tournaments.CreateNext(time.Now().UTC())
		}},
		{"analytics_aggregator", analyticsCadence, func() error {
			return j.Analytics.Run(time.Now().UTC(), analyticsRecomputeDays)
		}},
		{"cohort_aggregator", cohortCadence, func() error {
			return j.Cohorts.Run(time.Now().UTC(), cohortLookbackDays)
		}},
		{"roi_aggregator", roiCadence, j.ROI.Run},
		{"partition_maintenance", partitionCadence, func() error {
			now := time.Now().UTC()
			if err := j.Partitions.EnsureFuturePartitions(now, j.PartitionHorizonWeeks); err != nil {
				return err
			}
			_, err := j.Partitions.RetireOldPartitions(now, j.PartitionRetentionWeeks)
			return err
		}},
		{"snapshot_rebuild", snapshotCadence, func() error {
			return j.Snapshots.RebuildAll(time.Now().UTC())
		}},
	}

	for _, job := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(job.cadence),
			gocron.NewTask(j.recordRun(job.name, job.fn)),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	j.Log.Info("scheduler started", zap.Int("jobs", len(jobs)))
	return sched, nil
}

// RunAll forces one early cycle of every aggregator, then rebuilds the
// snapshots. Used by the operator refresh endpoint. A failing job is
// recorded and skipped; the rest still run.
func (j *JobSet) RunAll(now time.Time) error {
	var firstErr error
	steps := []struct {
		name string
		fn   func() error
	}{
		{"leaderboard_aggregator", j.Leaderboard.Run},
		{"tournament_leaderboard_aggregator", j.TournamentBoard.Run},
		{"analytics_aggregator", func() error { return j.Analytics.Run(now, analyticsRecomputeDays) }},
		{"cohort_aggregator", func() error { return j.Cohorts.Run(now, cohortLookbackDays) }},
		{"roi_aggregator", j.ROI.Run},
		{"snapshot_rebuild", func() error { return j.Snapshots.RebuildAll(now) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			j.Log.Error("forced refresh step failed", zap.String("job", step.name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
