package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"arcade-analytics-system/handlers"
	"arcade-analytics-system/middleware"
	"arcade-analytics-system/models"
	"arcade-analytics-system/services"
	"arcade-analytics-system/utils"
	"arcade-analytics-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultPartitionHorizonWeeks   = 4
	defaultPartitionRetentionWeeks = 52
)

func newLogger() (*zap.Logger, error) {
	if os.Getenv("SERVICE_ENVIRONMENT") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		// Not fatal: production reads environment variables directly.
	}

	log, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// game_events is partitioned and migrated by hand; everything else is
	// plain GORM.
	if err := db.AutoMigrate(
		&models.EventTypeDef{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.Prize{},
		&models.LeaderboardEntry{},
		&models.DailyMetric{},
		&models.FunnelDaily{},
		&models.UserStat{},
		&models.CohortMetric{},
		&models.CampaignSpend{},
		&models.CampaignROI{},
		&models.SnapshotVersion{},
		&models.LeaderboardSnapshot{},
		&models.KPISnapshot{},
		&models.JobRun{},
	); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	holdUnknown := os.Getenv("EVENT_HOLDING_ENABLED") == "true"
	eventStore := services.NewEventStore(db, log, holdUnknown)
	if err := eventStore.Migrate(); err != nil {
		log.Fatal("failed to migrate event store", zap.Error(err))
	}

	partitions := services.NewPartitionManager(db, log)
	horizonWeeks := envInt("PARTITION_HORIZON_WEEKS", defaultPartitionHorizonWeeks)
	retentionWeeks := envInt("PARTITION_RETENTION_WEEKS", defaultPartitionRetentionWeeks)
	if err := partitions.EnsureFuturePartitions(time.Now().UTC(), horizonWeeks); err != nil {
		// Without partitions this week's ingestion would fail loudly anyway;
		// refuse to start instead.
		log.Fatal("failed to ensure weekly partitions", zap.Error(err))
	}

	tournamentBoard := services.NewTournamentLeaderboardAggregator(db, log)
	tournamentService := services.NewTournamentService(db, tournamentBoard, log)
	prizeService := services.NewPrizeService(db, log)
	snapshotService := services.NewSnapshotService(db, log)

	jobs := &services.JobSet{
		DB:                      db,
		Log:                     log,
		Partitions:              partitions,
		Leaderboard:             services.NewLeaderboardAggregator(db, eventStore, log),
		TournamentBoard:         tournamentBoard,
		Analytics:               services.NewAnalyticsAggregator(db, log),
		Cohorts:                 services.NewCohortAggregator(db, log),
		ROI:                     services.NewROIAggregator(db, log),
		Tournaments:             tournamentService,
		Snapshots:               snapshotService,
		PartitionHorizonWeeks:   horizonWeeks,
		PartitionRetentionWeeks: retentionWeeks,
	}

	sched, err := jobs.StartScheduler()
	if err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer func() { _ = sched.Shutdown() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Spend import is optional — without R2 credentials, ROI just reports
	// undefined CPI until spend shows up some other way.
	if err := utils.InitR2(); err != nil {
		log.Warn("campaign spend import disabled", zap.Error(err))
	} else {
		costImport := workers.NewCostImportClient(db, log)
		go workers.PollCampaignSpend(ctx, costImport, 1*time.Hour)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	app.Use(middleware.GatewayAuthMiddleware(log))

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID",
		MaxAge:       86400,
	}))

	handlers.SetupEventRoutes(app, eventStore)
	handlers.SetupTournamentRoutes(app, tournamentService, prizeService, log)
	handlers.SetupDashboardRoutes(app, snapshotService, eventStore, jobs)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()
	log.Info("arcade analytics service running", zap.String("port", port))

	<-ctx.Done()
	log.Info("shutting down")
	_ = app.Shutdown()
}
