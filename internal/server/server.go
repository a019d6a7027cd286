package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/alert"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/auth"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/config"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/crash"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/device"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/geofence"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/ingest"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/persist"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/pipeline"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/risk"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/stream"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/trip"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Pipeline *pipeline.Pipeline
	// Worker drains Queue; the caller runs it and closes Queue on shutdown
	// once producers have stopped.
	Worker *persist.Worker
	Queue  *persist.Queue
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient, time.Duration(cfg.BroadcastMinIntervalMs)*time.Millisecond)

	windows := window.NewStore(window.Config{
		Capacity:      cfg.WindowCapacity,
		TailLen:       cfg.WindowTailLen,
		SpeedLimitKmh: cfg.SpeedLimitKmh,
	})
	assessor := risk.NewAssessor(risk.Config{
		SpeedLimitKmh:       cfg.SpeedLimitKmh,
		MinSpeedingFraction: cfg.SpeedingFraction,
		SwerveGyroVariance:  cfg.SwerveGyroVariance,
		AccelSpikeMps2:      cfg.AccelSpikeMps2,
		SpikeTailLen:        cfg.SpikeTailLen,
		HighHeartRateBPM:    cfg.HighHeartRateBPM,
		SpeedingWeight:      cfg.SpeedingWeight,
		SwervingWeight:      cfg.SwervingWeight,
		SuddenWeight:        cfg.SuddenMovementWeight,
		HeartWeight:         cfg.HighHeartRateWeight,
	})
	detector := crash.NewDetector(
		crash.Config{GraceSamples: cfg.CrashGraceSamples},
		crash.NewHeuristicScorer(crash.HeuristicConfig{
			ImpactSpikeMps2:   cfg.CrashImpactSpikeMps2,
			SpeedDropFraction: cfg.CrashSpeedDropFraction,
			MinSpeedKmh:       cfg.CrashMinSpeedKmh,
			MinSamples:        cfg.CrashMinSamples,
		}),
	)
	queue := persist.NewQueue(cfg.PersistQueueCapacity)

	tripSvc := trip.NewService(db)
	alertSvc := alert.NewService(db)
	deviceSvc := device.NewService(db)
	geoSvc := geofence.NewService(db)
	watcher := geofence.NewWatcher()

	worker := persist.NewWorker(persist.WorkerConfig{
		RetryAttempts: cfg.PersistRetryAttempts,
		RetryBackoff:  time.Duration(cfg.PersistRetryBackoff) * time.Millisecond,
	}, queue, tripSvc, tripSvc)

	pipe := pipeline.New(windows, assessor, detector, queue, hub, alertSvc, deviceSvc, geoSvc, watcher)

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   hub,
		Pipeline: pipe,
		Worker:   worker,
		Queue:    queue,
	}

	registerRoutes(s, tripSvc, alertSvc, deviceSvc, geoSvc, watcher)
	return s
}

func registerRoutes(s *Server, trips *trip.Service, alerts *alert.Service,
	devices *device.Service, zones *geofence.Service, watcher *geofence.Watcher) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	trip.RegisterRoutes(s.App.Group("/trips"), trips, jwtMiddleware)
	device.RegisterRoutes(s.App.Group("/devices"), devices, jwtMiddleware)
	alert.RegisterRoutes(s.App.Group("/alerts"), alerts, jwtMiddleware)
	geofence.RegisterRoutes(s.App.Group("/geofences"), zones, watcher, jwtMiddleware)
	ingest.RegisterRoutes(s.App.Group("/ingest"), s.Pipeline, s.Cfg.IngestAPIKey)
	stream.RegisterRoutes(s.App.Group("/live"), s.Stream)
}
