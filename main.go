package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lnkr-app/lnkr/admission"
	"github.com/lnkr-app/lnkr/config"
	"github.com/lnkr-app/lnkr/generator"
	"github.com/lnkr-app/lnkr/handler"
	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/reputation"
	"github.com/lnkr-app/lnkr/resolver"
	"github.com/lnkr-app/lnkr/shared"
	"github.com/lnkr-app/lnkr/shared/db"
	"github.com/lnkr-app/lnkr/stats"
	"github.com/lnkr-app/lnkr/visit"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger := shared.NewLogger(cfg.LogDir, "lnkr.log", 3, 1024, cfg.LogLevel, "lnkr")
	logger.Init()

	tracer := shared.NewTracer("lnkr")
	tracer.Init()

	metrics := shared.NewMetrics()

	pg := db.NewPostgresDB(db.BuildConnectionString(
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB))
	if err := pg.Init(); err != nil {
		logger.Fatal("CannotConnectPostgres", zap.Error(err))
	}

	sqlRepo := repo.NewSQLRepo(pg)
	if err := sqlRepo.Migrate(); err != nil {
		logger.Fatal("CannotMigrate", zap.Error(err))
	}

	cache := shared.NewCacheClient(&shared.CacheConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err := cache.Connect(); err != nil {
		logger.Fatal("CannotConnectRedis", zap.Error(err))
	}

	var geo visit.GeoLocator = visit.NoopLocator{}
	if cfg.GeoIPPath != "" {
		maxmind, err := visit.OpenMaxmindLocator(cfg.GeoIPPath)
		if err != nil {
			logger.Warn("CannotOpenGeoIP", zap.String("path", cfg.GeoIPPath), zap.Error(err))
		} else {
			geo = maxmind
			defer maxmind.Close()
		}
	}

	queue := visit.NewQueue(sqlRepo, logger, visit.NewClassifier(geo), cfg.VisitQueueSize, cfg.VisitWorkerCount, cfg.StatsLimit)
	queue.Start()

	checker := reputation.NewChecker(cfg.SafeBrowsingKey, cfg.DefaultHost, logger)
	gen := generator.New(cfg.LinkLength, sqlRepo)
	pipeline := admission.NewPipeline(sqlRepo, gen, checker, logger, cfg.DefaultHost, cfg.UserLimitPerDay, cfg.NonUserCooldown)

	rs := resolver.New(sqlRepo, queue, logger, tracer, cfg.DefaultHost)
	if cfg.RabbitURL != "" {
		rabbit := shared.NewRabbitMQ(cfg.RabbitURL)
		if err := rabbit.Connect(10 * time.Second); err != nil {
			logger.Warn("CannotConnectRabbitMQ", zap.Error(err))
		} else {
			rs.Beacon = rabbit
			rs.BeaconQueue = cfg.BeaconQueue
			defer rabbit.Close()
		}
	}

	statsService := stats.NewService(sqlRepo, cache, logger, cfg.DefaultHost)

	svc := shared.NewHttpService("lnkr", cfg.Port)
	svc.Init()

	h := handler.New(pipeline, rs, statsService, sqlRepo, logger, metrics, tracer, cfg.DefaultHost)
	h.Register(svc)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		svc.Shutdown()
	}()

	logger.Info("Starting", zap.String("port", cfg.Port), zap.String("domain", cfg.DefaultHost))
	if err := svc.Start(func() {
		logger.Info("Shutting down...")
		queue.Stop()
		cache.Close()
		pg.Close()
		tracer.Shutdown(context.Background())
	}); err != nil {
		logger.Fatal("ServerStopped", zap.Error(err))
	}
}
