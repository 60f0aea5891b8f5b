package main

import (
	"context"
	"time"

	"adrender/internal/app"
	"adrender/internal/config"
	"adrender/internal/media"
	"adrender/internal/pkg/logger"
	"adrender/internal/pkg/shutdown"
	"adrender/internal/progress"
	"adrender/internal/repositories"
	"adrender/internal/storage"
	"adrender/internal/worker"
	"adrender/internal/worker/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}
	log := app.NewLogger(cfg, "adrender-worker")
	if err := cfg.Validate(); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting adrender worker", "queue", cfg.QueueName, "concurrency", cfg.Render.Concurrency)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 60*time.Second)

	if err := media.Check(cfg.MediaEngine()); err != nil {
		log.LogFatal("media binaries unavailable", err)
	}

	pool, err := app.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)
	log.Info("PostgreSQL connected")

	rdb, err := app.OpenRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.LogFatal("failed to connect to Redis", err)
	}
	shutdownMgr.Register("redis", func(ctx context.Context) error { return rdb.Close() })
	log.Info("Redis connected")

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	pipeline := app.NewPipeline(cfg, app.PipelineDeps{
		Store:   repositories.NewVideoRepository(pool),
		Storage: sp,
		Mirror:  progress.NewRedisMirror(rdb),
		Log:     log,
	})
	shutdownMgr.RegisterSimple("progress-tracker", pipeline.Tracker.Close)

	stopped := make(chan struct{})
	shutdownMgr.Register("worker", func(ctx context.Context) error {
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		defer close(stopped)
		err := worker.Run(shutdownMgr.Context(), worker.Deps{
			Queue:         queue.NewRedisQueue(rdb, cfg.QueueName),
			Orchestrator:  pipeline.Orchestrator,
			Log:           log,
			WorkspaceRoot: cfg.Render.WorkspaceRoot,
			StaleAge:      cfg.Render.StaleWorkspaceAge.Duration,
		})
		if err != nil && err != context.Canceled {
			log.Error("worker stopped", "error", err.Error())
		}
	}()

	shutdownMgr.Wait()
}
