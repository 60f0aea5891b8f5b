package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"adrender/internal/adapters/storage/localfs"
	"adrender/internal/app"
	"adrender/internal/config"
	"adrender/internal/dispatch"
	"adrender/internal/httpapi"
	"adrender/internal/httpapi/handlers"
	"adrender/internal/media"
	"adrender/internal/pkg/logger"
	"adrender/internal/pkg/shutdown"
	"adrender/internal/progress"
	"adrender/internal/repositories"
	"adrender/internal/storage"
	"adrender/internal/worker/queue"
	"adrender/internal/workspace"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}
	log := app.NewLogger(cfg, "adrender-api")
	if err := cfg.Validate(); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting adrender API", "version", version, "dispatch", cfg.DispatchMode)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	pool, err := app.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)
	log.Info("PostgreSQL connected")
	repo := repositories.NewVideoRepository(pool)

	var (
		rdb    *redis.Client
		mirror progress.Mirror
		q      *queue.RedisQueue
	)
	if cfg.RedisAddr != "" {
		rdb, err = app.OpenRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.LogFatal("failed to connect to Redis", err)
		}
		shutdownMgr.Register("redis", func(ctx context.Context) error { return rdb.Close() })
		mirror = progress.NewRedisMirror(rdb)
		q = queue.NewRedisQueue(rdb, cfg.QueueName)
		log.Info("Redis connected")
	}

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	pipeline := app.NewPipeline(cfg, app.PipelineDeps{Store: repo, Storage: sp, Mirror: mirror, Log: log})
	shutdownMgr.RegisterSimple("progress-tracker", pipeline.Tracker.Close)

	var dispatcher dispatch.Dispatcher
	switch cfg.DispatchMode {
	case config.DispatchQueue:
		dispatcher = dispatch.NewQueue(q, mirror, cfg.Render.ProgressTTL.Duration, log)
	default:
		if err := media.Check(cfg.MediaEngine()); err != nil {
			log.LogFatal("media binaries unavailable", err)
		}
		res := workspace.CleanStale(cfg.Render.WorkspaceRoot, cfg.Render.StaleWorkspaceAge.Duration, log)
		log.Info("stale workspaces swept", "removed", len(res.Removed), "errors", len(res.Errors))

		inline := dispatch.NewInline(shutdownMgr.Context(), pipeline.Orchestrator, log)
		shutdownMgr.Register("batches", inline.Wait)
		dispatcher = inline
	}

	checks := []handlers.Check{{
		Name: "postgres",
		Probe: func(ctx context.Context) (map[string]any, error) {
			stats := pool.Stat()
			return map[string]any{
				"total_conns":    stats.TotalConns(),
				"idle_conns":     stats.IdleConns(),
				"acquired_conns": stats.AcquiredConns(),
			}, repo.Ping(ctx)
		},
	}}
	if rdb != nil {
		checks = append(checks, handlers.Check{
			Name: "redis",
			Probe: func(ctx context.Context) (map[string]any, error) {
				if err := rdb.Ping(ctx).Err(); err != nil {
					return nil, err
				}
				n, err := q.Len(ctx)
				return map[string]any{"queue": q.Name(), "queue_length": n}, err
			},
		})
	}

	var files http.Handler
	if fs, ok := sp.(*localfs.LocalFS); ok {
		files = fs.Handler()
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Store:      repo,
			Planner:    pipeline.Orchestrator,
			Dispatcher: dispatcher,
			Progress:   pipeline.Tracker,
			Checks:     checks,
			Provider:   sp.Provider(),
			Version:    version,
		},
		CORSOrigins: cfg.CORSOrigins,
		Files:       files,
		Log:         log,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr, "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
