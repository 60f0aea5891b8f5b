// Package app wires configuration into the render pipeline. The service
// binaries and renderctl share it so every process renders the same way.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"adrender/internal/assets"
	"adrender/internal/batch"
	"adrender/internal/config"
	"adrender/internal/media"
	"adrender/internal/pkg/errors"
	"adrender/internal/pkg/logger"
	"adrender/internal/progress"
	"adrender/internal/render"
	"adrender/internal/repositories"
	"adrender/internal/storage"
)

const connectTimeout = 10 * time.Second

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.Config, service string) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		AddSource:   cfg.Log.AddSource,
		ServiceName: service,
	})
}

// OpenPostgres connects and pings the pool.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, errors.Configuration("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "app.postgres", "invalid database url")
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "ping postgres")
	}
	return pool, nil
}

// OpenRedis connects and pings the client.
func OpenRedis(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.Configuration("REDIS_ADDR is required")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "app.redis", "ping redis")
	}
	return rdb, nil
}

// Store is the data access the pipeline needs.
// *repositories.VideoRepository implements it.
type Store interface {
	render.Store
	batch.Store
}

var _ Store = (*repositories.VideoRepository)(nil)

// Pipeline is the assembled render stack.
type Pipeline struct {
	Storage      storage.Provider
	Engine       *media.Engine
	Fetcher      *assets.Fetcher
	Renderer     *render.Renderer
	Tracker      *progress.Tracker
	Orchestrator *batch.Orchestrator
}

// PipelineDeps are the pieces built from external connections.
type PipelineDeps struct {
	Store   Store
	Storage storage.Provider
	// Mirror may be nil for a process that never needs cross-process status.
	Mirror progress.Mirror
	// Runner replaces ffmpeg execution in tests.
	Runner media.Runner
	Log    *logger.Logger
}

func NewPipeline(cfg config.Config, d PipelineDeps) *Pipeline {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	engine := media.New(cfg.MediaEngine(), d.Runner, log)
	fetcher := assets.New(d.Storage, assets.Options{
		RPS:             cfg.Render.DownloadRPS,
		Burst:           cfg.Render.DownloadBurst,
		Timeout:         cfg.Render.DownloadTimeout.Duration,
		SignedURLExpiry: cfg.Storage.SignedURLExpiry.Duration,
	}, log)

	renderer := render.New(render.Deps{
		Store:         d.Store,
		Engine:        engine,
		Fetcher:       fetcher,
		Storage:       d.Storage,
		WorkspaceRoot: cfg.Render.WorkspaceRoot,
		LogoPadding:   cfg.Render.LogoPadding,
		Log:           log,
	})

	tracker := progress.NewTracker(progress.Options{
		Mirror:    d.Mirror,
		MirrorTTL: cfg.Render.ProgressTTL.Duration,
		Log:       log,
	})

	orch := batch.New(batch.Deps{
		Store:        d.Store,
		Renderer:     renderer,
		Tracker:      tracker,
		Storage:      d.Storage,
		Concurrency:  cfg.Render.Concurrency,
		CleanupDelay: cfg.Render.ProgressTTL.Duration,
		Log:          log,
	})

	return &Pipeline{
		Storage:      d.Storage,
		Engine:       engine,
		Fetcher:      fetcher,
		Renderer:     renderer,
		Tracker:      tracker,
		Orchestrator: orch,
	}
}
