// Package handlers implements the render API endpoints.
package handlers

import (
	"context"

	"adrender/internal/batch"
	"adrender/internal/dispatch"
	"adrender/internal/models"
	"adrender/internal/pkg/logger"
	"adrender/internal/progress"
)

// Store is the read side the endpoints need. *repositories.VideoRepository
// implements it.
type Store interface {
	GetVideo(ctx context.Context, id string) (*models.VideoEntity, error)
	ListRenderedFormats(ctx context.Context, videoID string) ([]models.RenderedFormat, error)
}

// Planner turns a request into a job without running it.
type Planner interface {
	Plan(ctx context.Context, req batch.Request) (batch.Plan, error)
}

// Progress answers job status lookups. *progress.Tracker implements it.
type Progress interface {
	Lookup(ctx context.Context, jobID string) (progress.Snapshot, bool, error)
}

// Check is one named dependency probe of the deep health check.
type Check struct {
	Name  string
	Probe func(ctx context.Context) (map[string]any, error)
}

type Deps struct {
	Store      Store
	Planner    Planner
	Dispatcher dispatch.Dispatcher
	Progress   Progress
	Checks     []Check
	Provider   string
	Version    string
	Log        *logger.Logger
}

type Handler struct {
	store      Store
	planner    Planner
	dispatcher dispatch.Dispatcher
	progress   Progress
	checks     []Check
	provider   string
	version    string
	log        *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		store:      d.Store,
		planner:    d.Planner,
		dispatcher: d.Dispatcher,
		progress:   d.Progress,
		checks:     d.Checks,
		provider:   d.Provider,
		version:    version,
		log:        log.WithComponent("http"),
	}
}

// Log is the logger WrapHandler reports errors with.
func (h *Handler) Log() *logger.Logger { return h.log }
