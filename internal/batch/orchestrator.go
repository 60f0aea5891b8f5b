// Package batch runs render jobs over many video entities with a bounded
// worker pool, isolating each entity's failure from the rest of the batch and
// reporting progress through a progress.Tracker.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"adrender/internal/models"
	"adrender/internal/pkg/errors"
	"adrender/internal/pkg/logger"
	"adrender/internal/progress"
	"adrender/internal/render"
	"adrender/internal/storage"
)

const (
	DefaultConcurrency  = 3
	DefaultCleanupDelay = time.Hour

	// renderShare is the part of the progress bar covered by entity renders;
	// packaging takes the rest.
	renderShare = 90
)

type Store interface {
	GetVideo(ctx context.Context, id string) (*models.VideoEntity, error)
	ListVideoNames(ctx context.Context, ids []string) (map[string]string, error)
	ListVideoIDsByBatch(ctx context.Context, batchID string) ([]string, error)
}

// Renderer is implemented by *render.Renderer.
type Renderer interface {
	RenderAllFormats(ctx context.Context, entityID string, opts render.Options) (*render.Result, error)
}

// Request is what a client asks for: explicit entities or a whole batch.
type Request struct {
	EntityIDs []string
	BatchID   string
	Mode      render.Mode
}

// Plan is a resolved request, ready to run here or on a worker.
type Plan struct {
	JobID     string          `json:"jobId"`
	EntityIDs []string        `json:"entityIds"`
	Mode      render.Mode     `json:"mode"`
	Items     []progress.Item `json:"items"`
}

type ItemOutcome struct {
	ID     string
	Status string
	Error  string
	Result *render.Result
}

type Summary struct {
	JobID       string
	Started     int
	Skipped     int
	Succeeded   int
	Failed      int
	Items       []ItemOutcome
	DownloadURL string
}

type Deps struct {
	Store        Store
	Renderer     Renderer
	Tracker      *progress.Tracker
	Storage      storage.Provider
	Concurrency  int
	CleanupDelay time.Duration
	Log          *logger.Logger
}

type Orchestrator struct {
	store        Store
	renderer     Renderer
	tracker      *progress.Tracker
	sp           storage.Provider
	concurrency  int
	cleanupDelay time.Duration
	log          *logger.Logger
}

func New(d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Concurrency < 1 {
		d.Concurrency = DefaultConcurrency
	}
	if d.CleanupDelay <= 0 {
		d.CleanupDelay = DefaultCleanupDelay
	}
	return &Orchestrator{
		store:        d.Store,
		renderer:     d.Renderer,
		tracker:      d.Tracker,
		sp:           d.Storage,
		concurrency:  d.Concurrency,
		cleanupDelay: d.CleanupDelay,
		log:          log.WithComponent("batch"),
	}
}

func (o *Orchestrator) Tracker() *progress.Tracker { return o.tracker }

// Plan validates req, expands a batch id into its entities and assigns a job id.
func (o *Orchestrator) Plan(ctx context.Context, req Request) (Plan, error) {
	ids := dedupe(req.EntityIDs)
	if len(ids) == 0 && strings.TrimSpace(req.BatchID) != "" {
		var err error
		ids, err = o.store.ListVideoIDsByBatch(ctx, strings.TrimSpace(req.BatchID))
		if err != nil {
			return Plan{}, err
		}
		if len(ids) == 0 {
			return Plan{}, errors.NotFound("batch", req.BatchID)
		}
	}
	if len(ids) == 0 {
		return Plan{}, errors.ValidationField("entityIds", "entityIds or batchId is required")
	}

	mode := req.Mode
	if mode == "" {
		mode = render.ModeMissing
	}

	names, err := o.store.ListVideoNames(ctx, ids)
	if err != nil {
		return Plan{}, err
	}
	items := make([]progress.Item, len(ids))
	for i, id := range ids {
		name := names[id]
		if name == "" {
			name = id
		}
		items[i] = progress.Item{ID: id, Name: name}
	}

	return Plan{JobID: uuid.NewString(), EntityIDs: ids, Mode: mode, Items: items}, nil
}

// RunBatch renders every entity of p, at most Concurrency at a time. Entity
// failures are recorded and never stop the batch. The job always ends in
// phase complete or error with its cleanup scheduled.
func (o *Orchestrator) RunBatch(ctx context.Context, p Plan) (*Summary, error) {
	ctx = logger.ContextWithJobID(ctx, p.JobID)
	log := o.log.FromContext(ctx)

	if _, ok := o.tracker.Get(p.JobID); !ok {
		o.tracker.Initialize(p.JobID, p.Items)
	}
	o.tracker.UpdateProgress(p.JobID, progress.Update{Phase: progress.PhaseProcessing, Percent: progress.Percent(0)})

	log.Info("batch started", "entities", len(p.EntityIDs), "mode", string(p.Mode), "concurrency", o.concurrency)
	started := time.Now()

	summary := &Summary{JobID: p.JobID, Items: make([]ItemOutcome, len(p.EntityIDs))}
	var (
		mu       sync.Mutex
		finished int
	)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, id := range p.EntityIDs {
		g.Go(func() error {
			out := o.runItem(ctx, p, id)

			mu.Lock()
			summary.Items[i] = out
			finished++
			pct := finished * renderShare / len(p.EntityIDs)
			mu.Unlock()

			o.tracker.UpdateProgress(p.JobID, progress.Update{Percent: progress.Percent(pct)})
			return nil
		})
	}
	_ = g.Wait()

	for _, it := range summary.Items {
		switch it.Status {
		case progress.ItemSkipped:
			summary.Skipped++
		case progress.ItemCompleted:
			summary.Started++
			summary.Succeeded++
		case progress.ItemFailed:
			if it.Result != nil {
				summary.Started++
			}
			summary.Failed++
		}
	}

	if err := ctx.Err(); err != nil {
		o.Fail(p.JobID, errors.WrapWithCode(err, errors.CodeTimeout, "batch.run", "batch canceled"))
		return summary, err
	}

	// Packaging: a manifest of every rendered output
	if o.sp != nil {
		o.tracker.UpdateProgress(p.JobID, progress.Update{Phase: progress.PhasePackaging, Percent: progress.Percent(renderShare + 5)})
		url, err := o.packageManifest(ctx, p, summary)
		if err != nil {
			o.Fail(p.JobID, err)
			return summary, err
		}
		summary.DownloadURL = url
	}

	o.tracker.UpdateProgress(p.JobID, progress.Update{
		Phase:       progress.PhaseComplete,
		Percent:     progress.Percent(100),
		DownloadURL: summary.DownloadURL,
	})
	o.tracker.ScheduleCleanup(p.JobID, o.cleanupDelay)

	log.Info("batch finished",
		"started", summary.Started,
		"skipped", summary.Skipped,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return summary, nil
}

// Fail moves jobID to phase error and schedules its cleanup.
func (o *Orchestrator) Fail(jobID string, cause error) {
	msg := errors.UserMessage(cause)
	if msg == "" {
		msg = "batch failed"
	}
	o.log.WithJobID(jobID).Error("batch failed", "error", fmt.Sprint(cause))
	o.tracker.UpdateProgress(jobID, progress.Update{Phase: progress.PhaseError, Error: msg})
	o.tracker.ScheduleCleanup(jobID, o.cleanupDelay)
}

// Guard is deferred by goroutines running a batch. It turns a panic into
// phase error so the job never disappears silently.
func (o *Orchestrator) Guard(jobID string) {
	if r := recover(); r != nil {
		o.log.WithJobID(jobID).Error("batch panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		o.Fail(jobID, errors.Internal("batch aborted unexpectedly"))
	}
}

func (o *Orchestrator) runItem(ctx context.Context, p Plan, id string) (out ItemOutcome) {
	out = ItemOutcome{ID: id}
	log := o.log.FromContext(ctx).WithEntityID(id)

	defer func() {
		if r := recover(); r != nil {
			log.Error("entity render panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			out.Status, out.Error = progress.ItemFailed, "internal error"
			o.tracker.UpdateItemStatus(p.JobID, id, out.Status, out.Error)
		}
	}()

	video, err := o.store.GetVideo(ctx, id)
	if err != nil {
		out.Status, out.Error = progress.ItemFailed, errors.UserMessage(err)
		log.Warn("entity not loaded", "error", err.Error())
		o.tracker.UpdateItemStatus(p.JobID, id, out.Status, out.Error)
		return out
	}
	if !video.ScenesReady() {
		out.Status, out.Error = progress.ItemSkipped, "not all scenes are ready"
		log.Info("entity skipped", "scenes", len(video.Scenes))
		o.tracker.UpdateItemStatus(p.JobID, id, out.Status, out.Error)
		return out
	}

	o.tracker.UpdateItemStatus(p.JobID, id, progress.ItemProcessing, "")
	res, err := o.renderer.RenderAllFormats(ctx, id, render.Options{Mode: p.Mode})
	out.Result = res

	switch {
	case err != nil:
		out.Status, out.Error = progress.ItemFailed, errors.UserMessage(err)
		log.Warn("entity render failed", "code", string(errors.GetCode(err)), "error", err.Error())
	case res != nil && len(res.Failed) > 0:
		out.Status = progress.ItemFailed
		out.Error = fmt.Sprintf("%d of %d formats failed", len(res.Failed), res.Attempted())
	default:
		out.Status = progress.ItemCompleted
	}
	o.tracker.UpdateItemStatus(p.JobID, id, out.Status, out.Error)
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
