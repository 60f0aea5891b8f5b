// Package dispatch hands planned batch jobs to whatever runs them: a
// goroutine in this process or a worker behind the Redis queue.
package dispatch

import (
	"context"
	"sync"
	"time"

	"adrender/internal/batch"
	renderjob "adrender/internal/contracts/renderjob/v1"
	"adrender/internal/pkg/errors"
	"adrender/internal/pkg/logger"
	"adrender/internal/progress"
	"adrender/internal/render"
)

// Dispatcher starts a planned job without waiting for it. Once Dispatch
// returns nil the job id is pollable.
type Dispatcher interface {
	Dispatch(ctx context.Context, p batch.Plan) error
	Mode() string
}

// Inline runs batches in goroutines of the current process.
type Inline struct {
	orch *batch.Orchestrator
	base context.Context
	log  *logger.Logger
	wg   sync.WaitGroup
}

// NewInline runs every batch under base, so cancelling base stops them.
func NewInline(base context.Context, orch *batch.Orchestrator, log *logger.Logger) *Inline {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Inline{orch: orch, base: base, log: log.WithComponent("dispatch")}
}

func (d *Inline) Mode() string { return "inline" }

func (d *Inline) Dispatch(ctx context.Context, p batch.Plan) error {
	d.orch.Tracker().Initialize(p.JobID, p.Items)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.orch.Guard(p.JobID)

		// RunBatch leaves the job in phase complete or error on every return.
		if _, err := d.orch.RunBatch(d.base, p); err != nil {
			d.log.WithJobID(p.JobID).Warn("batch ended with error", "error", err.Error())
		}
	}()

	d.log.Info("batch dispatched", "job_id", p.JobID, "entities", len(p.EntityIDs))
	return nil
}

// Wait blocks until running batches finish or ctx is done.
func (d *Inline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pusher is implemented by *queue.RedisQueue.
type Pusher interface {
	Push(ctx context.Context, payload []byte) error
}

// Queue publishes jobs for workers. The initial snapshot goes to the mirror
// so the job is pollable before a worker picks it up.
type Queue struct {
	q      Pusher
	mirror progress.Mirror
	ttl    time.Duration
	log    *logger.Logger
}

func NewQueue(q Pusher, mirror progress.Mirror, ttl time.Duration, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.NewDefault()
	}
	if ttl <= 0 {
		ttl = batch.DefaultCleanupDelay
	}
	return &Queue{q: q, mirror: mirror, ttl: ttl, log: log.WithComponent("dispatch")}
}

func (d *Queue) Mode() string { return "queue" }

func (d *Queue) Dispatch(ctx context.Context, p batch.Plan) error {
	if d.mirror != nil {
		if err := d.mirror.Save(ctx, progress.NewSnapshot(p.JobID, p.Items), d.ttl); err != nil {
			return errors.WrapWithCode(err, errors.CodeUnavailable, "dispatch.queue", "progress store unavailable")
		}
	}

	payload, err := renderjob.Encode(ToMessage(p))
	if err != nil {
		return errors.Wrap(err, "dispatch.queue", "encode render job")
	}
	if err := d.q.Push(ctx, payload); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "dispatch.queue", "job queue unavailable")
	}

	d.log.Info("batch queued", "job_id", p.JobID, "entities", len(p.EntityIDs))
	return nil
}

func ToMessage(p batch.Plan) renderjob.Message {
	items := make([]renderjob.Item, len(p.Items))
	for i, it := range p.Items {
		items[i] = renderjob.Item{ID: it.ID, Name: it.Name}
	}
	return renderjob.Message{
		Version:    renderjob.Version,
		JobID:      p.JobID,
		EntityIDs:  p.EntityIDs,
		Mode:       string(p.Mode),
		Items:      items,
		EnqueuedAt: time.Now().UTC(),
	}
}

func FromMessage(m renderjob.Message) (batch.Plan, error) {
	mode, err := render.ParseMode(m.Mode)
	if err != nil {
		return batch.Plan{}, err
	}
	items := make([]progress.Item, len(m.Items))
	for i, it := range m.Items {
		items[i] = progress.Item{ID: it.ID, Name: it.Name}
	}
	if len(items) == 0 {
		for _, id := range m.EntityIDs {
			items = append(items, progress.Item{ID: id, Name: id})
		}
	}
	return batch.Plan{JobID: m.JobID, EntityIDs: m.EntityIDs, Mode: mode, Items: items}, nil
}
