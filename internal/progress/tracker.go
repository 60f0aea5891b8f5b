// Package progress tracks batch render jobs for status polling. State lives in
// process memory and is optionally mirrored to Redis so another process can
// answer status requests. Entries disappear after a cleanup delay.
package progress

import (
	"context"
	"sync"
	"time"

	"adrender/internal/pkg/logger"
)

type Phase string

const (
	PhasePreparing  Phase = "preparing"
	PhaseProcessing Phase = "processing"
	PhasePackaging  Phase = "packaging"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

// Terminal reports whether no further transitions are expected.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// Item statuses.
const (
	ItemPending    = "pending"
	ItemProcessing = "processing"
	ItemCompleted  = "completed"
	ItemFailed     = "failed"
	ItemSkipped    = "skipped"
)

type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Snapshot is a copy of a job's state at one point in time.
type Snapshot struct {
	JobID       string    `json:"jobId"`
	Phase       Phase     `json:"phase"`
	Progress    int       `json:"progress"`
	Items       []Item    `json:"items"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (s Snapshot) clone() Snapshot {
	s.Items = append([]Item(nil), s.Items...)
	return s
}

// NewSnapshot builds the initial state of a job: preparing, 0%, every item pending.
func NewSnapshot(jobID string, items []Item) Snapshot {
	now := time.Now().UTC()
	out := Snapshot{
		JobID:     jobID,
		Phase:     PhasePreparing,
		Items:     make([]Item, len(items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, it := range items {
		out.Items[i] = Item{ID: it.ID, Name: it.Name, Status: ItemPending}
	}
	return out
}

// Update is merged into a job by UpdateProgress. Zero fields are left unchanged.
type Update struct {
	Phase       Phase
	Percent     *int
	DownloadURL string
	Error       string
}

// Percent is a helper for Update.Percent.
func Percent(n int) *int { return &n }

// Mirror stores snapshots outside the process.
type Mirror interface {
	Save(ctx context.Context, snap Snapshot, ttl time.Duration) error
	Load(ctx context.Context, jobID string) (Snapshot, bool, error)
}

type Options struct {
	Mirror Mirror
	// MirrorTTL bounds how long mirrored snapshots live before cleanup is scheduled.
	MirrorTTL time.Duration
	Log       *logger.Logger
}

// Tracker is safe for concurrent use by every batch of the process.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[string]*Snapshot
	timers map[string]*time.Timer
	closed bool

	mirrorMu  sync.Mutex
	mirror    Mirror
	mirrorTTL time.Duration
	log       *logger.Logger
}

func NewTracker(opts Options) *Tracker {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault()
	}
	ttl := opts.MirrorTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Tracker{
		jobs:      map[string]*Snapshot{},
		timers:    map[string]*time.Timer{},
		mirror:    opts.Mirror,
		mirrorTTL: ttl,
		log:       log.WithComponent("progress"),
	}
}

// Initialize creates or replaces jobID at phase preparing.
func (t *Tracker) Initialize(jobID string, items []Item) Snapshot {
	snap := NewSnapshot(jobID, items)

	t.mu.Lock()
	if timer, ok := t.timers[jobID]; ok {
		timer.Stop()
		delete(t.timers, jobID)
	}
	t.jobs[jobID] = &snap
	out := snap.clone()
	t.mu.Unlock()

	t.sync(jobID, t.mirrorTTL)
	return out
}

// UpdateProgress merges u into jobID. It returns false for unknown jobs.
func (t *Tracker) UpdateProgress(jobID string, u Update) bool {
	t.mu.Lock()
	s, ok := t.jobs[jobID]
	if ok {
		if u.Phase != "" {
			s.Phase = u.Phase
		}
		if u.Percent != nil {
			s.Progress = clampPercent(*u.Percent)
		}
		if u.DownloadURL != "" {
			s.DownloadURL = u.DownloadURL
		}
		if u.Error != "" {
			s.Error = u.Error
		}
		s.UpdatedAt = time.Now().UTC()
	}
	t.mu.Unlock()

	if ok {
		t.sync(jobID, t.mirrorTTL)
	}
	return ok
}

// UpdateItemStatus sets one item's status. It returns false when the job or
// the item is unknown.
func (t *Tracker) UpdateItemStatus(jobID, itemID, status, errMsg string) bool {
	t.mu.Lock()
	found := false
	if s, ok := t.jobs[jobID]; ok {
		for i := range s.Items {
			if s.Items[i].ID == itemID {
				s.Items[i].Status = status
				s.Items[i].Error = errMsg
				s.UpdatedAt = time.Now().UTC()
				found = true
				break
			}
		}
	}
	t.mu.Unlock()

	if found {
		t.sync(jobID, t.mirrorTTL)
	}
	return found
}

// Get returns a copy of jobID's state from this process only.
func (t *Tracker) Get(jobID string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.jobs[jobID]
	if !ok {
		return Snapshot{}, false
	}
	return s.clone(), true
}

// Lookup checks this process first, then the mirror.
func (t *Tracker) Lookup(ctx context.Context, jobID string) (Snapshot, bool, error) {
	if s, ok := t.Get(jobID); ok {
		return s, true, nil
	}
	if t.mirror == nil {
		return Snapshot{}, false, nil
	}
	return t.mirror.Load(ctx, jobID)
}

// ScheduleCleanup removes jobID once delay has elapsed. Rescheduling replaces
// the previous timer. The mirrored copy expires after the same delay.
func (t *Tracker) ScheduleCleanup(jobID string, delay time.Duration) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if _, ok := t.jobs[jobID]; !ok {
		t.mu.Unlock()
		return
	}
	if prev, ok := t.timers[jobID]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		// A re-initialized job owns a new timer.
		if t.timers[jobID] == timer {
			delete(t.timers, jobID)
			delete(t.jobs, jobID)
		}
	})
	t.timers[jobID] = timer
	t.mu.Unlock()

	t.sync(jobID, delay)
}

// Len reports the number of jobs held in memory.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// Close stops pending cleanup timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// sync writes the latest snapshot of jobID to the mirror. Saves are
// serialized so the mirror never ends on an older state than memory.
func (t *Tracker) sync(jobID string, ttl time.Duration) {
	if t.mirror == nil {
		return
	}
	t.mirrorMu.Lock()
	defer t.mirrorMu.Unlock()

	snap, ok := t.Get(jobID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.mirror.Save(ctx, snap, ttl); err != nil {
		t.log.Warn("progress mirror save failed", "job_id", jobID, "error", err.Error())
	}
}

func clampPercent(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}
