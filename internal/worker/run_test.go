package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"adrender/internal/batch"
	renderjob "adrender/internal/contracts/renderjob/v1"
	"adrender/internal/models"
	"adrender/internal/pkg/logger"
	"adrender/internal/progress"
	"adrender/internal/render"
	"adrender/internal/render/rendertest"
)

// chanSource feeds payloads and errors to Run, then blocks until cancelled.
type chanSource struct {
	mu      sync.Mutex
	payload [][]byte
	errs    []error
	drained chan struct{}
	once    sync.Once
}

func (s *chanSource) Name() string { return "test-queue" }

func (s *chanSource) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.payload) > 0 {
		p := s.payload[0]
		s.payload = s.payload[1:]
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.drained) })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

type okRenderer struct{}

func (okRenderer) RenderAllFormats(ctx context.Context, id string, opts render.Options) (*render.Result, error) {
	return &render.Result{EntityID: id, Succeeded: []string{"1080x1080"}}, nil
}

func newOrchestrator(t *testing.T) (*batch.Orchestrator, *progress.Tracker) {
	t.Helper()
	store := rendertest.NewStore()
	store.AddVideo(models.VideoEntity{ID: "v1", ProjectID: "p", Scenes: rendertest.CompletedScenes("u", 2)})
	tracker := progress.NewTracker(progress.Options{Log: logger.Discard()})
	t.Cleanup(tracker.Close)
	return batch.New(batch.Deps{Store: store, Renderer: okRenderer{}, Tracker: tracker, Log: logger.Discard()}), tracker
}

func encode(t *testing.T, m renderjob.Message) []byte {
	t.Helper()
	b, err := renderjob.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func runUntilDrained(t *testing.T, src *chanSource, orch *batch.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Deps{Queue: src, Orchestrator: orch, Log: logger.Discard(), PopTimeout: 50 * time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	}()

	select {
	case <-src.drained:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not drain the queue")
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunProcessesJobs(t *testing.T) {
	orch, tracker := newOrchestrator(t)
	src := &chanSource{
		drained: make(chan struct{}),
		errs:    []error{fmt.Errorf("connection reset")},
		payload: [][]byte{
			[]byte("not json"),
			encode(t, renderjob.Message{JobID: "job-1", EntityIDs: []string{"v1"}, Mode: "all"}),
			encode(t, renderjob.Message{JobID: "job-2", EntityIDs: []string{"v1"}, Mode: "sideways"}),
		},
	}

	runUntilDrained(t, src, orch)

	tests := []struct {
		jobID string
		phase progress.Phase
	}{
		{"job-1", progress.PhaseComplete},
		{"job-2", progress.PhaseError},
	}
	for _, tt := range tests {
		t.Run(tt.jobID, func(t *testing.T) {
			snap, ok := tracker.Get(tt.jobID)
			if !ok {
				t.Fatal("expected job to be tracked")
			}
			if snap.Phase != tt.phase {
				t.Errorf("expected phase %s, got %s", tt.phase, snap.Phase)
			}
		})
	}

	snap, _ := tracker.Get("job-1")
	if len(snap.Items) != 1 || snap.Items[0].Status != progress.ItemCompleted {
		t.Errorf("unexpected items %+v", snap.Items)
	}
}

func TestRunSweepsStaleWorkspaces(t *testing.T) {
	orch, _ := newOrchestrator(t)
	src := &chanSource{drained: make(chan struct{})}
	root := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Deps{Queue: src, Orchestrator: orch, Log: logger.Discard(), PopTimeout: 10 * time.Millisecond, WorkspaceRoot: root, StaleAge: time.Hour})
	}()
	<-src.drained
	cancel()
	<-done
}
