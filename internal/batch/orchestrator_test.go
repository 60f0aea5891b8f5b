package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adrender/internal/adapters/storage/localfs"
	"adrender/internal/models"
	"adrender/internal/pkg/errors"
	"adrender/internal/pkg/logger"
	"adrender/internal/progress"
	"adrender/internal/render"
	"adrender/internal/render/rendertest"
)

type env struct {
	store   *rendertest.Store
	engine  *rendertest.Engine
	sp      *localfs.LocalFS
	tracker *progress.Tracker
	orch    *Orchestrator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:   rendertest.NewStore(),
		engine:  &rendertest.Engine{},
		sp:      localfs.New(t.TempDir(), "http://files.test"),
		tracker: progress.NewTracker(progress.Options{Log: logger.Discard()}),
	}
	t.Cleanup(e.tracker.Close)

	r := render.New(render.Deps{
		Store:         e.store,
		Engine:        e.engine,
		Fetcher:       &rendertest.Fetcher{},
		Storage:       e.sp,
		WorkspaceRoot: t.TempDir(),
		Log:           logger.Discard(),
	})
	e.orch = New(Deps{
		Store:    e.store,
		Renderer: r,
		Tracker:  e.tracker,
		Storage:  e.sp,
		Log:      logger.Discard(),
	})
	e.store.AddProject(models.ProjectSettings{ProjectID: "p1", DefaultFormats: []string{"1080x1920", "1080x1080"}})
	return e
}

func (e *env) addVideo(id string, scenes []models.Scene) {
	e.store.AddVideo(models.VideoEntity{ID: id, BatchID: "b1", ProjectID: "p1", Name: "Ad " + id, Scenes: scenes})
}

func (e *env) run(t *testing.T, req Request) (*Summary, progress.Snapshot) {
	t.Helper()
	ctx := context.Background()
	plan, err := e.orch.Plan(ctx, req)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	e.tracker.Initialize(plan.JobID, plan.Items)

	summary, err := e.orch.RunBatch(ctx, plan)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	snap, ok := e.tracker.Get(plan.JobID)
	if !ok {
		t.Fatal("expected job to remain tracked until cleanup")
	}
	return summary, snap
}

func TestEndToEnd(t *testing.T) {
	e := newEnv(t)
	e.addVideo("v1", rendertest.CompletedScenes("https://cdn.test/v1", 2))
	e.addVideo("v2", rendertest.CompletedScenes("https://cdn.test/v2", 2))

	summary, snap := e.run(t, Request{EntityIDs: []string{"v1", "v2"}, Mode: render.ModeAll})

	if summary.Started != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	for _, id := range []string{"v1", "v2"} {
		for _, format := range []string{"1080x1920", "1080x1080"} {
			rf, ok := e.store.Rendered(id, format)
			if !ok || rf.Status != models.FormatCompleted || rf.URL == "" {
				t.Errorf("expected %s/%s completed with url, got %+v", id, format, rf)
			}
		}
	}

	if snap.Phase != progress.PhaseComplete || snap.Progress != 100 {
		t.Errorf("expected complete at 100%%, got %s %d", snap.Phase, snap.Progress)
	}
	for _, it := range snap.Items {
		if it.Status != progress.ItemCompleted {
			t.Errorf("expected item %s completed, got %s", it.ID, it.Status)
		}
	}
	if snap.DownloadURL != "http://files.test/"+render.ManifestKey(snap.JobID) {
		t.Errorf("unexpected download url %q", snap.DownloadURL)
	}

	rc, _, _, err := e.sp.GetObject(context.Background(), render.ManifestKey(snap.JobID))
	if err != nil {
		t.Fatalf("manifest not stored: %v", err)
	}
	defer rc.Close()
	var m Manifest
	body, _ := io.ReadAll(rc)
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if len(m.Items) != 2 || len(m.Items[0].Formats) != 2 || m.Items[0].Name != "Ad v1" {
		t.Errorf("unexpected manifest %+v", m)
	}
}

func TestBatchIsolation(t *testing.T) {
	e := newEnv(t)
	e.addVideo("v1", rendertest.CompletedScenes("u1", 2))
	incomplete := rendertest.CompletedScenes("u2", 2)
	incomplete[0].Status = "generating"
	e.addVideo("v2", incomplete)
	e.addVideo("v3", rendertest.CompletedScenes("u3", 1))

	summary, snap := e.run(t, Request{EntityIDs: []string{"v1", "v2", "v3"}})

	if summary.Skipped != 1 || summary.Succeeded != 2 || summary.Started != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if _, ok := e.store.Rendered("v2", "1080x1080"); ok {
		t.Error("skipped entity must not get rendered rows")
	}
	for _, id := range []string{"v1", "v3"} {
		if e.store.Status(id) != models.VideoCompleted {
			t.Errorf("expected %s completed, got %s", id, e.store.Status(id))
		}
	}

	statuses := map[string]string{}
	for _, it := range snap.Items {
		statuses[it.ID] = it.Status
	}
	if statuses["v2"] != progress.ItemSkipped || statuses["v1"] != progress.ItemCompleted {
		t.Errorf("unexpected item statuses %v", statuses)
	}
	if snap.Phase != progress.PhaseComplete {
		t.Errorf("expected complete, got %s", snap.Phase)
	}
}

func TestEntityFailureDoesNotAbortBatch(t *testing.T) {
	e := newEnv(t)
	e.addVideo("v1", rendertest.CompletedScenes("u1", 1))
	e.engine.FailFormats = map[string]error{"1080x1080": errors.Render("1080x1080", "boom", fmt.Errorf("exit 1"))}

	summary, snap := e.run(t, Request{EntityIDs: []string{"v1", "missing"}})

	if summary.Failed != 2 || summary.Succeeded != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	for _, it := range snap.Items {
		if it.Status != progress.ItemFailed || it.Error == "" {
			t.Errorf("expected %s failed with message, got %+v", it.ID, it)
		}
		if strings.Contains(it.Error, "boom") {
			t.Error("diagnostics leaked into progress")
		}
	}
	if snap.Phase != progress.PhaseComplete {
		t.Errorf("expected batch to complete, got %s", snap.Phase)
	}
}

// slowRenderer records the peak number of concurrent renders.
type slowRenderer struct {
	active, peak int32
}

func (s *slowRenderer) RenderAllFormats(ctx context.Context, id string, opts render.Options) (*render.Result, error) {
	n := atomic.AddInt32(&s.active, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&s.active, -1)
	return &render.Result{EntityID: id, Succeeded: []string{"1080x1080"}}, nil
}

func TestConcurrencyIsBounded(t *testing.T) {
	store := rendertest.NewStore()
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("v%d", i)
		store.AddVideo(models.VideoEntity{ID: ids[i], ProjectID: "p", Scenes: rendertest.CompletedScenes("u", 1)})
	}
	tracker := progress.NewTracker(progress.Options{Log: logger.Discard()})
	defer tracker.Close()

	sr := &slowRenderer{}
	orch := New(Deps{Store: store, Renderer: sr, Tracker: tracker, Log: logger.Discard()})

	plan, err := orch.Plan(context.Background(), Request{EntityIDs: ids})
	if err != nil {
		t.Fatal(err)
	}
	summary, err := orch.RunBatch(context.Background(), plan)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Succeeded != 10 {
		t.Errorf("expected 10 succeeded, got %d", summary.Succeeded)
	}
	if peak := atomic.LoadInt32(&sr.peak); peak > DefaultConcurrency {
		t.Errorf("expected at most %d concurrent renders, saw %d", DefaultConcurrency, peak)
	}
}

func TestPlan(t *testing.T) {
	e := newEnv(t)
	e.addVideo("v1", rendertest.CompletedScenes("u", 1))
	e.addVideo("v2", rendertest.CompletedScenes("u", 1))
	ctx := context.Background()

	t.Run("explicit ids are deduplicated", func(t *testing.T) {
		p, err := e.orch.Plan(ctx, Request{EntityIDs: []string{"v1", " v1", "v2", ""}})
		if err != nil {
			t.Fatal(err)
		}
		if len(p.EntityIDs) != 2 || p.Mode != render.ModeMissing || p.JobID == "" {
			t.Errorf("unexpected plan %+v", p)
		}
		if p.Items[0].Name != "Ad v1" {
			t.Errorf("expected names from the store, got %+v", p.Items)
		}
	})

	t.Run("batch id expands", func(t *testing.T) {
		p, err := e.orch.Plan(ctx, Request{BatchID: "b1", Mode: render.ModeAll})
		if err != nil {
			t.Fatal(err)
		}
		if len(p.EntityIDs) != 2 || p.Mode != render.ModeAll {
			t.Errorf("unexpected plan %+v", p)
		}
	})

	t.Run("unknown batch", func(t *testing.T) {
		if _, err := e.orch.Plan(ctx, Request{BatchID: "nope"}); !errors.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("empty request", func(t *testing.T) {
		if _, err := e.orch.Plan(ctx, Request{}); !errors.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown names fall back to ids", func(t *testing.T) {
		p, err := e.orch.Plan(ctx, Request{EntityIDs: []string{"ghost"}})
		if err != nil {
			t.Fatal(err)
		}
		if p.Items[0].Name != "ghost" {
			t.Errorf("expected id as name, got %q", p.Items[0].Name)
		}
	})
}

type panicRenderer struct{}

func (panicRenderer) RenderAllFormats(context.Context, string, render.Options) (*render.Result, error) {
	panic("encoder exploded")
}

func TestPanicIsContained(t *testing.T) {
	store := rendertest.NewStore()
	store.AddVideo(models.VideoEntity{ID: "v1", ProjectID: "p", Scenes: rendertest.CompletedScenes("u", 1)})
	tracker := progress.NewTracker(progress.Options{Log: logger.Discard()})
	defer tracker.Close()
	orch := New(Deps{Store: store, Renderer: panicRenderer{}, Tracker: tracker, Log: logger.Discard()})

	plan, _ := orch.Plan(context.Background(), Request{EntityIDs: []string{"v1"}})
	summary, err := orch.RunBatch(context.Background(), plan)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 {
		t.Errorf("expected panicking entity to be failed, got %+v", summary)
	}
}

func TestGuardMarksJobFailed(t *testing.T) {
	tracker := progress.NewTracker(progress.Options{Log: logger.Discard()})
	defer tracker.Close()
	orch := New(Deps{Store: rendertest.NewStore(), Tracker: tracker, Log: logger.Discard()})
	tracker.Initialize("job-1", nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer orch.Guard("job-1")
		panic("lost connection")
	}()
	wg.Wait()

	snap, _ := tracker.Get("job-1")
	if snap.Phase != progress.PhaseError || snap.Error == "" {
		t.Errorf("expected error phase, got %+v", snap)
	}
}

func TestCanceledBatchEndsInError(t *testing.T) {
	e := newEnv(t)
	e.addVideo("v1", rendertest.CompletedScenes("u", 1))

	plan, _ := e.orch.Plan(context.Background(), Request{EntityIDs: []string{"v1"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.orch.RunBatch(ctx, plan); err == nil {
		t.Fatal("expected canceled batch to return an error")
	}
	snap, _ := e.tracker.Get(plan.JobID)
	if snap.Phase != progress.PhaseError {
		t.Errorf("expected error phase, got %s", snap.Phase)
	}
}
