package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"adrender/internal/batch"
	"adrender/internal/httpapi/handlers"
	"adrender/internal/models"
	"adrender/internal/pkg/errors"
	"adrender/internal/pkg/logger"
	"adrender/internal/progress"
	"adrender/internal/render"
	"adrender/internal/render/rendertest"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	plans []batch.Plan
	err   error
	tr    *progress.Tracker
}

func (d *recordingDispatcher) Mode() string { return "test" }

func (d *recordingDispatcher) Dispatch(ctx context.Context, p batch.Plan) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	d.plans = append(d.plans, p)
	d.mu.Unlock()
	d.tr.Initialize(p.JobID, p.Items)
	return nil
}

type nopRenderer struct{}

func (nopRenderer) RenderAllFormats(ctx context.Context, id string, opts render.Options) (*render.Result, error) {
	return &render.Result{EntityID: id}, nil
}

type fixture struct {
	router  http.Handler
	store   *rendertest.Store
	tracker *progress.Tracker
	disp    *recordingDispatcher
}

func newFixture(t *testing.T, checks ...handlers.Check) *fixture {
	t.Helper()
	store := rendertest.NewStore()
	store.AddVideo(models.VideoEntity{ID: "v1", BatchID: "b1", ProjectID: "p", Name: "Spring promo", Scenes: rendertest.CompletedScenes("u", 2)})
	store.AddVideo(models.VideoEntity{ID: "v2", BatchID: "b1", ProjectID: "p", Scenes: []models.Scene{{ID: "s", Status: "processing"}}})

	tracker := progress.NewTracker(progress.Options{Log: logger.Discard()})
	t.Cleanup(tracker.Close)

	orch := batch.New(batch.Deps{Store: store, Renderer: nopRenderer{}, Tracker: tracker, Log: logger.Discard()})
	disp := &recordingDispatcher{tr: tracker}

	router := NewRouter(Deps{
		Handlers: handlers.Deps{
			Store:      store,
			Planner:    orch,
			Dispatcher: disp,
			Progress:   tracker,
			Checks:     checks,
			Provider:   "localfs",
		},
		CORSOrigins: []string{"http://app.local"},
		Log:         logger.Discard(),
	})
	return &fixture{router: router, store: store, tracker: tracker, disp: disp}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	return env.Error.Code
}

func TestPostRenderJob(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		code     string
		items    int
		wantMode string
	}{
		{"entity ids", `{"entityIds":["v1","v2","v1"]}`, 202, "", 2, "missing"},
		{"batch id", `{"batchId":"b1","mode":"all"}`, 202, "", 2, "all"},
		{"unknown batch", `{"batchId":"b9"}`, 404, "NOT_FOUND", 0, ""},
		{"empty request", `{}`, 400, "VALIDATION_ERROR", 0, ""},
		{"empty id", `{"entityIds":[""]}`, 400, "VALIDATION_ERROR", 0, ""},
		{"bad mode", `{"entityIds":["v1"],"mode":"some"}`, 400, "VALIDATION_ERROR", 0, ""},
		{"unknown field", `{"entityIds":["v1"],"format":"x"}`, 400, "VALIDATION_ERROR", 0, ""},
		{"not json", `entityIds=v1`, 400, "VALIDATION_ERROR", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do("POST", "/render-jobs", tt.body)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.code != "" {
				if got := errorCode(t, rec); got != tt.code {
					t.Errorf("expected code %s, got %s", tt.code, got)
				}
				if len(f.disp.plans) != 0 {
					t.Error("rejected request must not dispatch")
				}
				return
			}

			var resp handlers.CreateRenderJobResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.JobID == "" || resp.Items != tt.items || resp.Mode != tt.wantMode {
				t.Errorf("unexpected response %+v", resp)
			}
			if len(f.disp.plans) != 1 || f.disp.plans[0].JobID != resp.JobID {
				t.Errorf("expected one dispatched plan for %s, got %+v", resp.JobID, f.disp.plans)
			}
			if loc := rec.Header().Get("Location"); loc != "/render-jobs/"+resp.JobID {
				t.Errorf("expected Location of the job, got %q", loc)
			}
		})
	}
}

func TestPostRenderJobQueueDown(t *testing.T) {
	f := newFixture(t)
	f.disp.err = errors.Unavailable("job queue")

	rec := f.do("POST", "/render-jobs", `{"entityIds":["v1"]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGetRenderJob(t *testing.T) {
	f := newFixture(t)

	rec := f.do("POST", "/render-jobs", `{"entityIds":["v1"]}`)
	var created handlers.CreateRenderJobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	f.tracker.UpdateProgress(created.JobID, progress.Update{Phase: progress.PhaseProcessing, Percent: progress.Percent(40)})

	rec = f.do("GET", "/render-jobs/"+created.JobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap progress.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Phase != progress.PhaseProcessing || snap.Progress != 40 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if len(snap.Items) != 1 || snap.Items[0].Name != "Spring promo" {
		t.Errorf("expected item named from the store, got %+v", snap.Items)
	}

	rec = f.do("GET", "/render-jobs/does-not-exist", "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "NOT_FOUND" {
		t.Errorf("expected 404 NOT_FOUND, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestPostVideoRender(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"ready video", "/videos/v1/render", "", 202},
		{"ready video with mode", "/videos/v1/render", `{"mode":"all"}`, 202},
		{"scenes not ready", "/videos/v2/render", "", 412},
		{"unknown video", "/videos/nope/render", "", 404},
		{"bad mode", "/videos/v1/render", `{"mode":"x"}`, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do("POST", tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status == 202 && (len(f.disp.plans) != 1 || f.disp.plans[0].EntityIDs[0] != "v1") {
				t.Errorf("expected a plan for v1, got %+v", f.disp.plans)
			}
		})
	}
}

func TestGetVideoFormats(t *testing.T) {
	f := newFixture(t)
	if err := f.store.UpsertRenderedFormat(context.Background(), models.RenderedFormat{
		VideoID: "v1", Format: "1080x1080", Status: models.FormatCompleted, URL: "http://x/1080x1080.mp4",
	}); err != nil {
		t.Fatal(err)
	}

	rec := f.do("GET", "/videos/v1/formats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp handlers.VideoFormatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.VideoID != "v1" || len(resp.Formats) != 1 || resp.Formats[0].Status != models.FormatCompleted {
		t.Errorf("unexpected response %+v", resp)
	}

	rec = f.do("GET", "/videos/v2/formats", "")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"formats":[]`)) {
		t.Errorf("expected empty formats list, got %d %s", rec.Code, rec.Body.String())
	}

	if rec = f.do("GET", "/videos/nope/formats", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t,
		handlers.Check{Name: "postgres", Probe: func(ctx context.Context) (map[string]any, error) { return nil, nil }},
		handlers.Check{Name: "redis", Probe: func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"queue_length": 0}, fmt.Errorf("connection refused")
		}},
	)

	tests := []struct {
		path   string
		status string
	}{
		{"/health", "ok"},
		{"/health?deep=true", "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.do("GET", tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["status"] != tt.status {
				t.Errorf("expected status %s, got %v", tt.status, body["status"])
			}
		})
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest("OPTIONS", "/render-jobs", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected preflight 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://app.local" {
		t.Errorf("expected allowed origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}
