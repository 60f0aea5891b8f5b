package assets

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"adrender/internal/pkg/errors"
	"adrender/internal/ports"
)

var (
	mp4Header = append([]byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}, make([]byte, 52)...)
	pngHeader = append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 56)...)
)

// memProvider serves objects for mem:// URLs and optionally signs them.
type memProvider struct {
	ports.StorageProvider
	objects   map[string][]byte
	signedURL string
	gets      int
}

func (m *memProvider) ResolveURL(raw string) (ports.ObjectRef, bool) {
	if !strings.HasPrefix(raw, "mem://") {
		return ports.ObjectRef{}, false
	}
	return ports.ObjectRef{Key: strings.TrimPrefix(raw, "mem://")}, true
}

func (m *memProvider) GetSignedURL(ctx context.Context, key string, d time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{URL: m.signedURL}, nil
}

func (m *memProvider) GetObject(ctx context.Context, key string) (io.ReadCloser, string, int64, error) {
	m.gets++
	b, ok := m.objects[key]
	if !ok {
		return nil, "", 0, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(string(b))), "", int64(len(b)), nil
}

func newFetcher(sp *memProvider) *Fetcher {
	if sp == nil {
		return New(nil, Options{RPS: 1000, Burst: 10}, nil)
	}
	return New(sp, Options{RPS: 1000, Burst: 10}, nil)
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/scene.mp4":
			w.Write(mp4Header)
		case "/logo.png":
			w.Write(pngHeader)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name  string
		path  string
		want  Kind
		check func(error) bool
	}{
		{"video ok", "/scene.mp4", KindVideo, func(err error) bool { return err == nil }},
		{"image ok", "/logo.png", KindImage, func(err error) bool { return err == nil }},
		{"image where video expected", "/logo.png", KindVideo, errors.IsValidation},
		{"missing", "/nope.mp4", KindVideo, errors.IsStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			got, err := newFetcher(nil).Fetch(context.Background(), srv.URL+tt.path, dir, "asset", tt.want)
			if !tt.check(err) {
				t.Fatalf("unexpected result: %v", err)
			}
			entries, _ := os.ReadDir(dir)
			if err != nil && len(entries) != 0 {
				t.Errorf("expected no files left after failure, found %d", len(entries))
			}
			if err == nil && filepath.Dir(got) != dir {
				t.Errorf("expected file inside %s, got %s", dir, got)
			}
		})
	}
}

func TestFetchFromStorageDirect(t *testing.T) {
	sp := &memProvider{objects: map[string][]byte{"scenes/s1.mp4": mp4Header}}
	dir := t.TempDir()

	got, err := newFetcher(sp).Fetch(context.Background(), "mem://scenes/s1.mp4", dir, "scene-000", KindVideo)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != filepath.Join(dir, "scene-000.mp4") {
		t.Errorf("expected sniffed .mp4 extension, got %s", got)
	}
	if sp.gets != 1 {
		t.Errorf("expected one GetObject call, got %d", sp.gets)
	}
}

func TestFetchPrefersSignedURL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(mp4Header)
	}))
	defer srv.Close()

	sp := &memProvider{signedURL: srv.URL + "/signed", objects: map[string][]byte{}}
	if _, err := newFetcher(sp).Fetch(context.Background(), "mem://scenes/s.mp4", t.TempDir(), "s", KindVideo); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if hits != 1 || sp.gets != 0 {
		t.Errorf("expected signed download only, got hits=%d gets=%d", hits, sp.gets)
	}
}

func TestFetchSignedFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sp := &memProvider{signedURL: srv.URL, objects: map[string][]byte{"a.mp4": mp4Header}}
	if _, err := newFetcher(sp).Fetch(context.Background(), "mem://a.mp4", t.TempDir(), "a", KindVideo); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if sp.gets != 1 {
		t.Errorf("expected fallback to GetObject, got %d calls", sp.gets)
	}
}

func TestFetchStorageMissing(t *testing.T) {
	sp := &memProvider{objects: map[string][]byte{}}
	_, err := newFetcher(sp).Fetch(context.Background(), "mem://gone.mp4", t.TempDir(), "x", KindVideo)
	if !errors.IsStorage(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestFetchUnknownTypeAccepted(t *testing.T) {
	sp := &memProvider{objects: map[string][]byte{"raw.ts": []byte("not a known container")}}
	dir := t.TempDir()
	got, err := newFetcher(sp).Fetch(context.Background(), "mem://raw.ts", dir, "raw", KindVideo)
	if err != nil {
		t.Fatalf("expected undetectable content to pass, got %v", err)
	}
	if got != filepath.Join(dir, "raw.ts") {
		t.Errorf("expected extension from URL, got %s", got)
	}
}

func TestFetchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(nil, Options{RPS: 0.001, Burst: 1}, nil)
	f.limiter.Allow()

	_, err := f.Fetch(ctx, "http://127.0.0.1:1/x", t.TempDir(), "x", KindAny)
	if !errors.IsStorage(err) {
		t.Fatalf("expected storage error on canceled context, got %v", err)
	}
}
