package localfs

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"adrender/internal/ports"
)

func TestHandler(t *testing.T) {
	root := t.TempDir()
	fs := New(root, "http://localhost:8080/files")
	body := []byte("rendered")
	if _, err := fs.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey: "renders/b1/v1/1080x1080.mp4",
		Reader:    bytes.NewReader(body),
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "renders", "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	h := http.StripPrefix("/files", fs.Handler())

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"object", "GET", "/files/renders/b1/v1/1080x1080.mp4", 200, "rendered"},
		{"head", "HEAD", "/files/renders/b1/v1/1080x1080.mp4", 200, ""},
		{"missing", "GET", "/files/renders/nope.mp4", 404, ""},
		{"directory", "GET", "/files/renders/empty", 404, ""},
		{"directory slash", "GET", "/files/renders/", 404, ""},
		{"post", "POST", "/files/renders/b1/v1/1080x1080.mp4", 405, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}
