package httpkit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestCORS(t *testing.T) {
	h := CORS(CORSOptions{
		AllowedOrigins: []string{" http://app.local/ ", ""},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAgeSeconds:  120,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllow   string
		wantMaxAge  string
		wantExposed string
	}{
		{"allowed origin", "GET", "http://app.local", false, http.StatusTeapot, "http://app.local", "", "X-Request-ID"},
		{"foreign origin", "GET", "http://evil.local", false, http.StatusTeapot, "", "", ""},
		{"preflight", "OPTIONS", "http://app.local", true, http.StatusNoContent, "http://app.local", "120", ""},
		{"foreign preflight", "OPTIONS", "http://evil.local", true, http.StatusNoContent, "", "", ""},
		{"plain options", "OPTIONS", "http://app.local", false, http.StatusTeapot, "http://app.local", "", "X-Request-ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/render-jobs", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("expected allow origin %q, got %q", tt.wantAllow, got)
			}
			if got := rec.Header().Get("Access-Control-Max-Age"); got != tt.wantMaxAge {
				t.Errorf("expected max age %q, got %q", tt.wantMaxAge, got)
			}
			if got := rec.Header().Get("Access-Control-Expose-Headers"); got != tt.wantExposed {
				t.Errorf("expected exposed headers %q, got %q", tt.wantExposed, got)
			}
			if rec.Header().Get("Vary") != "Origin" {
				t.Errorf("expected Vary: Origin, got %q", rec.Header().Get("Vary"))
			}
		})
	}
}

func TestCORSWildcard(t *testing.T) {
	h := CORS(CORSOptions{AllowedOrigins: []string{"*"}})(http.NotFoundHandler())
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://any.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://any.local" {
		t.Errorf("expected reflected origin, got %q", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Mode string `json:"mode"`
	}

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"mode":"all"}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &v); err != nil || v.Mode != "all" {
		t.Fatalf("expected decode, got %v %+v", err, v)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"mode":"all","extra":1}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &v); err == nil {
		t.Error("expected unknown field to be rejected")
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"mode":"all"}{"mode":"missing"}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &v); err == nil {
		t.Error("expected trailing value to be rejected")
	}

	big := `{"mode":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req = httptest.NewRequest("POST", "/", strings.NewReader(big))
	if err := DecodeJSON(httptest.NewRecorder(), req, &v); err == nil {
		t.Error("expected oversized body to be rejected")
	}
}

func TestIsUndefinedTable(t *testing.T) {
	if !IsUndefinedTable(&pgconn.PgError{Code: "42P01"}) {
		t.Error("expected 42P01 to be undefined table")
	}
	if IsUndefinedTable(&pgconn.PgError{Code: "23505"}) {
		t.Error("expected unique violation to be rejected")
	}
}

func TestWriteAccepted(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAccepted(rec, "/render-jobs/j1", map[string]string{"jobId": "j1"})

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if rec.Header().Get("Location") != "/render-jobs/j1" {
		t.Errorf("expected Location header, got %q", rec.Header().Get("Location"))
	}
	if !strings.Contains(rec.Body.String(), `"jobId":"j1"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
