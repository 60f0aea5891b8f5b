package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGeometryCommand(t *testing.T) {
	out, _, err := runCLI(t, "geometry", "1920x1080", "1080x1920", "1080x1080", "--logo", "200x80", "--position", "bottom-right")
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	for _, want := range []string{"1080x1920", "608x1080", "656,0", "1080x1080", "420,0", "860,1820", "860,980"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestGeometryCommandUnknownPosition(t *testing.T) {
	out, _, err := runCLI(t, "geometry", "1000x1000", "500x500", "--logo", "50x50", "--position", "middle")
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	if !strings.Contains(out, "top-left fallback") {
		t.Errorf("expected fallback note, got:\n%s", out)
	}
}

func TestGeometryCommandRejectsBadFormat(t *testing.T) {
	if _, _, err := runCLI(t, "geometry", "1920x1080", "wide"); err == nil {
		t.Fatal("expected an invalid format error")
	}
}

func TestRenderCommandNeedsTargets(t *testing.T) {
	_, _, err := runCLI(t, "render")
	if err == nil || !strings.Contains(err.Error(), "video id") {
		t.Fatalf("expected missing target error, got %v", err)
	}
}

func TestRenderCommandRejectsMode(t *testing.T) {
	if _, _, err := runCLI(t, "render", "v1", "--mode", "sometimes"); err == nil {
		t.Fatal("expected an invalid mode error")
	}
}

func TestCallbackCode(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		wantErr string
	}{
		{"ok", "?state=s1&code=abc", "abc", ""},
		{"bad state", "?state=other&code=abc", "", "invalid state"},
		{"denied", "?state=s1&error=access_denied", "", "access_denied"},
		{"no code", "?state=s1", "", "missing code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := callbackCode(httptest.NewRequest("GET", "/callback"+tt.query, nil), "s1")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || code != tt.want {
				t.Errorf("expected %q, got %q %v", tt.want, code, err)
			}
		})
	}
}

func TestPrintFormatsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printFormats(&buf, nil)
	if !strings.Contains(buf.String(), "No formats rendered yet") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
