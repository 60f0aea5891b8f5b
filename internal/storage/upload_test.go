package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"adrender/internal/adapters/storage/localfs"
	"adrender/internal/config"
	"adrender/internal/pkg/errors"
	"adrender/internal/ports"
)

type failingProvider struct {
	ports.StorageProvider
}

func (failingProvider) PutObject(context.Context, ports.PutObjectInput) (ports.PutObjectOutput, error) {
	return ports.PutObjectOutput{}, fmt.Errorf("bucket unavailable")
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(src, []byte("rendered"), 0o600); err != nil {
		t.Fatal(err)
	}
	sp := localfs.New(filepath.Join(dir, "store"), "http://files")

	out, err := UploadFile(context.Background(), sp, "renders/b/v/1080x1080.mp4", src, "video/mp4")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if out.Size != 8 {
		t.Errorf("expected size 8, got %d", out.Size)
	}

	rc, _, _, err := sp.GetObject(context.Background(), out.ObjectKey)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "rendered" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestUploadErrorsAreStorageErrors(t *testing.T) {
	ctx := context.Background()

	_, err := UploadFile(ctx, failingProvider{}, "k", filepath.Join(t.TempDir(), "missing"), "")
	if !errors.IsStorage(err) {
		t.Errorf("expected storage error for missing file, got %v", err)
	}

	_, err = UploadBuffer(ctx, failingProvider{}, "manifest.json", []byte("{}"), "application/json")
	if !errors.IsStorage(err) {
		t.Errorf("expected storage error, got %v", err)
	}
	if got := errors.GetFields(err)["key"]; got != "manifest.json" {
		t.Errorf("expected key field, got %v", got)
	}
	if !strings.Contains(err.Error(), "bucket unavailable") {
		t.Errorf("expected cause in error, got %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	sp, err := NewProvider(context.Background(), config.StorageConfig{Provider: "localfs", LocalRoot: t.TempDir()})
	if err != nil || sp.Provider() != "localfs" {
		t.Fatalf("expected localfs provider, got %v %v", sp, err)
	}

	if _, err := NewProvider(context.Background(), config.StorageConfig{Provider: "s3"}); !errors.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
