// Package workspace owns the scratch directories of render runs. A workspace
// is created per run, locked while in use and removed on every exit path.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"adrender/internal/pkg/logger"
)

const (
	dirPrefix = "render-"
	lockName  = ".lock"
)

// Workspace is a private directory for one render run.
type Workspace struct {
	dir  string
	lock *flock.Flock
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name ...string) string {
	return filepath.Join(append([]string{w.dir}, name...)...)
}

// Create makes a uniquely named, locked workspace under root.
func Create(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	dir := filepath.Join(root, dirPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		_ = os.RemoveAll(dir)
		if err == nil {
			err = fmt.Errorf("lock already held")
		}
		return nil, fmt.Errorf("lock workspace: %w", err)
	}

	return &Workspace{dir: dir, lock: lock}, nil
}

// Remove releases the lock and deletes the directory.
func (w *Workspace) Remove() error {
	_ = w.lock.Unlock()
	return os.RemoveAll(w.dir)
}

// Run creates a workspace, calls fn with it and removes it afterwards, also
// when fn panics. Removal failures are logged, not returned.
func Run(root string, log *logger.Logger, fn func(ws *Workspace) error) (err error) {
	ws, err := Create(root)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := ws.Remove(); rmErr != nil && log != nil {
			log.Warn("failed to remove workspace", "path", ws.dir, "error", rmErr.Error())
		}
	}()
	return fn(ws)
}

// CleanStaleResult contains the outcome of a stale workspace sweep.
type CleanStaleResult struct {
	Removed []string
	Skipped []string
	Errors  []error
}

// CleanStale removes workspaces under root older than maxAge whose lock is
// free. Locked workspaces belong to a live run and are skipped.
func CleanStale(root string, maxAge time.Duration, log *logger.Logger) CleanStaleResult {
	var result CleanStaleResult

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, err)
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		lock := flock.New(filepath.Join(dir, lockName))
		ok, err := lock.TryLock()
		if err != nil || !ok {
			result.Skipped = append(result.Skipped, dir)
			continue
		}
		rmErr := os.RemoveAll(dir)
		_ = lock.Unlock()
		if rmErr != nil {
			result.Errors = append(result.Errors, rmErr)
			if log != nil {
				log.Warn("failed to remove stale workspace", "path", dir, "error", rmErr.Error())
			}
			continue
		}
		result.Removed = append(result.Removed, dir)
		if log != nil {
			log.Info("removed stale workspace", "path", dir, "age", time.Since(info.ModTime()).String())
		}
	}
	return result
}
