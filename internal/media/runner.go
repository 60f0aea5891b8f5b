package media

import (
	"bytes"
	"context"
	"os/exec"
)

// maxStderrBytes is the tail of encoder stderr kept as diagnostics.
const maxStderrBytes = 8 * 1024

// Runner executes one external command and returns its stdout and the tail of
// its stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout []byte, stderrTail string, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, string, error) {
	var stdout bytes.Buffer
	stderr := &tailWriter{limit: maxStderrBytes}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	buf   []byte
	limit int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= w.limit {
		w.buf = append(w.buf[:0], p[len(p)-w.limit:]...)
		return n, nil
	}
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.limit; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	return n, nil
}

func (w *tailWriter) String() string { return string(w.buf) }

// truncate keeps the last max bytes of s for log lines.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
