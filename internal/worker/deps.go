package worker

import (
	"context"
	"time"

	"adrender/internal/batch"
	"adrender/internal/pkg/logger"
)

// Source is implemented by *queue.RedisQueue.
type Source interface {
	Name() string
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type Deps struct {
	Queue        Source
	Orchestrator *batch.Orchestrator
	Log          *logger.Logger

	// PopTimeout bounds each blocking read so cancellation is noticed.
	PopTimeout time.Duration
	// MaxBackoff caps the wait between failed queue reads.
	MaxBackoff time.Duration

	// WorkspaceRoot and StaleAge drive the sweep done once at startup.
	WorkspaceRoot string
	StaleAge      time.Duration
}
