package worker

import (
	"context"
	"time"

	renderjob "adrender/internal/contracts/renderjob/v1"
	"adrender/internal/dispatch"
	"adrender/internal/pkg/logger"
	"adrender/internal/workspace"
)

const (
	defaultPopTimeout = 5 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Run consumes render jobs until ctx is cancelled. Batches run one at a
// time; each batch bounds its own entity concurrency.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = defaultPopTimeout
	}
	maxBackoff := d.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	if d.WorkspaceRoot != "" && d.StaleAge > 0 {
		res := workspace.CleanStale(d.WorkspaceRoot, d.StaleAge, log)
		log.Info("stale workspaces swept", "removed", len(res.Removed), "errors", len(res.Errors))
	}

	log.Info("worker started", "queue", d.Queue.Name())
	backoff := min(time.Second, maxBackoff)

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		payload, err := d.Queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			log.Warn("queue pop error, retrying", "error", err.Error(), "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = min(time.Second, maxBackoff)

		if payload == nil {
			continue
		}

		handle(ctx, d, log, payload)
	}
}

func handle(ctx context.Context, d Deps, log *logger.Logger, payload []byte) {
	msg, err := renderjob.Decode(payload)
	if err != nil {
		// Nothing to report progress on without a valid job id.
		log.Error("dropping undecodable job", "error", err.Error(), "bytes", len(payload))
		return
	}

	jobLog := log.WithJobID(msg.JobID)
	orch := d.Orchestrator
	defer orch.Guard(msg.JobID)

	plan, err := dispatch.FromMessage(msg)
	if err != nil {
		orch.Tracker().Initialize(msg.JobID, nil)
		orch.Fail(msg.JobID, err)
		jobLog.Warn("rejected job", "error", err.Error())
		return
	}

	orch.Tracker().Initialize(plan.JobID, plan.Items)

	jobLog.Info("processing job", "entities", len(plan.EntityIDs), "mode", string(plan.Mode))
	startTime := time.Now()

	sum, err := orch.RunBatch(logger.ContextWithJobID(ctx, plan.JobID), plan)
	if err != nil {
		jobLog.Error("job failed",
			"error", err.Error(),
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return
	}

	jobLog.Info("job completed",
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
}
