package handlers

import (
	"context"
	"net/http"
	"time"

	"adrender/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true every dependency is probed and
// the status turns "degraded" when one fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "adrender-api",
		"version": h.version,
	}
	if h.dispatcher != nil {
		health["dispatch"] = h.dispatcher.Mode()
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, c := range checks {
			if c["status"] != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := make(map[string]map[string]any, len(h.checks)+1)
	for _, c := range h.checks {
		checks[c.Name] = runCheck(ctx, c)
	}
	checks["storage"] = map[string]any{"status": "ok", "provider": h.provider}
	return checks
}

func runCheck(ctx context.Context, c Check) map[string]any {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	result := map[string]any{"status": "ok"}
	extra, err := c.Probe(checkCtx)
	if err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	for k, v := range extra {
		result[k] = v
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
