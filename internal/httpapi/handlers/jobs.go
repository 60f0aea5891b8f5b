package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"adrender/internal/batch"
	"adrender/internal/httpkit"
	"adrender/internal/pkg/errors"
	"adrender/internal/render"
)

// CreateRenderJobRequest caps entityIds at 1000; larger exports go by batchId.
type CreateRenderJobRequest struct {
	EntityIDs []string `json:"entityIds" validate:"required_without=BatchID,max=1000,dive,required"`
	BatchID   string   `json:"batchId"`
	Mode      string   `json:"mode" validate:"omitempty,oneof=all missing"`
}

type CreateRenderJobResponse struct {
	JobID string `json:"jobId"`
	Items int    `json:"items"`
	Mode  string `json:"mode"`
}

// PostRenderJob validates the request, hands the job to the dispatcher and
// answers with its id. No render work happens on the request path.
func (h *Handler) PostRenderJob(w http.ResponseWriter, r *http.Request) error {
	var req CreateRenderJobRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return errors.Validation("invalid json body")
	}
	if err := validateStruct(req); err != nil {
		return err
	}

	mode, err := render.ParseMode(req.Mode)
	if err != nil {
		return err
	}

	plan, err := h.planner.Plan(r.Context(), batch.Request{
		EntityIDs: req.EntityIDs,
		BatchID:   strings.TrimSpace(req.BatchID),
		Mode:      mode,
	})
	if err != nil {
		return err
	}
	return h.dispatch(w, r, plan)
}

// GetRenderJob returns the progress snapshot of a job.
func (h *Handler) GetRenderJob(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")
	if strings.TrimSpace(jobID) == "" {
		return errors.ValidationField("jobId", "jobId is required")
	}

	snap, ok, err := h.progress.Lookup(r.Context(), jobID)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.get", "progress store unavailable")
	}
	if !ok {
		return errors.NotFound("render job", jobID)
	}

	httpkit.WriteJSON(w, http.StatusOK, snap)
	return nil
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, plan batch.Plan) error {
	if err := h.dispatcher.Dispatch(r.Context(), plan); err != nil {
		return err
	}

	h.log.FromContext(r.Context()).Info("render job accepted",
		"job_id", plan.JobID,
		"items", len(plan.Items),
		"mode", string(plan.Mode),
		"dispatch", h.dispatcher.Mode(),
	)

	httpkit.WriteAccepted(w, "/render-jobs/"+plan.JobID, CreateRenderJobResponse{
		JobID: plan.JobID,
		Items: len(plan.Items),
		Mode:  string(plan.Mode),
	})
	return nil
}
