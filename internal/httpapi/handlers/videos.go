package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"adrender/internal/batch"
	"adrender/internal/httpkit"
	"adrender/internal/models"
	"adrender/internal/pkg/errors"
	"adrender/internal/render"
)

type RenderVideoRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=all missing"`
}

type VideoFormatsResponse struct {
	VideoID      string                  `json:"videoId"`
	Status       string                  `json:"status"`
	ThumbnailURL string                  `json:"thumbnailUrl,omitempty"`
	Formats      []models.RenderedFormat `json:"formats"`
}

// PostVideoRender starts a one-entity job. Unlike a batch, a video whose
// scenes are not ready is rejected up front.
func (h *Handler) PostVideoRender(w http.ResponseWriter, r *http.Request) error {
	videoID := strings.TrimSpace(chi.URLParam(r, "videoId"))
	if videoID == "" {
		return errors.ValidationField("videoId", "videoId is required")
	}

	var req RenderVideoRequest
	if r.ContentLength != 0 {
		if err := httpkit.DecodeJSON(w, r, &req); err != nil {
			return errors.Validation("invalid json body")
		}
	}
	if err := validateStruct(req); err != nil {
		return err
	}
	mode, err := render.ParseMode(req.Mode)
	if err != nil {
		return err
	}

	video, err := h.store.GetVideo(r.Context(), videoID)
	if err != nil {
		return err
	}
	if !video.ScenesReady() {
		return errors.Prerequisite("not all scenes are ready").WithField("video_id", videoID)
	}

	plan, err := h.planner.Plan(r.Context(), batch.Request{EntityIDs: []string{videoID}, Mode: mode})
	if err != nil {
		return err
	}
	return h.dispatch(w, r, plan)
}

// GetVideoFormats lists the rendered format rows of a video.
func (h *Handler) GetVideoFormats(w http.ResponseWriter, r *http.Request) error {
	videoID := strings.TrimSpace(chi.URLParam(r, "videoId"))

	video, err := h.store.GetVideo(r.Context(), videoID)
	if err != nil {
		return err
	}
	formats, err := h.store.ListRenderedFormats(r.Context(), videoID)
	if err != nil {
		return errors.Wrap(err, "videos.formats", "list rendered formats")
	}
	if formats == nil {
		formats = []models.RenderedFormat{}
	}

	httpkit.WriteJSON(w, http.StatusOK, VideoFormatsResponse{
		VideoID:      video.ID,
		Status:       video.Status,
		ThumbnailURL: video.ThumbnailURL,
		Formats:      formats,
	})
	return nil
}
