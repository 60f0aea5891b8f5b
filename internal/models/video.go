package models

import (
	"sort"
	"time"
)

// Video entity aggregate statuses.
const (
	VideoPending    = "pending"
	VideoProcessing = "processing"
	VideoCompleted  = "completed"
	VideoFailed     = "failed"
)

// Rendered format statuses.
const (
	FormatPending   = "pending"
	FormatRendering = "rendering"
	FormatCompleted = "completed"
	FormatFailed    = "failed"
)

// SceneCompleted is the only scene status the renderer accepts.
const SceneCompleted = "completed"

// VideoEntity is one output video made of ordered scenes.
type VideoEntity struct {
	ID           string           `json:"id"`
	BatchID      string           `json:"batch_id"`
	ProjectID    string           `json:"project_id"`
	Name         string           `json:"name,omitempty"`
	Formats      []string         `json:"formats"`
	Status       string           `json:"status"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
	Scenes       []Scene          `json:"scenes"`
	Rendered     []RenderedFormat `json:"rendered_formats"`
}

// Scene is read-only for the renderer; an external stage fills AnimationURL.
type Scene struct {
	ID           string `json:"id"`
	Order        int    `json:"order"`
	AnimationURL string `json:"animation_url,omitempty"`
	Status       string `json:"status"`
}

// RenderedFormat is the output of one (entity, format) pair.
type RenderedFormat struct {
	VideoID   string    `json:"video_id"`
	Format    string    `json:"format"`
	Status    string    `json:"status"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ready reports whether the scene can be used in a master clip.
func (s Scene) Ready() bool {
	return s.Status == SceneCompleted && s.AnimationURL != ""
}

// ScenesReady reports whether the entity has scenes and all of them are ready.
func (v *VideoEntity) ScenesReady() bool {
	if len(v.Scenes) == 0 {
		return false
	}
	for _, s := range v.Scenes {
		if !s.Ready() {
			return false
		}
	}
	return true
}

// OrderedScenes returns a copy of the scenes sorted by ascending Order.
func (v *VideoEntity) OrderedScenes() []Scene {
	out := make([]Scene, len(v.Scenes))
	copy(out, v.Scenes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// RenderedFor returns the stored row for format, if any.
func (v *VideoEntity) RenderedFor(format string) (RenderedFormat, bool) {
	for _, rf := range v.Rendered {
		if rf.Format == format {
			return rf, true
		}
	}
	return RenderedFormat{}, false
}

// Done reports whether the format already has a usable output.
func (rf RenderedFormat) Done() bool {
	return rf.Status == FormatCompleted && rf.URL != ""
}
