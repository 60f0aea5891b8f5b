package batch

import (
	"context"
	"encoding/json"
	"time"

	"adrender/internal/models"
	"adrender/internal/progress"
	"adrender/internal/render"
	"adrender/internal/storage"
)

// Manifest lists the outputs of a job. It is what the job's download URL serves.
type Manifest struct {
	JobID       string         `json:"jobId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Items       []ManifestItem `json:"items"`
}

type ManifestItem struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Status       string           `json:"status"`
	Error        string           `json:"error,omitempty"`
	ThumbnailURL string           `json:"thumbnailUrl,omitempty"`
	Formats      []ManifestFormat `json:"formats"`
}

type ManifestFormat struct {
	Format string `json:"format"`
	URL    string `json:"url"`
}

func (o *Orchestrator) packageManifest(ctx context.Context, p Plan, s *Summary) (string, error) {
	names := make(map[string]string, len(p.Items))
	for _, it := range p.Items {
		names[it.ID] = it.Name
	}

	m := Manifest{JobID: p.JobID, GeneratedAt: time.Now().UTC(), Items: make([]ManifestItem, 0, len(s.Items))}
	for _, out := range s.Items {
		item := ManifestItem{ID: out.ID, Name: names[out.ID], Status: out.Status, Error: out.Error, Formats: []ManifestFormat{}}
		if out.Status != progress.ItemSkipped {
			if v, err := o.store.GetVideo(ctx, out.ID); err == nil {
				item.ThumbnailURL = v.ThumbnailURL
				item.Formats = completedFormats(v.Rendered)
			}
		}
		m.Items = append(m.Items, item)
	}

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	stored, err := storage.UploadBuffer(ctx, o.sp, render.ManifestKey(p.JobID), body, "application/json")
	if err != nil {
		return "", err
	}
	return o.sp.PublicURL(stored.ObjectKey), nil
}

func completedFormats(rows []models.RenderedFormat) []ManifestFormat {
	out := []ManifestFormat{}
	for _, rf := range rows {
		if rf.Done() {
			out = append(out, ManifestFormat{Format: rf.Format, URL: rf.URL})
		}
	}
	return out
}
