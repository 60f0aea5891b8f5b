// Package rendertest provides in-memory implementations of the render
// package's collaborators for tests.
package rendertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"adrender/internal/assets"
	"adrender/internal/geometry"
	"adrender/internal/media"
	"adrender/internal/models"
	"adrender/internal/pkg/errors"
)

// Store is a concurrency-safe in-memory video store.
type Store struct {
	mu       sync.Mutex
	videos   map[string]*models.VideoEntity
	projects map[string]*models.ProjectSettings
	rendered map[string]map[string]models.RenderedFormat
	statuses map[string][]string

	// RejectDoneContext makes writes fail on a done context, as pgx does.
	RejectDoneContext bool
}

func NewStore() *Store {
	return &Store{
		videos:   map[string]*models.VideoEntity{},
		projects: map[string]*models.ProjectSettings{},
		rendered: map[string]map[string]models.RenderedFormat{},
		statuses: map[string][]string{},
	}
}

func (s *Store) AddProject(p models.ProjectSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ProjectID] = &p
}

func (s *Store) AddVideo(v models.VideoEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Status == "" {
		v.Status = models.VideoPending
	}
	s.videos[v.ID] = &v
	if s.rendered[v.ID] == nil {
		s.rendered[v.ID] = map[string]models.RenderedFormat{}
	}
	for _, rf := range v.Rendered {
		rf.VideoID = v.ID
		s.rendered[v.ID][rf.Format] = rf
	}
}

func (s *Store) GetVideo(ctx context.Context, id string) (*models.VideoEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, errors.NotFound("video", id)
	}
	out := *v
	out.Scenes = append([]models.Scene(nil), v.Scenes...)
	out.Rendered = s.renderedLocked(id)
	return &out, nil
}

func (s *Store) GetProjectSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[projectID]; ok {
		out := *p
		return &out, nil
	}
	return &models.ProjectSettings{ProjectID: projectID, DefaultFormats: []string{}}, nil
}

func (s *Store) UpsertRenderedFormat(ctx context.Context, rf models.RenderedFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(ctx); err != nil {
		return err
	}
	if s.rendered[rf.VideoID] == nil {
		s.rendered[rf.VideoID] = map[string]models.RenderedFormat{}
	}
	now := time.Now().UTC()
	if prev, ok := s.rendered[rf.VideoID][rf.Format]; ok {
		rf.CreatedAt = prev.CreatedAt
	} else {
		rf.CreatedAt = now
	}
	rf.UpdatedAt = now
	s.rendered[rf.VideoID][rf.Format] = rf
	return nil
}

func (s *Store) SetVideoStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(ctx); err != nil {
		return err
	}
	v, ok := s.videos[id]
	if !ok {
		return errors.NotFound("video", id)
	}
	v.Status = status
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

func (s *Store) SetThumbnail(ctx context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(ctx); err != nil {
		return err
	}
	if v, ok := s.videos[id]; ok {
		v.ThumbnailURL = url
	}
	return nil
}

func (s *Store) ListRenderedFormats(ctx context.Context, videoID string) ([]models.RenderedFormat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderedLocked(videoID), nil
}

func (s *Store) ListVideoNames(ctx context.Context, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if v, ok := s.videos[id]; ok {
			out[id] = v.Name
		}
	}
	return out, nil
}

func (s *Store) ListVideoIDsByBatch(ctx context.Context, batchID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for id, v := range s.videos {
		if v.BatchID == batchID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Rendered returns the stored row for (videoID, format).
func (s *Store) Rendered(videoID, format string) (models.RenderedFormat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok := s.rendered[videoID][format]
	return rf, ok
}

// Status returns the current aggregate status of videoID.
func (s *Store) Status(videoID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.videos[videoID]; ok {
		return v.Status
	}
	return ""
}

// Video returns a copy of the stored entity.
func (s *Store) Video(videoID string) models.VideoEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.videos[videoID]; ok {
		return *v
	}
	return models.VideoEntity{}
}

func (s *Store) writable(ctx context.Context) error {
	if s.RejectDoneContext {
		return ctx.Err()
	}
	return nil
}

func (s *Store) renderedLocked(videoID string) []models.RenderedFormat {
	out := make([]models.RenderedFormat, 0, len(s.rendered[videoID]))
	for _, rf := range s.rendered[videoID] {
		out = append(out, rf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Format < out[j].Format })
	return out
}

// Fetcher writes each URL as the content of the downloaded file.
type Fetcher struct {
	mu   sync.Mutex
	URLs []string
	// Fail maps URLs to the error returned for them.
	Fail map[string]error
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir, baseName string, want assets.Kind) (string, error) {
	f.mu.Lock()
	f.URLs = append(f.URLs, rawURL)
	err := f.Fail[rawURL]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}

	ext := ".mp4"
	if want == assets.KindImage {
		ext = ".png"
	}
	p := filepath.Join(dir, baseName+ext)
	if err := os.WriteFile(p, []byte(rawURL), 0o600); err != nil {
		return "", errors.Storage("download", rawURL, err)
	}
	return p, nil
}

// Calls returns how many downloads were requested.
func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.URLs)
}

// Engine joins input file contents with "|" for concatenation and copies the
// master for each format, so outputs reveal scene order.
type Engine struct {
	mu         sync.Mutex
	Concats    int
	Renders    []string
	Thumbnails int
	// FailFormats maps a format label to the error its render returns.
	FailFormats map[string]error
	ConcatErr   error
	LastLogo    *media.LogoOverlay
	// OnRender runs at the start of each RenderFormat call.
	OnRender func(label string)
}

func (e *Engine) Concatenate(ctx context.Context, inputs []string, output string) error {
	e.mu.Lock()
	e.Concats++
	err := e.ConcatErr
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.Configuration("concatenate needs at least one input")
	}

	parts := make([]string, 0, len(inputs))
	for _, in := range inputs {
		b, err := os.ReadFile(in)
		if err != nil {
			return errors.Render("", "", err)
		}
		parts = append(parts, string(b))
	}
	return os.WriteFile(output, []byte(strings.Join(parts, "|")), 0o600)
}

func (e *Engine) RenderFormat(ctx context.Context, master string, t geometry.Size, logo *media.LogoOverlay, output string) error {
	label := media.FormatLabel(t)
	e.mu.Lock()
	e.Renders = append(e.Renders, label)
	e.LastLogo = logo
	err := e.FailFormats[label]
	hook := e.OnRender
	e.mu.Unlock()
	if hook != nil {
		hook(label)
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "render.format", "render canceled")
	}
	b, err := os.ReadFile(master)
	if err != nil {
		return errors.Render(label, "", err)
	}
	return os.WriteFile(output, b, 0o600)
}

func (e *Engine) Thumbnail(ctx context.Context, video, output string, at float64) error {
	e.mu.Lock()
	e.Thumbnails++
	e.mu.Unlock()
	return os.WriteFile(output, []byte(fmt.Sprintf("thumb@%.1f", at)), 0o600)
}

// RenderCount returns the number of RenderFormat calls.
func (e *Engine) RenderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Renders)
}

// CompletedScenes builds n ready scenes with URLs base/scene-<i>.mp4.
func CompletedScenes(base string, n int) []models.Scene {
	out := make([]models.Scene, n)
	for i := range out {
		out[i] = models.Scene{
			ID:           fmt.Sprintf("s%d", i+1),
			Order:        i + 1,
			AnimationURL: fmt.Sprintf("%s/scene-%d.mp4", base, i+1),
			Status:       models.SceneCompleted,
		}
	}
	return out
}
