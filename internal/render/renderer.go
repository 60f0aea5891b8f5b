// Package render turns one video entity into its target formats: it builds
// the master clip from the entity's scenes, then crops, scales and brands it
// once per format, uploading each result and recording its status.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adrender/internal/assets"
	"adrender/internal/geometry"
	"adrender/internal/media"
	"adrender/internal/models"
	"adrender/internal/pkg/errors"
	"adrender/internal/pkg/logger"
	"adrender/internal/storage"
	"adrender/internal/workspace"
)

// Store is the data access the renderer needs.
type Store interface {
	GetVideo(ctx context.Context, id string) (*models.VideoEntity, error)
	GetProjectSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error)
	UpsertRenderedFormat(ctx context.Context, rf models.RenderedFormat) error
	SetVideoStatus(ctx context.Context, id, status string) error
	SetThumbnail(ctx context.Context, id, url string) error
}

// Engine is implemented by *media.Engine.
type Engine interface {
	Concatenate(ctx context.Context, inputs []string, output string) error
	RenderFormat(ctx context.Context, master string, target geometry.Size, logo *media.LogoOverlay, output string) error
	Thumbnail(ctx context.Context, video string, output string, atSeconds float64) error
}

// Fetcher is implemented by *assets.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, dir, baseName string, want assets.Kind) (string, error)
}

// ThumbnailAt is the master clip offset used for the preview frame.
const ThumbnailAt = 1.0

// StatusWriteTimeout bounds each terminal status write.
const StatusWriteTimeout = 10 * time.Second

type Deps struct {
	Store         Store
	Engine        Engine
	Fetcher       Fetcher
	Storage       storage.Provider
	WorkspaceRoot string
	// LogoPadding applies when the project does not set one.
	LogoPadding int
	Log         *logger.Logger
}

type Renderer struct {
	store    Store
	engine   Engine
	fetcher  Fetcher
	sp       storage.Provider
	workRoot string
	padding  int
	log      *logger.Logger
}

func New(d Deps) *Renderer {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	padding := d.LogoPadding
	if padding <= 0 {
		padding = geometry.DefaultPadding
	}
	return &Renderer{
		store:    d.Store,
		engine:   d.Engine,
		fetcher:  d.Fetcher,
		sp:       d.Storage,
		workRoot: d.WorkspaceRoot,
		padding:  padding,
		log:      log.WithComponent("render"),
	}
}

type target struct {
	label string
	size  geometry.Size
}

// run is the state of one RenderAllFormats call.
type run struct {
	*Renderer
	video    *models.VideoEntity
	settings *models.ProjectSettings
	opts     Options
	result   *Result
	log      *logger.Logger

	logo    *media.LogoOverlay
	logoErr error
	logoSet bool
}

// RenderAllFormats renders every pending target format of entityID.
// Prerequisite and configuration problems abort the entity and are returned;
// a failing format is recorded as failed and its siblings still render.
func (r *Renderer) RenderAllFormats(ctx context.Context, entityID string, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = ModeMissing
	}
	ctx = logger.ContextWithEntityID(ctx, entityID)
	log := r.log.FromContext(ctx)
	result := newResult(entityID)

	// 1. Load the entity
	video, err := r.store.GetVideo(ctx, entityID)
	if err != nil {
		return result, err
	}

	// 2. Every scene must be finished
	if !video.ScenesReady() {
		return result, errors.Prerequisite("not all scenes are ready").WithField("video_id", entityID)
	}

	// 3. Target formats
	settings, err := r.store.GetProjectSettings(ctx, video.ProjectID)
	if err != nil {
		return result, err
	}
	targets, err := targetFormats(video, settings, opts.Formats)
	if err != nil {
		return result, err
	}
	if err := checkLogo(settings); err != nil {
		return result, err
	}

	pending := make([]target, 0, len(targets))
	for _, t := range targets {
		if opts.Mode == ModeMissing {
			if rf, ok := video.RenderedFor(t.label); ok && rf.Done() {
				result.Skipped = append(result.Skipped, t.label)
				continue
			}
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		log.Info("all formats already rendered", "skipped", len(result.Skipped))
		return result, nil
	}

	if err := r.store.SetVideoStatus(ctx, entityID, models.VideoProcessing); err != nil {
		return result, err
	}

	started := time.Now()
	x := &run{Renderer: r, video: video, settings: settings, opts: opts, result: result, log: log}

	// 4-7. Workspace lifetime covers downloads, master, formats and thumbnail
	err = workspace.Run(r.workRoot, log, func(ws *workspace.Workspace) error {
		return x.renderIn(ctx, ws, pending)
	})

	status := models.VideoCompleted
	if err != nil || len(result.Failed) > 0 {
		status = models.VideoFailed
	}
	wctx, cancel := settleContext(ctx)
	serr := r.store.SetVideoStatus(wctx, entityID, status)
	cancel()
	if serr != nil {
		log.LogError(ctx, "failed to update video status", serr, "status", status)
	}

	log.Info("entity rendered",
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"skipped", len(result.Skipped),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, err
}

func (x *run) renderIn(ctx context.Context, ws *workspace.Workspace, pending []target) error {
	// 5. Scenes in timeline order, then the master clip
	scenes := x.video.OrderedScenes()
	inputs := make([]string, 0, len(scenes))
	for i, s := range scenes {
		p, err := x.fetcher.Fetch(ctx, s.AnimationURL, ws.Dir(), fmt.Sprintf("scene-%03d", i), assets.KindVideo)
		if err != nil {
			err = errors.Wrap(err, "render.scenes", "scene download failed").WithField("scene_id", s.ID)
			x.failAll(ctx, pending, err)
			return err
		}
		inputs = append(inputs, p)
	}
	x.log.Debug("scenes downloaded", "count", len(inputs))

	master := ws.Path("master.mp4")
	if err := x.engine.Concatenate(ctx, inputs, master); err != nil {
		x.failAll(ctx, pending, err)
		return err
	}
	x.log.Debug("master clip built", "scenes", len(inputs))

	// 6. One format at a time
	for i, t := range pending {
		if ctx.Err() != nil {
			x.failAll(ctx, pending[i:], errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "render.format", "render canceled"))
			break
		}
		x.renderOne(ctx, ws, master, t)
	}

	if !x.opts.SkipThumbnail && ctx.Err() == nil {
		x.thumbnail(ctx, ws, master)
	}
	return nil
}

func (x *run) renderOne(ctx context.Context, ws *workspace.Workspace, master string, t target) {
	log := x.log.WithFormat(t.label)

	if err := x.upsert(ctx, t.label, models.FormatRendering, "", ""); err != nil {
		x.failFormat(ctx, t.label, err)
		return
	}

	logo, err := x.logoOverlay(ctx, ws)
	if err != nil {
		x.failFormat(ctx, t.label, err)
		return
	}

	out := ws.Path(t.label + ".mp4")
	if err := x.engine.RenderFormat(ctx, master, t.size, logo, out); err != nil {
		x.failFormat(ctx, t.label, err)
		return
	}

	key := FormatKey(x.video.BatchID, x.video.ID, t.label)
	stored, err := storage.UploadFile(ctx, x.sp, key, out, "video/mp4")
	if err != nil {
		x.failFormat(ctx, t.label, err)
		return
	}

	url := x.sp.PublicURL(stored.ObjectKey)
	if err := x.settle(ctx, t.label, models.FormatCompleted, url, ""); err != nil {
		x.failFormat(ctx, t.label, err)
		return
	}

	x.result.Succeeded = append(x.result.Succeeded, t.label)
	log.Info("format rendered", "key", key, "size", stored.Size)
	x.done(t.label, nil)
}

// logoOverlay downloads the project logo on first use; the outcome,
// including a failure, is reused by every later format of the run.
func (x *run) logoOverlay(ctx context.Context, ws *workspace.Workspace) (*media.LogoOverlay, error) {
	if x.logoSet {
		return x.logo, x.logoErr
	}
	x.logoSet = true

	cfg := x.settings.Logo
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil
	}

	p, err := x.fetcher.Fetch(ctx, cfg.URL, ws.Dir(), "logo", assets.KindImage)
	if err != nil {
		x.logoErr = errors.Wrap(err, "render.logo", "logo download failed")
		return nil, x.logoErr
	}

	padding := cfg.Padding
	if padding <= 0 {
		padding = x.padding
	}
	x.logo = &media.LogoOverlay{
		Path:     p,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Position: cfg.Position,
		Padding:  padding,
	}
	return x.logo, nil
}

func (x *run) thumbnail(ctx context.Context, ws *workspace.Workspace, master string) {
	out := ws.Path("thumbnail.jpg")
	if err := x.engine.Thumbnail(ctx, master, out, ThumbnailAt); err != nil {
		x.log.Warn("thumbnail skipped", "error", err.Error())
		return
	}
	stored, err := storage.UploadFile(ctx, x.sp, ThumbnailKey(x.video.BatchID, x.video.ID), out, "image/jpeg")
	if err != nil {
		x.log.Warn("thumbnail upload failed", "error", err.Error())
		return
	}
	url := x.sp.PublicURL(stored.ObjectKey)
	if err := x.store.SetThumbnail(ctx, x.video.ID, url); err != nil {
		x.log.Warn("thumbnail not saved", "error", err.Error())
		return
	}
	x.result.ThumbnailURL = url
}

func (x *run) upsert(ctx context.Context, format, status, url, msg string) error {
	return x.store.UpsertRenderedFormat(ctx, models.RenderedFormat{
		VideoID: x.video.ID,
		Format:  format,
		Status:  status,
		URL:     url,
		Error:   msg,
	})
}

// settle writes a terminal format status. It runs detached from ctx so a
// canceled render still leaves the row completed or failed.
func (x *run) settle(ctx context.Context, format, status, url, msg string) error {
	wctx, cancel := settleContext(ctx)
	defer cancel()
	return x.upsert(wctx, format, status, url, msg)
}

// settleContext keeps ctx values but drops its cancellation, bounded by
// StatusWriteTimeout.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), StatusWriteTimeout)
}

// failFormat records the format as failed. Encoder diagnostics go to the log
// only; the stored message is the short user-facing one.
func (x *run) failFormat(ctx context.Context, format string, cause error) {
	msg := errors.UserMessage(cause)

	args := []any{"code", string(errors.GetCode(cause)), "error", cause.Error()}
	if d := errors.Diagnostics(cause); d != "" {
		args = append(args, "diagnostics", d)
	}
	x.log.WithFormat(format).Error("format failed", args...)

	if err := x.settle(ctx, format, models.FormatFailed, "", msg); err != nil {
		x.log.LogError(ctx, "failed to record format failure", err, "format", format)
	}
	x.result.Failed = append(x.result.Failed, format)
	x.result.Errors[format] = msg
	x.done(format, cause)
}

func (x *run) failAll(ctx context.Context, pending []target, cause error) {
	for _, t := range pending {
		x.failFormat(ctx, t.label, cause)
	}
}

func (x *run) done(format string, err error) {
	if x.opts.OnFormatDone != nil {
		x.opts.OnFormatDone(format, err)
	}
}

// checkLogo rejects a configured logo the overlay cannot size.
func checkLogo(settings *models.ProjectSettings) error {
	if settings == nil || strings.TrimSpace(settings.Logo.URL) == "" {
		return nil
	}
	if l := settings.Logo; l.Width <= 0 || l.Height <= 0 {
		return errors.Configurationf("logo size %dx%d is invalid", l.Width, l.Height).
			WithField("project_id", settings.ProjectID)
	}
	return nil
}

// targetFormats picks the entity override, else the project defaults, then
// applies the optional restriction. Duplicates are dropped.
func targetFormats(video *models.VideoEntity, settings *models.ProjectSettings, only []string) ([]target, error) {
	formats := video.Formats
	if len(formats) == 0 && settings != nil {
		formats = settings.DefaultFormats
	}

	var allow map[string]bool
	if len(only) > 0 {
		allow = make(map[string]bool, len(only))
		for _, f := range only {
			allow[strings.TrimSpace(f)] = true
		}
	}

	seen := make(map[string]bool, len(formats))
	out := make([]target, 0, len(formats))
	for _, f := range formats {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] || (allow != nil && !allow[f]) {
			continue
		}
		size, err := media.ParseFormat(f)
		if err != nil {
			return nil, err
		}
		seen[f] = true
		out = append(out, target{label: f, size: size})
	}

	if len(out) == 0 {
		return nil, errors.Configuration("no target formats configured").WithField("video_id", video.ID)
	}
	return out, nil
}
