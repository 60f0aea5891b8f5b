package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adrender/internal/httpkit"
	"adrender/internal/models"
	apperrors "adrender/internal/pkg/errors"
)

// VideoRepository reads videos with their scenes and rendered formats, and
// records render outcomes.
type VideoRepository struct {
	db *pgxpool.Pool
}

func NewVideoRepository(db *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) GetVideo(ctx context.Context, id string) (*models.VideoEntity, error) {
	var v models.VideoEntity
	err := r.db.QueryRow(ctx, `
		SELECT v.id, v.batch_id, b.project_id, v.name, v.formats, v.status, COALESCE(v.thumbnail_url, '')
		FROM videos v
		JOIN batches b ON b.id = v.batch_id
		WHERE v.id = $1
	`, id).Scan(&v.ID, &v.BatchID, &v.ProjectID, &v.Name, &v.Formats, &v.Status, &v.ThumbnailURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("video", id)
		}
		return nil, apperrors.Wrap(err, "videos.get", "load video")
	}

	if v.Scenes, err = r.scenes(ctx, id); err != nil {
		return nil, err
	}
	if v.Rendered, err = r.ListRenderedFormats(ctx, id); err != nil {
		return nil, err
	}
	if v.Formats == nil {
		v.Formats = []string{}
	}
	return &v, nil
}

func (r *VideoRepository) scenes(ctx context.Context, videoID string) ([]models.Scene, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_index, COALESCE(animation_url, ''), status
		FROM scenes
		WHERE video_id = $1
		ORDER BY order_index ASC
	`, videoID)
	if err != nil {
		return nil, apperrors.Wrap(err, "scenes.list", "list scenes")
	}
	defer rows.Close()

	out := []models.Scene{}
	for rows.Next() {
		var s models.Scene
		if err := rows.Scan(&s.ID, &s.Order, &s.AnimationURL, &s.Status); err != nil {
			return nil, apperrors.Wrap(err, "scenes.list", "scan scene")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "scenes.list", "iterate scenes")
	}
	return out, nil
}

// ListRenderedFormats returns an empty slice for a video with no renders.
func (r *VideoRepository) ListRenderedFormats(ctx context.Context, videoID string) ([]models.RenderedFormat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT video_id, format, status, COALESCE(url, ''), COALESCE(error, ''), created_at, updated_at
		FROM rendered_formats
		WHERE video_id = $1
		ORDER BY format ASC
	`, videoID)
	if err != nil {
		if httpkit.IsUndefinedTable(err) {
			return []models.RenderedFormat{}, nil
		}
		return nil, apperrors.Wrap(err, "rendered_formats.list", "list rendered formats")
	}
	defer rows.Close()

	out := []models.RenderedFormat{}
	for rows.Next() {
		var rf models.RenderedFormat
		if err := rows.Scan(&rf.VideoID, &rf.Format, &rf.Status, &rf.URL, &rf.Error, &rf.CreatedAt, &rf.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(err, "rendered_formats.list", "scan rendered format")
		}
		out = append(out, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "rendered_formats.list", "iterate rendered formats")
	}
	return out, nil
}

// GetProjectSettings returns zero-valued settings when the project row is missing.
func (r *VideoRepository) GetProjectSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	ps := models.ProjectSettings{ProjectID: projectID, DefaultFormats: []string{}}
	var position string
	err := r.db.QueryRow(ctx, `
		SELECT logo_url, logo_position, logo_width, logo_height, logo_padding, default_formats
		FROM projects
		WHERE id = $1
	`, projectID).Scan(&ps.Logo.URL, &position, &ps.Logo.Width, &ps.Logo.Height, &ps.Logo.Padding, &ps.DefaultFormats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &ps, nil
		}
		return nil, apperrors.Wrap(err, "projects.get", "load project settings")
	}
	ps.Logo.Position = models.LogoPosition(position)
	if ps.DefaultFormats == nil {
		ps.DefaultFormats = []string{}
	}
	return &ps, nil
}

// UpsertRenderedFormat creates or updates the row for (video, format). Empty
// url or error values clear the column.
func (r *VideoRepository) UpsertRenderedFormat(ctx context.Context, rf models.RenderedFormat) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rendered_formats (video_id, format, status, url, error)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (video_id, format) DO UPDATE
		SET status = EXCLUDED.status,
		    url = EXCLUDED.url,
		    error = EXCLUDED.error,
		    updated_at = now()
	`, rf.VideoID, rf.Format, rf.Status, rf.URL, rf.Error)
	if err != nil {
		return apperrors.Wrap(err, "rendered_formats.upsert", "upsert rendered format")
	}
	return nil
}

func (r *VideoRepository) SetVideoStatus(ctx context.Context, id, status string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE videos SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return apperrors.Wrap(err, "videos.set_status", "update video status")
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NotFound("video", id)
	}
	return nil
}

func (r *VideoRepository) SetThumbnail(ctx context.Context, id, url string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE videos SET thumbnail_url = $2, updated_at = now() WHERE id = $1
	`, id, url)
	if err != nil {
		return apperrors.Wrap(err, "videos.set_thumbnail", "update thumbnail")
	}
	return nil
}

// ListVideoNames maps ids to display names; unknown ids are absent from the map.
func (r *VideoRepository) ListVideoNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, name FROM videos WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, apperrors.Wrap(err, "videos.names", "list video names")
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, apperrors.Wrap(err, "videos.names", "scan video name")
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (r *VideoRepository) ListVideoIDsByBatch(ctx context.Context, batchID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM videos WHERE batch_id = $1 ORDER BY created_at ASC, id ASC
	`, batchID)
	if err != nil {
		return nil, apperrors.Wrap(err, "videos.by_batch", "list batch videos")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "videos.by_batch", "scan video id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Ping checks the pool for the deep health probe.
func (r *VideoRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
