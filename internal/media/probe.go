package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"adrender/internal/geometry"
	"adrender/internal/pkg/errors"
)

// Metadata is the parsed ffprobe output for one file.
type Metadata struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// VideoStream returns the first video stream.
func (m *Metadata) VideoStream() (Stream, bool) {
	for _, s := range m.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s, true
		}
	}
	return Stream{}, false
}

// HasAudio reports whether any audio stream is present.
func (m *Metadata) HasAudio() bool {
	for _, s := range m.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			return true
		}
	}
	return false
}

// Dimensions returns the primary video stream's size.
func (m *Metadata) Dimensions() geometry.Size {
	v, _ := m.VideoStream()
	return geometry.Size{Width: v.Width, Height: v.Height}
}

// DurationSeconds returns the container duration, or 0 when unavailable.
func (m *Metadata) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(m.Format.Duration), 64)
	if err != nil {
		return 0
	}
	return d
}

// Probe reads stream metadata of path. A file without a measurable video
// stream is a render error.
func (e *Engine) Probe(ctx context.Context, path string) (*Metadata, error) {
	out, err := e.run(ctx, e.cfg.ProbeTimeout, e.cfg.FFprobePath, "probe", "",
		"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return nil, err
	}

	var md Metadata
	if err := json.Unmarshal(out, &md); err != nil {
		return nil, errors.Render("", "", fmt.Errorf("parse ffprobe output: %w", err))
	}
	v, ok := md.VideoStream()
	if !ok || v.Width <= 0 || v.Height <= 0 {
		return nil, errors.Render("", "", fmt.Errorf("no video stream in %s", path))
	}
	return &md, nil
}
