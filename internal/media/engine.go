// Package media drives ffmpeg and ffprobe: concatenating scene clips,
// rendering one aspect-ratio output with a logo overlay, probing and
// thumbnail extraction. Each call runs under its own wall-clock timeout.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"adrender/internal/geometry"
	"adrender/internal/models"
	"adrender/internal/pkg/errors"
	"adrender/internal/pkg/logger"
)

// ThumbnailWidth is the preview width; height keeps the aspect ratio.
const ThumbnailWidth = 480

// EncodeSettings are the fixed H.264/AAC output parameters.
type EncodeSettings struct {
	Preset       string
	CRF          int
	PixelFormat  string
	AudioBitrate string
}

// Config configures binaries, timeouts and encoding.
type Config struct {
	FFmpegPath       string
	FFprobePath      string
	ConcatTimeout    time.Duration
	RenderTimeout    time.Duration
	ProbeTimeout     time.Duration
	ThumbnailTimeout time.Duration
	Encode           EncodeSettings
}

// DefaultConfig returns settings suitable for short ad clips.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		ConcatTimeout:    10 * time.Minute,
		RenderTimeout:    15 * time.Minute,
		ProbeTimeout:     30 * time.Second,
		ThumbnailTimeout: time.Minute,
		Encode: EncodeSettings{
			Preset:       "medium",
			CRF:          20,
			PixelFormat:  "yuv420p",
			AudioBitrate: "128k",
		},
	}
}

// LogoOverlay is a local logo image and how to place it.
type LogoOverlay struct {
	Path     string
	Width    int
	Height   int
	Position models.LogoPosition
	Padding  int
}

// Engine runs media commands through a Runner.
type Engine struct {
	cfg    Config
	runner Runner
	log    *logger.Logger
}

// New creates an Engine. A nil runner executes real binaries.
func New(cfg Config, runner Runner, log *logger.Logger) *Engine {
	def := DefaultConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.Encode == (EncodeSettings{}) {
		cfg.Encode = def.Encode
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Engine{cfg: cfg, runner: runner, log: log.WithComponent("media")}
}

// Check verifies that both binaries can be resolved.
func Check(cfg Config) error {
	for _, bin := range []string{cfg.FFmpegPath, cfg.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return errors.WrapWithCode(err, errors.CodeConfiguration, "media.check", "binary not found: "+bin)
		}
	}
	return nil
}

// Concatenate joins inputs in order into output. Each clip is scaled and
// padded onto the first clip's frame, resampled to a common frame rate, pixel
// format and stereo audio layout, then joined with the concat filter, so clips
// from different sources can be mixed. A silent clip gets generated silence
// when any other clip carries audio.
func (e *Engine) Concatenate(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.Render("", "", fmt.Errorf("concatenate: no inputs"))
	}

	clips := make([]*Metadata, len(inputs))
	withAudio := false
	for i, in := range inputs {
		md, err := e.Probe(ctx, in)
		if err != nil {
			return errors.Wrapf(err, "media.concat", "probe clip %d", i+1)
		}
		clips[i] = md
		withAudio = withAudio || md.HasAudio()
	}

	graph, err := concatGraph(clips, evenSize(clips[0].Dimensions()), withAudio, e.cfg.Encode.PixelFormat)
	if err != nil {
		return err
	}

	enc := e.cfg.Encode
	args := []string{"-y", "-hide_banner"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-filter_complex", graph, "-map", "[v]")
	if withAudio {
		args = append(args, "-map", "[a]", "-c:a", "aac", "-b:a", enc.AudioBitrate)
	} else {
		args = append(args, "-an")
	}
	args = append(args,
		"-c:v", "libx264", "-preset", enc.Preset, "-crf", strconv.Itoa(enc.CRF), "-pix_fmt", enc.PixelFormat,
		output,
	)
	if _, err := e.run(ctx, e.cfg.ConcatTimeout, e.cfg.FFmpegPath, "concat", "", args...); err != nil {
		_ = os.Remove(output)
		return err
	}
	return nil
}

// RenderFormat crops master to the target aspect ratio, scales it, overlays
// logo when set and writes a fast-start MP4 to output. On failure output is
// removed.
func (e *Engine) RenderFormat(ctx context.Context, master string, target geometry.Size, logo *LogoOverlay, output string) error {
	label := FormatLabel(target)

	md, err := e.Probe(ctx, master)
	if err != nil {
		return errors.Wrapf(err, "media.render", "probe master for %s", label)
	}

	crop, err := geometry.CropFor(md.Dimensions(), target)
	if err != nil {
		return err
	}

	var placement *logoPlacement
	if logo != nil {
		if logo.Width <= 0 || logo.Height <= 0 {
			return errors.Configurationf("logo size %dx%d is invalid", logo.Width, logo.Height)
		}
		pos, known := geometry.LogoPositionFor(logo.Position, geometry.Size{Width: logo.Width, Height: logo.Height}, target, logo.Padding)
		if !known {
			e.log.Warn("unknown logo position, using top-left", "position", string(logo.Position), "format", label)
		}
		placement = &logoPlacement{path: logo.Path, width: logo.Width, height: logo.Height, at: pos}
	}

	args := e.renderArgs(master, filterGraph(crop, target, placement), placement, md.HasAudio(), output)
	if _, err := e.run(ctx, e.cfg.RenderTimeout, e.cfg.FFmpegPath, "render", label, args...); err != nil {
		_ = os.Remove(output)
		return err
	}
	return nil
}

// Thumbnail extracts one frame at atSeconds as a preview image.
func (e *Engine) Thumbnail(ctx context.Context, video string, output string, atSeconds float64) error {
	if atSeconds < 0 {
		atSeconds = 0
	}
	args := []string{
		"-y", "-hide_banner",
		"-ss", strconv.FormatFloat(atSeconds, 'f', 3, 64),
		"-i", video,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", ThumbnailWidth),
		"-q:v", "3",
		output,
	}
	if _, err := e.run(ctx, e.cfg.ThumbnailTimeout, e.cfg.FFmpegPath, "thumbnail", "", args...); err != nil {
		_ = os.Remove(output)
		return err
	}
	return nil
}

type logoPlacement struct {
	path   string
	width  int
	height int
	at     geometry.Point
}

func filterGraph(crop geometry.Crop, target geometry.Size, logo *logoPlacement) string {
	base := fmt.Sprintf("[0:v]crop=%d:%d:%d:%d,scale=%d:%d:flags=lanczos,setsar=1",
		crop.Width, crop.Height, crop.X, crop.Y, target.Width, target.Height)
	if logo == nil {
		return base + "[out]"
	}
	return fmt.Sprintf("%s[base];[1:v]scale=%d:%d[logo];[base][logo]overlay=%d:%d[out]",
		base, logo.width, logo.height, logo.at.X, logo.at.Y)
}

func (e *Engine) renderArgs(master, graph string, logo *logoPlacement, hasAudio bool, output string) []string {
	enc := e.cfg.Encode
	args := []string{"-y", "-hide_banner", "-i", master}
	if logo != nil {
		args = append(args, "-i", logo.path)
	}
	args = append(args, "-filter_complex", graph, "-map", "[out]")
	if hasAudio {
		args = append(args, "-map", "0:a:0", "-c:a", "aac", "-b:a", enc.AudioBitrate)
	} else {
		args = append(args, "-an")
	}
	return append(args,
		"-c:v", "libx264", "-preset", enc.Preset, "-crf", strconv.Itoa(enc.CRF), "-pix_fmt", enc.PixelFormat,
		"-movflags", "+faststart",
		output,
	)
}

// Master clip normalisation targets.
const (
	masterFPS        = 30
	masterSampleRate = 48000
)

// concatGraph builds one normalisation chain per clip feeding a concat
// filter whose outputs are [v] and, with audio, [a].
func concatGraph(clips []*Metadata, canvas geometry.Size, withAudio bool, pixFmt string) (string, error) {
	parts := make([]string, 0, 2*len(clips)+1)
	var labels strings.Builder

	for i, md := range clips {
		parts = append(parts, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d,format=%s[v%d]",
			i, canvas.Width, canvas.Height, canvas.Width, canvas.Height, masterFPS, pixFmt, i))
		fmt.Fprintf(&labels, "[v%d]", i)
		if !withAudio {
			continue
		}

		dur := clipDuration(md)
		switch {
		case md.HasAudio() && dur > 0:
			parts = append(parts, fmt.Sprintf("[%d:a:0]aresample=%d,aformat=channel_layouts=stereo,apad,atrim=duration=%s[a%d]",
				i, masterSampleRate, seconds(dur), i))
		case md.HasAudio():
			parts = append(parts, fmt.Sprintf("[%d:a:0]aresample=%d,aformat=channel_layouts=stereo[a%d]", i, masterSampleRate, i))
		case dur > 0:
			parts = append(parts, fmt.Sprintf("anullsrc=r=%d:cl=stereo,atrim=duration=%s[a%d]", masterSampleRate, seconds(dur), i))
		default:
			return "", errors.Render("", "", fmt.Errorf("clip %d has no audio and no known duration", i+1))
		}
		fmt.Fprintf(&labels, "[a%d]", i)
	}

	if withAudio {
		parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[v][a]", labels.String(), len(clips)))
	} else {
		parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[v]", labels.String(), len(clips)))
	}
	return strings.Join(parts, ";"), nil
}

// clipDuration prefers the container duration, then the video stream's.
func clipDuration(md *Metadata) float64 {
	if d := md.DurationSeconds(); d > 0 {
		return d
	}
	if v, ok := md.VideoStream(); ok {
		if d, err := strconv.ParseFloat(strings.TrimSpace(v.Duration), 64); err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// evenSize rounds both sides down to even values, as yuv420p requires.
func evenSize(s geometry.Size) geometry.Size {
	return geometry.Size{Width: s.Width &^ 1, Height: s.Height &^ 1}
}

func seconds(d float64) string { return strconv.FormatFloat(d, 'f', 3, 64) }

// run executes bin under timeout. Deadline expiry becomes a Timeout error and
// any other failure a Render error; both carry the stderr tail as diagnostics.
func (e *Engine) run(ctx context.Context, timeout time.Duration, bin, op, format string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, tail, err := e.runner.Run(ctx, bin, args...)
	elapsed := time.Since(start).Milliseconds()
	if err == nil {
		e.log.Debug("media command finished", "op", op, "format", format, "duration_ms", elapsed)
		return out, nil
	}

	e.log.Warn("media command failed",
		"op", op,
		"format", format,
		"duration_ms", elapsed,
		"stderr_tail", truncate(tail, 512),
	)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		name := op
		if format != "" {
			name += " " + format
		}
		te := errors.Timeout(name)
		if tail != "" {
			te.WithField(errors.FieldDiagnostics, tail)
		}
		return nil, te
	}

	re := errors.Render(format, tail, err)
	re.Op = "media." + op
	return nil, re
}
