// Package config loads service settings from the environment, optionally
// layered over a TOML file named by ADRENDER_CONFIG. Environment variables
// always win over the file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"adrender/internal/media"
	"adrender/internal/pkg/errors"
)

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

// Duration is a time.Duration that decodes from TOML strings like "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Config struct {
	HTTPPort     string   `toml:"http_port"`
	DatabaseURL  string   `toml:"database_url"`
	RedisAddr    string   `toml:"redis_addr"`
	QueueName    string   `toml:"queue_name"`
	DispatchMode string   `toml:"dispatch_mode"`
	CORSOrigins  []string `toml:"cors_origins"`

	Log     LogConfig     `toml:"log"`
	Storage StorageConfig `toml:"storage"`
	Media   MediaConfig   `toml:"media"`
	Render  RenderConfig  `toml:"render"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	AddSource bool   `toml:"add_source"`
}

type StorageConfig struct {
	Provider        string   `toml:"provider"`
	LocalRoot       string   `toml:"local_root"`
	LocalBaseURL    string   `toml:"local_base_url"`
	GCSBucket       string   `toml:"gcs_bucket"`
	GCSCredentials  string   `toml:"gcs_credentials_file"`
	GDriveClientID  string   `toml:"gdrive_client_id"`
	GDriveSecret    string   `toml:"gdrive_client_secret"`
	GDriveRefresh   string   `toml:"gdrive_refresh_token"`
	GDriveFolderID  string   `toml:"gdrive_folder_id"`
	SignedURLExpiry Duration `toml:"signed_url_expiry"`
}

type MediaConfig struct {
	FFmpegPath       string   `toml:"ffmpeg_path"`
	FFprobePath      string   `toml:"ffprobe_path"`
	Preset           string   `toml:"preset"`
	CRF              int      `toml:"crf"`
	AudioBitrate     string   `toml:"audio_bitrate"`
	ConcatTimeout    Duration `toml:"concat_timeout"`
	RenderTimeout    Duration `toml:"render_timeout"`
	ProbeTimeout     Duration `toml:"probe_timeout"`
	ThumbnailTimeout Duration `toml:"thumbnail_timeout"`
}

type RenderConfig struct {
	WorkspaceRoot     string   `toml:"workspace_root"`
	Concurrency       int      `toml:"concurrency"`
	ProgressTTL       Duration `toml:"progress_ttl"`
	StaleWorkspaceAge Duration `toml:"stale_workspace_age"`
	DownloadRPS       float64  `toml:"download_rps"`
	DownloadBurst     int      `toml:"download_burst"`
	DownloadTimeout   Duration `toml:"download_timeout"`
	LogoPadding       int      `toml:"logo_padding"`
}

// Default returns the built-in settings.
func Default() Config {
	m := media.DefaultConfig()
	return Config{
		HTTPPort:     "8080",
		QueueName:    "adrender:render-jobs",
		DispatchMode: DispatchInline,
		CORSOrigins:  []string{"http://localhost:5173"},
		Log:          LogConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{
			Provider:        "localfs",
			LocalRoot:       "/data/storage",
			LocalBaseURL:    "http://localhost:8080/files",
			SignedURLExpiry: Duration{15 * time.Minute},
		},
		Media: MediaConfig{
			FFmpegPath:       m.FFmpegPath,
			FFprobePath:      m.FFprobePath,
			Preset:           m.Encode.Preset,
			CRF:              m.Encode.CRF,
			AudioBitrate:     m.Encode.AudioBitrate,
			ConcatTimeout:    Duration{m.ConcatTimeout},
			RenderTimeout:    Duration{m.RenderTimeout},
			ProbeTimeout:     Duration{m.ProbeTimeout},
			ThumbnailTimeout: Duration{m.ThumbnailTimeout},
		},
		Render: RenderConfig{
			WorkspaceRoot:     os.TempDir() + "/adrender",
			Concurrency:       3,
			ProgressTTL:       Duration{time.Hour},
			StaleWorkspaceAge: Duration{6 * time.Hour},
			DownloadRPS:       8,
			DownloadBurst:     4,
			DownloadTimeout:   Duration{5 * time.Minute},
			LogoPadding:       20,
		},
	}
}

// Load builds the configuration: defaults, then the optional TOML file named
// by ADRENDER_CONFIG, then environment variables. It does not validate.
func Load() (Config, error) {
	return LoadFile(os.Getenv("ADRENDER_CONFIG"))
}

// LoadFile is Load with an explicit overlay path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, errors.WrapWithCode(err, errors.CodeConfiguration, "config.load", "decode "+path)
		}
	}

	e := &envReader{}
	e.str(&cfg.HTTPPort, "HTTP_PORT")
	e.str(&cfg.DatabaseURL, "DATABASE_URL")
	e.str(&cfg.RedisAddr, "REDIS_ADDR")
	e.str(&cfg.QueueName, "JOB_QUEUE_NAME")
	e.str(&cfg.DispatchMode, "DISPATCH_MODE")
	e.csv(&cfg.CORSOrigins, "CORS_ALLOWED_ORIGINS")

	e.str(&cfg.Log.Level, "LOG_LEVEL")
	e.str(&cfg.Log.Format, "LOG_FORMAT")
	e.boolean(&cfg.Log.AddSource, "LOG_SOURCE")

	e.str(&cfg.Storage.Provider, "STORAGE_PROVIDER")
	e.str(&cfg.Storage.LocalRoot, "STORAGE_LOCAL_ROOT")
	e.str(&cfg.Storage.LocalBaseURL, "STORAGE_LOCAL_BASE_URL")
	e.str(&cfg.Storage.GCSBucket, "GCS_BUCKET")
	e.str(&cfg.Storage.GCSCredentials, "GCS_CREDENTIALS_FILE")
	e.str(&cfg.Storage.GDriveClientID, "GDRIVE_CLIENT_ID")
	e.str(&cfg.Storage.GDriveSecret, "GDRIVE_CLIENT_SECRET")
	e.str(&cfg.Storage.GDriveRefresh, "GDRIVE_REFRESH_TOKEN")
	e.str(&cfg.Storage.GDriveFolderID, "GDRIVE_FOLDER_ID")
	e.duration(&cfg.Storage.SignedURLExpiry, "SIGNED_URL_EXPIRY")

	e.str(&cfg.Media.FFmpegPath, "FFMPEG_PATH")
	e.str(&cfg.Media.FFprobePath, "FFPROBE_PATH")
	e.str(&cfg.Media.Preset, "ENCODE_PRESET")
	e.integer(&cfg.Media.CRF, "ENCODE_CRF")
	e.str(&cfg.Media.AudioBitrate, "ENCODE_AUDIO_BITRATE")
	e.duration(&cfg.Media.ConcatTimeout, "CONCAT_TIMEOUT")
	e.duration(&cfg.Media.RenderTimeout, "RENDER_TIMEOUT")
	e.duration(&cfg.Media.ProbeTimeout, "PROBE_TIMEOUT")
	e.duration(&cfg.Media.ThumbnailTimeout, "THUMBNAIL_TIMEOUT")

	e.str(&cfg.Render.WorkspaceRoot, "WORKSPACE_ROOT")
	e.integer(&cfg.Render.Concurrency, "BATCH_CONCURRENCY")
	e.duration(&cfg.Render.ProgressTTL, "PROGRESS_TTL")
	e.duration(&cfg.Render.StaleWorkspaceAge, "STALE_WORKSPACE_AGE")
	e.float(&cfg.Render.DownloadRPS, "DOWNLOAD_RPS")
	e.integer(&cfg.Render.DownloadBurst, "DOWNLOAD_BURST")
	e.duration(&cfg.Render.DownloadTimeout, "DOWNLOAD_TIMEOUT")
	e.integer(&cfg.Render.LogoPadding, "LOGO_PADDING")

	if e.err != nil {
		return Config{}, e.err
	}
	return cfg, nil
}

// Validate reports the first impossible setting as a configuration error.
func (c Config) Validate() error {
	switch {
	case c.Render.Concurrency < 1:
		return errors.Configurationf("batch concurrency must be at least 1, got %d", c.Render.Concurrency)
	case c.Render.LogoPadding < 0:
		return errors.Configuration("logo padding must not be negative")
	case c.Render.WorkspaceRoot == "":
		return errors.Configuration("workspace root is required")
	case c.DispatchMode != DispatchInline && c.DispatchMode != DispatchQueue:
		return errors.Configurationf("unknown dispatch mode %q", c.DispatchMode)
	case c.DispatchMode == DispatchQueue && c.RedisAddr == "":
		return errors.Configuration("queue dispatch requires REDIS_ADDR")
	}
	return c.Storage.validate()
}

func (s StorageConfig) validate() error {
	switch s.Provider {
	case "localfs":
		if s.LocalRoot == "" {
			return errors.Configuration("localfs storage requires STORAGE_LOCAL_ROOT")
		}
	case "gcs":
		if s.GCSBucket == "" {
			return errors.Configuration("gcs storage requires GCS_BUCKET")
		}
	case "gdrive":
		if s.GDriveClientID == "" || s.GDriveSecret == "" || s.GDriveRefresh == "" {
			return errors.Configuration("gdrive storage requires GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN")
		}
	default:
		return errors.Configurationf("unknown storage provider %q", s.Provider)
	}
	return nil
}

// MediaEngine converts the media section into engine settings.
func (c Config) MediaEngine() media.Config {
	return media.Config{
		FFmpegPath:       c.Media.FFmpegPath,
		FFprobePath:      c.Media.FFprobePath,
		ConcatTimeout:    c.Media.ConcatTimeout.Duration,
		RenderTimeout:    c.Media.RenderTimeout.Duration,
		ProbeTimeout:     c.Media.ProbeTimeout.Duration,
		ThumbnailTimeout: c.Media.ThumbnailTimeout.Duration,
		Encode: media.EncodeSettings{
			Preset:       c.Media.Preset,
			CRF:          c.Media.CRF,
			PixelFormat:  "yuv420p",
			AudioBitrate: c.Media.AudioBitrate,
		},
	}
}
