package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"adrender/internal/httpapi/handlers"
	"adrender/internal/httpkit"
	"adrender/internal/pkg/logger"
	"adrender/internal/pkg/middleware"
)

type Deps struct {
	Handlers    handlers.Deps
	CORSOrigins []string
	// Files serves stored objects under /files when set (localfs only).
	Files http.Handler
	// RequestTimeout bounds every request context. Zero means 30s.
	RequestTimeout time.Duration
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log, "/health", "/render-jobs/"))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))
	r.Use(middleware.Timeout(timeout))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(h.Log(), fn)
	}

	r.Get("/health", h.Health)

	r.Post("/render-jobs", wrap(h.PostRenderJob))
	r.Get("/render-jobs/{jobId}", wrap(h.GetRenderJob))

	r.Post("/videos/{videoId}/render", wrap(h.PostVideoRender))
	r.Get("/videos/{videoId}/formats", wrap(h.GetVideoFormats))

	if d.Files != nil {
		r.Handle("/files/*", http.StripPrefix("/files", d.Files))
	}

	return r
}
