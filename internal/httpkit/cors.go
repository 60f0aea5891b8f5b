package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// cors holds the header values computed once from CORSOptions.
type cors struct {
	anyOrigin   bool
	origins     map[string]struct{}
	methods     string
	headers     string
	exposed     string
	maxAge      string
	credentials bool
}

func newCORS(opt CORSOptions) *cors {
	if len(opt.AllowedMethods) == 0 {
		opt.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(opt.AllowedHeaders) == 0 {
		opt.AllowedHeaders = []string{"Content-Type", "Authorization", "Accept", "X-Request-ID"}
	}
	if opt.MaxAgeSeconds <= 0 {
		opt.MaxAgeSeconds = 600
	}

	c := &cors{
		origins:     make(map[string]struct{}, len(opt.AllowedOrigins)),
		methods:     strings.Join(opt.AllowedMethods, ", "),
		headers:     strings.Join(opt.AllowedHeaders, ", "),
		exposed:     strings.Join(opt.ExposedHeaders, ", "),
		maxAge:      strconv.Itoa(opt.MaxAgeSeconds),
		credentials: opt.AllowCredentials,
	}
	for _, o := range opt.AllowedOrigins {
		switch o = strings.TrimRight(strings.TrimSpace(o), "/"); o {
		case "":
		case "*":
			c.anyOrigin = true
		default:
			c.origins[o] = struct{}{}
		}
	}
	return c
}

func (c *cors) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if c.anyOrigin {
		return true
	}
	_, ok := c.origins[origin]
	return ok
}

// CORS reflects allowed origins and answers preflight requests with 204.
// A preflight is an OPTIONS request carrying Access-Control-Request-Method;
// other OPTIONS requests reach the router.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	c := newCORS(opt)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			h.Add("Vary", "Origin")

			if c.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				if c.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if preflight {
					h.Set("Access-Control-Allow-Methods", c.methods)
					h.Set("Access-Control-Allow-Headers", c.headers)
					h.Set("Access-Control-Max-Age", c.maxAge)
				} else if c.exposed != "" {
					h.Set("Access-Control-Expose-Headers", c.exposed)
				}
			}

			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
