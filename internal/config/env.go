package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"adrender/internal/pkg/errors"
)

// envReader applies set environment variables and remembers the first parse error.
type envReader struct {
	err error
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = errors.WrapWithCode(err, errors.CodeConfiguration, "config.env", "invalid value for "+key+": "+value)
	}
}

func (e *envReader) str(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) csv(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	out := make([]string, 0)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func (e *envReader) integer(dst *int, key string) {
	if v, ok := lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

// boolean accepts the strconv.ParseBool spellings.
func (e *envReader) boolean(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(dst *Duration, key string) {
	if v, ok := lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		dst.Duration = d
	}
}
