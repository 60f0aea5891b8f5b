package render

import (
	"strings"

	"adrender/internal/pkg/errors"
)

// Mode selects which formats of an entity are rendered.
type Mode string

const (
	// ModeAll re-renders every target format.
	ModeAll Mode = "all"
	// ModeMissing skips formats that already have a completed output.
	ModeMissing Mode = "missing"
)

// ParseMode accepts "all" and "missing"; empty means missing.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMissing:
		return ModeMissing, nil
	case ModeAll:
		return ModeAll, nil
	default:
		return "", errors.ValidationField("mode", "mode must be \"all\" or \"missing\"")
	}
}

// Options configures one RenderAllFormats call.
type Options struct {
	Mode Mode
	// Formats, when set, restricts the run to these target formats.
	Formats []string
	// SkipThumbnail disables the preview frame of the master clip.
	SkipThumbnail bool
	// OnFormatDone is called after each attempted format with its outcome.
	OnFormatDone func(format string, err error)
}

// Result is the entity-level outcome of a render run.
type Result struct {
	EntityID  string
	Succeeded []string
	Failed    []string
	Skipped   []string
	// Errors holds the user-facing message per failed format.
	Errors       map[string]string
	ThumbnailURL string
}

func newResult(entityID string) *Result {
	return &Result{
		EntityID:  entityID,
		Succeeded: []string{},
		Failed:    []string{},
		Skipped:   []string{},
		Errors:    map[string]string{},
	}
}

// Attempted is the number of formats that went through the encoder.
func (r *Result) Attempted() int {
	return len(r.Succeeded) + len(r.Failed)
}
