package media

import (
	"fmt"
	"strconv"
	"strings"

	"adrender/internal/geometry"
	"adrender/internal/pkg/errors"
)

// ParseFormat parses a format string such as "1080x1920".
func ParseFormat(s string) (geometry.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return geometry.Size{}, errors.Configurationf("invalid format %q", s)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return geometry.Size{}, errors.Configurationf("invalid format %q", s)
	}
	return geometry.Size{Width: width, Height: height}, nil
}

// FormatLabel is the inverse of ParseFormat.
func FormatLabel(s geometry.Size) string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
