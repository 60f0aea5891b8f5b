// Package geometry computes crop rectangles and logo offsets for
// aspect-ratio-specific renders. Everything here is pure.
package geometry

import (
	"math"

	"adrender/internal/models"
	"adrender/internal/pkg/errors"
)

// DefaultPadding is the logo inset used when a project does not set one.
const DefaultPadding = 20

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Point is a pixel offset from the top-left corner.
type Point struct {
	X int
	Y int
}

// Crop is a rectangle in source-pixel coordinates.
type Crop struct {
	Width  int
	Height int
	X      int
	Y      int
}

// CropFor returns the largest centered rectangle of the source that has the
// target aspect ratio, so scaling it to target needs no letterboxing.
func CropFor(source, target Size) (Crop, error) {
	if source.Width <= 0 || source.Height <= 0 || target.Width <= 0 || target.Height <= 0 {
		return Crop{}, errors.Configurationf("invalid dimensions: source %dx%d target %dx%d",
			source.Width, source.Height, target.Width, target.Height)
	}

	sw, sh := float64(source.Width), float64(source.Height)
	targetAspect := float64(target.Width) / float64(target.Height)

	// Cross-multiplied so equal ratios compare exactly.
	lhs := int64(target.Width) * int64(source.Height)
	rhs := int64(source.Width) * int64(target.Height)

	switch {
	case lhs > rhs:
		h := clamp(int(math.Round(sw/targetAspect)), 1, source.Height)
		return Crop{
			Width:  source.Width,
			Height: h,
			X:      0,
			Y:      int(math.Round(float64(source.Height-h) / 2)),
		}, nil
	case lhs < rhs:
		w := clamp(int(math.Round(sh*targetAspect)), 1, source.Width)
		return Crop{
			Width:  w,
			Height: source.Height,
			X:      int(math.Round(float64(source.Width-w) / 2)),
			Y:      0,
		}, nil
	default:
		return Crop{Width: source.Width, Height: source.Height}, nil
	}
}

// LogoPositionFor returns the logo's top-left offset inside frame. Unknown
// positions fall back to top-left; known reports whether position was recognised.
func LogoPositionFor(position models.LogoPosition, logo, frame Size, padding int) (p Point, known bool) {
	switch position {
	case models.LogoTopLeft:
		return Point{X: padding, Y: padding}, true
	case models.LogoTopRight:
		return Point{X: frame.Width - logo.Width - padding, Y: padding}, true
	case models.LogoBottomLeft:
		return Point{X: padding, Y: frame.Height - logo.Height - padding}, true
	case models.LogoBottomRight:
		return Point{X: frame.Width - logo.Width - padding, Y: frame.Height - logo.Height - padding}, true
	case models.LogoCenter:
		return Point{
			X: int(math.Round(float64(frame.Width-logo.Width) / 2)),
			Y: int(math.Round(float64(frame.Height-logo.Height) / 2)),
		}, true
	default:
		return Point{X: padding, Y: padding}, false
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
