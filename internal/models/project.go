package models

// LogoPosition is where the brand logo sits inside the frame.
type LogoPosition string

const (
	LogoTopLeft     LogoPosition = "top-left"
	LogoTopRight    LogoPosition = "top-right"
	LogoBottomLeft  LogoPosition = "bottom-left"
	LogoBottomRight LogoPosition = "bottom-right"
	LogoCenter      LogoPosition = "center"
)

// Valid reports whether p is one of the known positions.
func (p LogoPosition) Valid() bool {
	switch p {
	case LogoTopLeft, LogoTopRight, LogoBottomLeft, LogoBottomRight, LogoCenter:
		return true
	}
	return false
}

// BrandLogoConfig is immutable for the duration of a render run.
type BrandLogoConfig struct {
	URL      string       `json:"url"`
	Position LogoPosition `json:"position"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Padding  int          `json:"padding"`
}

// ProjectSettings are the render defaults of the project owning a batch.
type ProjectSettings struct {
	ProjectID      string          `json:"project_id"`
	Logo           BrandLogoConfig `json:"logo"`
	DefaultFormats []string        `json:"default_formats"`
}
