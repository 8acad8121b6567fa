package quality

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	// webp thumbnails come back from some image providers.
	_ "golang.org/x/image/webp"
)

// Minimum thumbnail dimensions accepted by the publish target.
const (
	MinThumbnailWidth  = 1280
	MinThumbnailHeight = 720
)

// ImageProbe is the decoded header of a thumbnail variant file.
type ImageProbe struct {
	Width  int
	Height int
	Format string
}

// ProbeThumbnail decodes the image header from r and validates the variant
// meets the minimum publish dimensions. It reads only the header, never the
// full image.
func ProbeThumbnail(r io.Reader) (ImageProbe, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return ImageProbe{}, fmt.Errorf("decoding thumbnail header: %w", err)
	}
	probe := ImageProbe{Width: cfg.Width, Height: cfg.Height, Format: format}
	if cfg.Width < MinThumbnailWidth || cfg.Height < MinThumbnailHeight {
		return probe, fmt.Errorf("thumbnail %dx%d below minimum %dx%d",
			cfg.Width, cfg.Height, MinThumbnailWidth, MinThumbnailHeight)
	}
	return probe, nil
}
