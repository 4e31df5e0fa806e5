package encoder

import (
	"fmt"
	"image"
)

// Image formats understood by New.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Encoder encodes an image into bytes.
type Encoder interface {
	Encode(img *image.RGBA) ([]byte, error)
	Format() string
}

// New returns an encoder for format. Quality only applies to JPEG.
func New(format string, quality int) (Encoder, error) {
	switch format {
	case "", FormatPNG:
		return NewPNGEncoder(), nil
	case FormatJPEG, "jpg":
		return NewJPEGEncoder(quality), nil
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
}
