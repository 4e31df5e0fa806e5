package decoder

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/junsooki/screendiff/internal/capture"
)

// Decoder decodes bytes into an image.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}

// ImageDecoder decodes PNG or JPEG bytes into *image.RGBA.
type ImageDecoder struct{}

func NewImageDecoder() *ImageDecoder {
	return &ImageDecoder{}
}

func (d *ImageDecoder) Decode(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba, nil
}

// DecodeScreenshot decodes the base64 payload of a screenshot.
func DecodeScreenshot(d Decoder, shot *capture.Screenshot) (*image.RGBA, error) {
	raw, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		return nil, fmt.Errorf("screenshot payload: %w", err)
	}
	img, err := d.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s screenshot: %w", shot.Format, err)
	}
	return img, nil
}
