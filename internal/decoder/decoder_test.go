package decoder

import (
	"encoding/base64"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/encoder"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	return img
}

func TestDecodePNGIsLossless(t *testing.T) {
	src := gradient(24, 16)
	data, err := encoder.NewPNGEncoder().Encode(src)
	require.NoError(t, err)

	img, err := NewImageDecoder().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, src.Rect, img.Rect)
	assert.Equal(t, src.Pix, img.Pix)
}

func TestDecodeJPEG(t *testing.T) {
	src := gradient(32, 32)
	data, err := encoder.NewJPEGEncoder(90).Encode(src)
	require.NoError(t, err)

	img, err := NewImageDecoder().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Rect)
	assert.InDelta(t, 128, int(img.RGBAAt(16, 16).B), 16)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := NewImageDecoder().Decode([]byte("not an image"))
	assert.Error(t, err)
}

func TestDecodeScreenshot(t *testing.T) {
	src := gradient(8, 4)
	data, err := encoder.NewPNGEncoder().Encode(src)
	require.NoError(t, err)

	shot := &capture.Screenshot{
		Data:   base64.StdEncoding.EncodeToString(data),
		Format: encoder.FormatPNG,
		Width:  8,
		Height: 4,
	}
	img, err := DecodeScreenshot(NewImageDecoder(), shot)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, img.Pix)

	shot.Data = "%%%"
	_, err = DecodeScreenshot(NewImageDecoder(), shot)
	assert.ErrorContains(t, err, "screenshot payload")
}
