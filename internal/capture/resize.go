package capture

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Downscale shrinks img to maxWidth pixels wide, keeping the aspect ratio.
// Images already narrow enough, and non-positive limits, are returned as is.
//
// The tent kernel averages every source pixel under the destination pixel,
// so small on-screen changes survive the resize instead of being skipped.
func Downscale(img *image.RGBA, maxWidth int) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if maxWidth <= 0 || w <= maxWidth {
		return img
	}
	height := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.BiLinear.Scale(dst, dst.Rect, img, img.Rect, draw.Src, nil)
	return dst
}
