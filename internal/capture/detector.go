package capture

import "image"

// DefaultSampleStride samples every other row and column. Existing threshold
// values are tuned against this stride.
const DefaultSampleStride = 2

// HasChanged reports whether cur differs materially from prev.
//
// A missing baseline or a size change always counts as a change. Otherwise
// the images are compared on a sampled grid and the estimated share of
// differing pixels is checked against changeThresholdPercent (inclusive).
func HasChanged(prev, cur *image.RGBA, diffThreshold uint8, changeThresholdPercent float32) bool {
	if prev == nil {
		return true
	}
	if !sameSize(prev, cur) {
		return true
	}
	return DiffPercent(prev, cur, diffThreshold, DefaultSampleStride) >= changeThresholdPercent
}

// DiffPercent estimates the percentage of pixels whose red, green or blue
// channel differs by more than diffThreshold. Only pixels on a stride x stride
// grid are visited; each differing sample counts for stride*stride pixels.
// Both images must have the same size.
func DiffPercent(prev, cur *image.RGBA, diffThreshold uint8, stride int) float32 {
	if stride < 1 {
		stride = 1
	}
	w, h := cur.Rect.Dx(), cur.Rect.Dy()
	total := w * h
	if total == 0 {
		return 0
	}

	weight := uint64(stride * stride)
	var different uint64
	for y := 0; y < h; y += stride {
		po := prev.PixOffset(prev.Rect.Min.X, prev.Rect.Min.Y+y)
		co := cur.PixOffset(cur.Rect.Min.X, cur.Rect.Min.Y+y)
		for x := 0; x < w; x += stride {
			p := prev.Pix[po+x*4 : po+x*4+3]
			c := cur.Pix[co+x*4 : co+x*4+3]
			if channelDiffers(p[0], c[0], diffThreshold) ||
				channelDiffers(p[1], c[1], diffThreshold) ||
				channelDiffers(p[2], c[2], diffThreshold) {
				different += weight
			}
		}
	}
	return float32(different) / float32(total) * 100
}

func channelDiffers(a, b, threshold uint8) bool {
	if a > b {
		return a-b > threshold
	}
	return b-a > threshold
}

func sameSize(a, b *image.RGBA) bool {
	return a.Rect.Dx() == b.Rect.Dx() && a.Rect.Dy() == b.Rect.Dy()
}
