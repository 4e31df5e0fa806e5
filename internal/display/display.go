package display

import "image"

// FrameSink accepts decoded screenshots for display.
type FrameSink interface {
	SetFrame(img *image.RGBA)
	SetStatus(status string)
}

// Actions are invoked from viewer key presses: C captures, R resets.
// They run on their own goroutine and may block.
type Actions struct {
	OnCapture func()
	OnReset   func()
}

var _ FrameSink = (*EbitenDisplay)(nil)
