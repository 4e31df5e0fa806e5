package capture

import (
	"errors"
	"image"

	"github.com/kbinani/screenshot"
)

// Source is the platform screen-grab primitive.
type Source interface {
	// Displays lists attached displays in discovery order.
	Displays() ([]Display, error)
	// CaptureDisplay grabs the whole display.
	CaptureDisplay(d Display) (*image.RGBA, error)
	// CaptureRegion grabs a display-local rectangle.
	CaptureRegion(d Display, r Region) (*image.RGBA, error)
}

// ScreenSource captures the local desktop.
type ScreenSource struct{}

// NewScreenSource returns the platform capture source.
func NewScreenSource() ScreenSource {
	return ScreenSource{}
}

func (ScreenSource) Displays() ([]Display, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, errors.New("no active displays found")
	}
	displays := make([]Display, n)
	for i := range displays {
		bounds := screenshot.GetDisplayBounds(i)
		displays[i] = Display{
			Index:   i,
			Bounds:  bounds,
			Primary: bounds.Min == image.Point{},
		}
	}
	return displays, nil
}

func (ScreenSource) CaptureDisplay(d Display) (*image.RGBA, error) {
	return screenshot.CaptureRect(d.Bounds)
}

func (ScreenSource) CaptureRegion(d Display, r Region) (*image.RGBA, error) {
	rect, err := r.Within(d.Bounds)
	if err != nil {
		return nil, err
	}
	return screenshot.CaptureRect(rect)
}
