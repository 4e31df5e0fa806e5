package capture

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Default capture parameters.
const (
	DefaultDiffThreshold          = 30
	DefaultChangeThresholdPercent = 0.5
	DefaultMaxWidth               = 1920
)

// Region is a rectangle in display-local pixels.
type Region struct {
	X      int `json:"x" mapstructure:"x"`
	Y      int `json:"y" mapstructure:"y"`
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Config controls what is captured and how sensitive change detection is.
type Config struct {
	ScreenIndex            int     `json:"screen_index" mapstructure:"screen_index"`
	Region                 *Region `json:"region,omitempty" mapstructure:"region"`
	DiffThreshold          uint8   `json:"diff_threshold" mapstructure:"diff_threshold"`
	ChangeThresholdPercent float32 `json:"change_threshold_percent" mapstructure:"change_threshold_percent"`
	MaxWidth               *int    `json:"max_width,omitempty" mapstructure:"max_width"`
}

// DefaultConfig returns the configuration a Capturer starts with.
func DefaultConfig() Config {
	maxWidth := DefaultMaxWidth
	return Config{
		ScreenIndex:            0,
		DiffThreshold:          DefaultDiffThreshold,
		ChangeThresholdPercent: DefaultChangeThresholdPercent,
		MaxWidth:               &maxWidth,
	}
}

// Clone returns a copy of c that shares no pointers with it.
func (c Config) Clone() Config {
	if c.Region != nil {
		region := *c.Region
		c.Region = &region
	}
	if c.MaxWidth != nil {
		maxWidth := *c.MaxWidth
		c.MaxWidth = &maxWidth
	}
	return c
}

// Screenshot is the result of one capture.
type Screenshot struct {
	// Data is the base64 (standard alphabet) encoding of the image bytes.
	Data      string `json:"data"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp uint64 `json:"timestamp"`
	Changed   bool   `json:"changed"`
}

// ScreenInfo describes an attached display.
type ScreenInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsPrimary bool   `json:"is_primary"`
}

// Display is a platform display handle as reported by a Source.
type Display struct {
	Index   int
	Bounds  image.Rectangle
	Primary bool
}

// Info converts the handle into its public description.
func (d Display) Info() ScreenInfo {
	return ScreenInfo{
		Index:     d.Index,
		Name:      fmt.Sprintf("Screen %d", d.Index),
		X:         d.Bounds.Min.X,
		Y:         d.Bounds.Min.Y,
		Width:     d.Bounds.Dx(),
		Height:    d.Bounds.Dy(),
		IsPrimary: d.Primary,
	}
}

// Within translates r into the global coordinate space of a display with the
// given bounds. The region must be non-empty and lie entirely on the display.
func (r Region) Within(bounds image.Rectangle) (image.Rectangle, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return image.Rectangle{}, fmt.Errorf("region %s is empty", r)
	}
	rect := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Add(bounds.Min)
	if !rect.In(bounds) {
		return image.Rectangle{}, fmt.Errorf("region %s is outside display bounds %dx%d", r, bounds.Dx(), bounds.Dy())
	}
	return rect, nil
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRegion parses "x,y,width,height".
func ParseRegion(s string) (*Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("region %q: want x,y,width,height", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	return &Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
