package capture

import (
	"encoding/base64"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/screendiff/internal/encoder"
)

// Capturer owns the capture configuration and the baseline image used for
// change detection. All methods are safe for concurrent use; operations that
// touch the state are serialized.
type Capturer struct {
	source Source
	enc    encoder.Encoder
	now    func() time.Time
	logger zerolog.Logger

	mu       sync.Mutex
	cfg      Config
	last     *image.RGBA
	poisoned bool
}

// Option customizes a Capturer.
type Option func(*Capturer)

// WithEncoder replaces the default PNG encoder.
func WithEncoder(enc encoder.Encoder) Option {
	return func(c *Capturer) { c.enc = enc }
}

// WithClock replaces time.Now for screenshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) { c.now = now }
}

// WithLogger sets the logger used for capture tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Capturer) { c.logger = logger }
}

// NewCapturer creates a Capturer with no baseline.
func NewCapturer(source Source, cfg Config, opts ...Option) *Capturer {
	c := &Capturer{
		source: source,
		enc:    encoder.NewPNGEncoder(),
		now:    time.Now,
		logger: zerolog.Nop(),
		cfg:    cfg.Clone(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDisplays enumerates the attached displays. It does not touch the
// capture state.
func (c *Capturer) ListDisplays() ([]ScreenInfo, error) {
	return ListDisplays(c.source)
}

// ListDisplays enumerates the displays of source.
func ListDisplays(source Source) ([]ScreenInfo, error) {
	displays, err := source.Displays()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDisplayEnumeration, err)
	}
	infos := make([]ScreenInfo, len(displays))
	for i, d := range displays {
		infos[i] = d.Info()
	}
	return infos, nil
}

// Capture grabs the configured display or region, compares it with the
// previous capture and returns the encoded result. The baseline is replaced
// only when the whole operation succeeds.
func (c *Capturer) Capture() (*Screenshot, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	cfg := c.cfg
	img, err := c.grab(cfg)
	if err != nil {
		c.logger.Error().Err(err).Msg("capture failed")
		return nil, err
	}

	if cfg.MaxWidth != nil {
		img = Downscale(img, *cfg.MaxWidth)
	}

	changed := HasChanged(c.last, img, cfg.DiffThreshold, cfg.ChangeThresholdPercent)

	raw, err := c.enc.Encode(img)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrEncoding, err)
		c.logger.Error().Err(err).Msg("encode failed")
		return nil, err
	}
	c.last = img

	data := base64.StdEncoding.EncodeToString(raw)
	c.logger.Debug().
		Str("format", c.enc.Format()).
		Int("bytes", len(raw)).
		Int("base64_chars", len(data)).
		Bool("changed", changed).
		Msg("encoded screenshot")

	return &Screenshot{
		Data:      data,
		Format:    c.enc.Format(),
		Width:     img.Rect.Dx(),
		Height:    img.Rect.Dy(),
		Timestamp: unixMillis(c.now()),
		Changed:   changed,
	}, nil
}

func (c *Capturer) grab(cfg Config) (*image.RGBA, error) {
	displays, err := c.source.Displays()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDisplayEnumeration, err)
	}
	c.logger.Debug().Int("displays", len(displays)).Msg("enumerated displays")

	if cfg.ScreenIndex < 0 || cfg.ScreenIndex >= len(displays) {
		return nil, &DisplayIndexError{Index: cfg.ScreenIndex, Count: len(displays)}
	}
	display := displays[cfg.ScreenIndex]

	var img *image.RGBA
	if cfg.Region != nil {
		img, err = c.source.CaptureRegion(display, *cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("%w: region %s of screen %d: %w", ErrCaptureFailed, cfg.Region, cfg.ScreenIndex, err)
		}
	} else {
		img, err = c.source.CaptureDisplay(display)
		if err != nil {
			return nil, fmt.Errorf("%w: screen %d: %w", ErrCaptureFailed, cfg.ScreenIndex, err)
		}
	}
	if img == nil {
		return nil, fmt.Errorf("%w: screen %d: no image returned", ErrCaptureFailed, cfg.ScreenIndex)
	}
	c.logger.Debug().Int("width", img.Rect.Dx()).Int("height", img.Rect.Dy()).Msg("captured image")
	return img, nil
}

// SetConfig replaces the configuration and discards the baseline, so the
// next capture reports a change.
func (c *Capturer) SetConfig(cfg Config) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.cfg = cfg.Clone()
	c.last = nil
	return nil
}

// Reset discards the baseline and keeps the configuration.
func (c *Capturer) Reset() error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.last = nil
	return nil
}

// Config returns the current configuration.
func (c *Capturer) Config() (Config, error) {
	if err := c.acquire(); err != nil {
		return Config{}, err
	}
	defer c.release()

	return c.cfg.Clone(), nil
}

// HasBaseline reports whether a previous capture is held for comparison.
func (c *Capturer) HasBaseline() (bool, error) {
	if err := c.acquire(); err != nil {
		return false, err
	}
	defer c.release()

	return c.last != nil, nil
}

func (c *Capturer) acquire() error {
	c.mu.Lock()
	if c.poisoned {
		c.mu.Unlock()
		return ErrLockPoisoned
	}
	return nil
}

// release must be deferred directly so that it observes panics.
func (c *Capturer) release() {
	if r := recover(); r != nil {
		c.poisoned = true
		c.mu.Unlock()
		panic(r)
	}
	c.mu.Unlock()
}

func unixMillis(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}
