// Package watch polls a capturer and pushes changed screenshots to a sink.
package watch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/transport"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = time.Second

// Snapshotter produces screenshots. *capture.Capturer implements it.
type Snapshotter interface {
	Capture() (*capture.Screenshot, error)
}

// Watcher captures on a fixed interval and forwards only changed screenshots.
type Watcher struct {
	interval time.Duration
	logger   zerolog.Logger
}

// New creates a Watcher. A non-positive interval falls back to DefaultInterval.
func New(interval time.Duration, logger zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{interval: interval, logger: logger}
}

// Run captures once immediately and then every interval until ctx is done.
// Capture and send failures are logged and do not stop the loop. A context
// that is already done captures nothing.
func (w *Watcher) Run(ctx context.Context, src Snapshotter, sink transport.ScreenshotSender) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("watch started")
	for {
		w.tick(src, sink)

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watch stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Watcher) tick(src Snapshotter, sink transport.ScreenshotSender) {
	shot, err := src.Capture()
	if err != nil {
		w.logger.Warn().Err(err).Str("kind", string(capture.KindOf(err))).Msg("capture failed")
		return
	}
	if !shot.Changed {
		return
	}
	if err := sink.SendScreenshot(shot); err != nil {
		w.logger.Warn().Err(err).Msg("send screenshot")
		return
	}
	w.logger.Debug().Int("width", shot.Width).Int("height", shot.Height).Msg("screenshot pushed")
}
