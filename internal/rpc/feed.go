package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/transport"
	"github.com/junsooki/screendiff/internal/watch"
)

// feed owns the single host-wide watcher and fans every changed screenshot
// out to all open screenshots channels. Every capture taken through the feed
// moves the one shared baseline, so viewers and RPC callers observe the same
// sequence of changes.
type feed struct {
	svc      Service
	interval time.Duration
	logger   zerolog.Logger

	// captureMu orders captures with their fan-out.
	captureMu sync.Mutex

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest *capture.Screenshot
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

type subscriber struct {
	sink transport.ScreenshotSender
}

func newFeed(svc Service, interval time.Duration, logger zerolog.Logger) *feed {
	return &feed{
		svc:      svc,
		interval: interval,
		logger:   logger,
		subs:     make(map[*subscriber]struct{}),
	}
}

// Capture takes a screenshot, records it as the latest and pushes it to every
// subscriber when it changed. It implements watch.Snapshotter.
func (f *feed) Capture() (*capture.Screenshot, error) {
	f.captureMu.Lock()
	defer f.captureMu.Unlock()

	shot, err := f.svc.Capture()
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = shot
	if shot.Changed {
		for sub := range f.subs {
			f.deliver(sub, shot)
		}
	}
	return shot, nil
}

// SetConfig replaces the capture configuration. The latest screenshot no
// longer describes the capture target and is dropped with the baseline.
func (f *feed) SetConfig(cfg capture.Config) error {
	f.captureMu.Lock()
	defer f.captureMu.Unlock()

	if err := f.svc.SetConfig(cfg); err != nil {
		return err
	}
	f.mu.Lock()
	f.latest = nil
	f.mu.Unlock()
	return nil
}

// subscribe registers sink, starts the watcher for the first subscriber and
// sends the latest screenshot to sink. Without a latest screenshot there is
// no baseline either, so the next capture reports a change and reaches sink.
// The returned func unsubscribes and may be called more than once.
func (f *feed) subscribe(sink transport.ScreenshotSender) func() {
	sub := &subscriber{sink: sink}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return func() {}
	}
	f.subs[sub] = struct{}{}
	if f.cancel == nil {
		f.startLocked()
	}
	if f.latest != nil {
		f.deliver(sub, f.latest)
	}

	var once sync.Once
	return func() {
		once.Do(func() { f.unsubscribe(sub) })
	}
}

// unsubscribe stops the watcher with the last subscriber. It does not wait
// for the watcher to exit since it runs from DataChannel callbacks.
func (f *feed) unsubscribe(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub)
	if len(f.subs) == 0 && f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *feed) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	f.cancel, f.done = cancel, done

	w := watch.New(f.interval, f.logger)
	go func() {
		defer close(done)
		// Capture fans out itself, so the watcher needs no sink of its own.
		_ = w.Run(ctx, f, discard{})
	}()
}

// close stops the watcher and drops every subscriber.
func (f *feed) close() {
	f.mu.Lock()
	f.closed = true
	f.subs = make(map[*subscriber]struct{})
	var done chan struct{}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
		done = f.done
	}
	f.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (f *feed) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// deliver must be called with f.mu held so that subscribers see screenshots
// in capture order.
func (f *feed) deliver(sub *subscriber, shot *capture.Screenshot) {
	if err := sub.sink.SendScreenshot(shot); err != nil {
		f.logger.Warn().Err(err).Msg("send screenshot")
	}
}

type discard struct{}

func (discard) SendScreenshot(*capture.Screenshot) error { return nil }
