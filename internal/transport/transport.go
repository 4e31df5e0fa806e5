package transport

import "github.com/junsooki/screendiff/internal/capture"

// ScreenshotSender pushes screenshots to a remote viewer.
type ScreenshotSender interface {
	SendScreenshot(shot *capture.Screenshot) error
}

// ScreenshotReceiver receives screenshots pushed by a host.
type ScreenshotReceiver interface {
	OnScreenshot(callback func(shot *capture.Screenshot))
}
