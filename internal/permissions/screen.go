//go:build darwin

// Package permissions checks the macOS privacy permission screen capture needs.
package permissions

/*
#cgo LDFLAGS: -framework CoreGraphics
#include <CoreGraphics/CoreGraphics.h>

static int screenCaptureAllowed(void) {
    return CGPreflightScreenCaptureAccess();
}

static int askScreenCapture(void) {
    return CGRequestScreenCaptureAccess();
}
*/
import "C"

// HasScreenRecording reports whether this process may capture the screen.
// Without it macOS returns wallpaper-only images instead of failing.
func HasScreenRecording() bool {
	return C.screenCaptureAllowed() != 0
}

// RequestScreenRecording shows the system prompt when access is missing.
// The grant only takes effect after the process restarts.
func RequestScreenRecording() bool {
	return C.askScreenCapture() != 0
}
