package permissions

import "errors"

// ErrScreenRecordingDenied means capture would only return the desktop background.
var ErrScreenRecordingDenied = errors.New("screen recording permission not granted; grant it in System Settings and restart")

// EnsureScreenRecording returns nil when capture is allowed. Otherwise it
// triggers the system prompt and returns ErrScreenRecordingDenied.
func EnsureScreenRecording() error {
	if HasScreenRecording() {
		return nil
	}
	RequestScreenRecording()
	return ErrScreenRecordingDenied
}
