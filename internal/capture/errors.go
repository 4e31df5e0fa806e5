package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure cause. Returned errors wrap one of these
// together with the underlying platform error, if any.
var (
	// ErrDisplayEnumeration is returned when the platform cannot list displays.
	ErrDisplayEnumeration = errors.New("failed to enumerate displays")

	// ErrInvalidDisplayIndex is returned when the configured screen index is out of range.
	ErrInvalidDisplayIndex = errors.New("invalid display index")

	// ErrCaptureFailed is returned when the platform capture call fails.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrEncoding is returned when the captured image cannot be encoded.
	ErrEncoding = errors.New("failed to encode image")

	// ErrLockPoisoned is returned once an operation has panicked while holding
	// the capture state lock.
	ErrLockPoisoned = errors.New("capture state lock poisoned")
)

// Kind tags an error with its failure cause.
type Kind string

const (
	KindDisplayEnumeration  Kind = "display_enumeration"
	KindInvalidDisplayIndex Kind = "invalid_display_index"
	KindCaptureFailed       Kind = "capture_failed"
	KindEncoding            Kind = "encoding"
	KindLock                Kind = "lock"
	KindUnknown             Kind = "unknown"
)

var kinds = []struct {
	kind Kind
	err  error
}{
	{KindDisplayEnumeration, ErrDisplayEnumeration},
	{KindInvalidDisplayIndex, ErrInvalidDisplayIndex},
	{KindCaptureFailed, ErrCaptureFailed},
	{KindEncoding, ErrEncoding},
	{KindLock, ErrLockPoisoned},
}

// KindOf reports the failure cause of err.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Sentinel returns the sentinel error for k, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	for _, e := range kinds {
		if e.kind == k {
			return e.err
		}
	}
	return nil
}

// DisplayIndexError reports a screen index beyond the attached displays.
type DisplayIndexError struct {
	Index int
	Count int
}

func (e *DisplayIndexError) Error() string {
	return fmt.Sprintf("screen index %d not found (have %d displays)", e.Index, e.Count)
}

func (e *DisplayIndexError) Is(target error) bool {
	return target == ErrInvalidDisplayIndex
}
