package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/junsooki/screendiff/internal/capture"
)

// Request message types.
const (
	TypeListDisplays = "list-displays"
	TypeCapture      = "capture"
	TypeGetConfig    = "get-config"
	TypeSetConfig    = "set-config"
	TypeReset        = "reset"
	TypePing         = "ping"
	TypeOffer        = "offer"
	TypeICECandidate = "ice-candidate"
)

// Response message types.
const (
	TypeDisplays   = "displays"
	TypeScreenshot = "screenshot"
	TypeConfig     = "config"
	TypeOK         = "ok"
	TypePong       = "pong"
	TypeAnswer     = "answer"
	TypeError      = "error"
)

// Error kind for malformed or unknown requests.
const KindBadRequest capture.Kind = "bad_request"

// Message is the envelope for all RPC traffic. Responses echo the request ID.
type Message struct {
	Type       string               `json:"type"`
	ID         string               `json:"id,omitempty"`
	Config     *capture.Config      `json:"config,omitempty"`
	Screenshot *capture.Screenshot  `json:"screenshot,omitempty"`
	Displays   []capture.ScreenInfo `json:"displays,omitempty"`
	Payload    json.RawMessage      `json:"payload,omitempty"`
	Error      *ErrorBody           `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    capture.Kind `json:"kind"`
	Message string       `json:"message"`
}

// RemoteError is a failure reported by the host. It matches the capture
// sentinel of the same kind with errors.Is.
type RemoteError struct {
	Kind    capture.Kind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	sentinel := e.Kind.Sentinel()
	return sentinel != nil && sentinel == target
}

func errorBody(err error) *ErrorBody {
	return &ErrorBody{Kind: capture.KindOf(err), Message: err.Error()}
}
