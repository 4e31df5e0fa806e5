package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/screendiff/internal/capture"
)

// ScreenshotsLabel names the DataChannel that carries changed screenshots.
const ScreenshotsLabel = "screenshots"

var errNoChannel = fmt.Errorf("%s data channel not set", ScreenshotsLabel)

// DataChannelTransport carries JSON-encoded screenshots over a WebRTC
// DataChannel, split into ChunkSize pieces.
type DataChannelTransport struct {
	dc   *webrtc.DataChannel
	send func(data []byte) error

	sendMu sync.Mutex
	seq    uint32

	recvMu sync.Mutex
	asm    assembler

	mu           sync.Mutex
	onScreenshot func(shot *capture.Screenshot)
	onError      func(err error)
}

// NewDataChannelTransport wraps dc. A nil channel yields a transport whose
// sends fail, which is useful before negotiation completes.
func NewDataChannelTransport(dc *webrtc.DataChannel) *DataChannelTransport {
	if dc == nil {
		return newTransport(nil)
	}
	t := newTransport(dc.Send)
	t.dc = dc
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.handle(msg.Data)
	})
	return t
}

func newTransport(send func(data []byte) error) *DataChannelTransport {
	if send == nil {
		send = func([]byte) error { return errNoChannel }
	}
	return &DataChannelTransport{send: send}
}

func (t *DataChannelTransport) SendScreenshot(shot *capture.Screenshot) error {
	data, err := json.Marshal(shot)
	if err != nil {
		return fmt.Errorf("marshal screenshot: %w", err)
	}
	if len(data) > MaxMessageBytes {
		return fmt.Errorf("screenshot message of %d bytes exceeds %d", len(data), MaxMessageBytes)
	}

	// Chunks of different screenshots must not interleave.
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	t.seq++
	chunks := splitChunks(t.seq, data, ChunkSize)
	for i, chunk := range chunks {
		if err := t.send(chunk); err != nil {
			if errors.Is(err, errNoChannel) {
				return err
			}
			return fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (t *DataChannelTransport) OnScreenshot(cb func(shot *capture.Screenshot)) {
	t.mu.Lock()
	t.onScreenshot = cb
	t.mu.Unlock()
}

// OnError registers a callback for broken or undecodable messages.
func (t *DataChannelTransport) OnError(cb func(err error)) {
	t.mu.Lock()
	t.onError = cb
	t.mu.Unlock()
}

// OnClose registers a callback for when the channel closes.
func (t *DataChannelTransport) OnClose(cb func()) {
	if t.dc != nil {
		t.dc.OnClose(cb)
	}
}

func (t *DataChannelTransport) handle(frame []byte) {
	t.recvMu.Lock()
	data, done, err := t.asm.add(frame)
	t.recvMu.Unlock()
	if err != nil {
		t.reportError(err)
		return
	}
	if !done {
		return
	}

	var shot capture.Screenshot
	if err := json.Unmarshal(data, &shot); err != nil {
		t.reportError(fmt.Errorf("decode screenshot message: %w", err))
		return
	}

	t.mu.Lock()
	onScreenshot := t.onScreenshot
	t.mu.Unlock()
	if onScreenshot != nil {
		onScreenshot(&shot)
	}
}

func (t *DataChannelTransport) reportError(err error) {
	t.mu.Lock()
	onError := t.onError
	t.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}
