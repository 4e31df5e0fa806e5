package peer

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/transport"
)

// pipe relays signaling between an in-process host and viewer.
type pipe struct {
	mu     sync.Mutex
	host   *Host
	viewer *Viewer
}

type hostSide struct{ p *pipe }

func (s hostSide) SendAnswer(payload json.RawMessage) error {
	return s.p.getViewer().HandleAnswer(payload)
}

func (s hostSide) SendICECandidate(payload json.RawMessage) error {
	if v := s.p.getViewer(); v != nil {
		return v.HandleICECandidate(payload)
	}
	return nil
}

type viewerSide struct{ p *pipe }

func (s viewerSide) SendOffer(payload json.RawMessage) error {
	return s.p.host.HandleOffer(payload)
}

func (s viewerSide) SendICECandidate(payload json.RawMessage) error {
	return s.p.host.HandleICECandidate(payload)
}

func (p *pipe) getViewer() *Viewer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewer
}

func loopbackOptions() Options {
	opts := DefaultOptions()
	opts.ICEServers = nil
	opts.IncludeLoopback = true
	return opts
}

// connectPair negotiates an in-process host and viewer and returns the
// host's open screenshots transport.
func connectPair(t *testing.T) (*transport.DataChannelTransport, *Viewer) {
	t.Helper()
	p := &pipe{}
	opened := make(chan *transport.DataChannelTransport, 1)

	host, err := NewHost(hostSide{p}, loopbackOptions(), func(ch *transport.DataChannelTransport) {
		opened <- ch
	})
	require.NoError(t, err)
	t.Cleanup(host.Close)
	p.host = host

	viewer, err := NewViewer(viewerSide{p}, loopbackOptions())
	require.NoError(t, err)
	t.Cleanup(viewer.Close)
	p.mu.Lock()
	p.viewer = viewer
	p.mu.Unlock()

	require.NoError(t, viewer.Connect())

	select {
	case ht := <-opened:
		return ht, viewer
	case <-time.After(15 * time.Second):
		t.Fatal("screenshots channel never opened")
		return nil, nil
	}
}

func TestLargeScreenshotsArrive(t *testing.T) {
	hostTransport, viewer := connectPair(t)

	received := make(chan *capture.Screenshot, 4)
	viewer.Transport().OnScreenshot(func(shot *capture.Screenshot) { received <- shot })
	viewer.Transport().OnError(func(err error) { t.Errorf("screenshot channel: %v", err) })

	for _, size := range []int{60_000, 1_100_000, 3_000_000} {
		want := &capture.Screenshot{Data: strings.Repeat("A", size), Format: "png", Width: 1920, Height: 1080, Changed: true}
		require.NoError(t, hostTransport.SendScreenshot(want))

		select {
		case got := <-received:
			assert.Equal(t, size, len(got.Data))
			assert.Equal(t, want, got)
		case <-time.After(30 * time.Second):
			t.Fatalf("screenshot of %d bytes not delivered", size)
		}
	}
}

func TestHostViewerExchangeScreenshots(t *testing.T) {
	p := &pipe{}
	opened := make(chan *transport.DataChannelTransport, 1)

	host, err := NewHost(hostSide{p}, loopbackOptions(), func(t *transport.DataChannelTransport) {
		opened <- t
	})
	require.NoError(t, err)
	defer host.Close()
	p.host = host

	viewer, err := NewViewer(viewerSide{p}, loopbackOptions())
	require.NoError(t, err)
	defer viewer.Close()
	p.mu.Lock()
	p.viewer = viewer
	p.mu.Unlock()

	received := make(chan *capture.Screenshot, 1)
	viewer.Transport().OnScreenshot(func(shot *capture.Screenshot) { received <- shot })

	require.NoError(t, viewer.Connect())

	var hostTransport *transport.DataChannelTransport
	select {
	case hostTransport = <-opened:
	case <-time.After(15 * time.Second):
		t.Fatal("screenshots channel never opened")
	}

	want := &capture.Screenshot{Data: "iVBORw0KGgo=", Format: "png", Width: 2, Height: 1, Timestamp: 42, Changed: true}
	require.NoError(t, hostTransport.SendScreenshot(want))

	select {
	case got := <-received:
		assert.Equal(t, want, got)
	case <-time.After(10 * time.Second):
		t.Fatal("screenshot not delivered")
	}
}

func TestHandleICECandidateQueuesUntilRemoteDescription(t *testing.T) {
	host, err := NewHost(hostSide{&pipe{}}, loopbackOptions(), func(*transport.DataChannelTransport) {})
	require.NoError(t, err)
	defer host.Close()

	err = host.HandleICECandidate(json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host","sdpMid":"0"}`))
	require.NoError(t, err)
	assert.Len(t, host.pending, 1)

	assert.Error(t, host.HandleICECandidate(json.RawMessage(`{`)))
}

func TestHandleOfferRejectsGarbage(t *testing.T) {
	host, err := NewHost(hostSide{&pipe{}}, loopbackOptions(), func(*transport.DataChannelTransport) {})
	require.NoError(t, err)
	defer host.Close()

	assert.ErrorContains(t, host.HandleOffer(json.RawMessage(`"nope"`)), "decode offer")
}
