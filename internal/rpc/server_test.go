package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/peer"
)

type fakeSource struct {
	mu       sync.Mutex
	count    int
	frame    *image.RGBA
	err      error
	captures int
}

func newFakeSource(count int) *fakeSource {
	frame := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range frame.Pix {
		frame.Pix[i] = 0xff
	}
	return &fakeSource{count: count, frame: frame}
}

func (f *fakeSource) Displays() ([]capture.Display, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	displays := make([]capture.Display, f.count)
	for i := range displays {
		b := f.frame.Rect.Add(image.Pt(i*f.frame.Rect.Dx(), 0))
		displays[i] = capture.Display{Index: i, Bounds: b, Primary: i == 0}
	}
	return displays, nil
}

func (f *fakeSource) CaptureDisplay(capture.Display) (*image.RGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	out := *f.frame
	out.Pix = append([]byte(nil), f.frame.Pix...)
	return &out, nil
}

func (f *fakeSource) CaptureRegion(d capture.Display, r capture.Region) (*image.RGBA, error) {
	if _, err := r.Within(d.Bounds); err != nil {
		return nil, err
	}
	img, err := f.CaptureDisplay(d)
	if err != nil {
		return nil, err
	}
	return img.SubImage(image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)).(*image.RGBA), nil
}

func (f *fakeSource) captureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures
}

func (f *fakeSource) paint(c color.RGBA) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.frame.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			f.frame.SetRGBA(x, y, c)
		}
	}
}

type harness struct {
	source *fakeSource
	server *Server
	http   *httptest.Server
	url    string
}

func newHarness(t *testing.T, opts ...ServerOption) *harness {
	t.Helper()
	src := newFakeSource(2)
	capturer := capture.NewCapturer(src, capture.DefaultConfig())
	srv := NewServer(capturer, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &harness{
		source: src,
		server: srv,
		http:   ts,
		url:    "ws" + strings.TrimPrefix(ts.URL, "http") + Path,
	}
}

func (h *harness) dial(t *testing.T, handler Handler) *Client {
	t.Helper()
	c := NewClient(h.url, handler, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestListDisplays(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, Handler{})

	displays, err := c.ListDisplays(testContext(t))
	require.NoError(t, err)
	require.Len(t, displays, 2)
	assert.Equal(t, "Screen 0", displays[0].Name)
	assert.True(t, displays[0].IsPrimary)
	assert.Equal(t, 64, displays[1].X)
	assert.False(t, displays[1].IsPrimary)
}

func TestListDisplaysEnumerationError(t *testing.T) {
	h := newHarness(t)
	h.source.err = errors.New("no session")
	c := h.dial(t, Handler{})

	_, err := c.ListDisplays(testContext(t))
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, capture.KindDisplayEnumeration, remote.Kind)
	assert.ErrorIs(t, err, capture.ErrDisplayEnumeration)
}

func TestCaptureChangeDetection(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, Handler{})
	ctx := testContext(t)

	first, err := c.Capture(ctx)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, 64, first.Width)
	assert.Equal(t, 48, first.Height)
	assert.Equal(t, "png", first.Format)
	assert.NotEmpty(t, first.Data)

	second, err := c.Capture(ctx)
	require.NoError(t, err)
	assert.False(t, second.Changed)

	h.source.paint(color.RGBA{A: 255})
	third, err := c.Capture(ctx)
	require.NoError(t, err)
	assert.True(t, third.Changed)

	require.NoError(t, c.Reset(ctx))
	fourth, err := c.Capture(ctx)
	require.NoError(t, err)
	assert.True(t, fourth.Changed)
}

func TestSetConfigRoundTrip(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, Handler{})
	ctx := testContext(t)

	_, err := c.Capture(ctx)
	require.NoError(t, err)

	maxWidth := 32
	want := capture.Config{
		ScreenIndex:            1,
		Region:                 &capture.Region{X: 8, Y: 8, Width: 40, Height: 20},
		DiffThreshold:          10,
		ChangeThresholdPercent: 1.5,
		MaxWidth:               &maxWidth,
	}
	require.NoError(t, c.SetConfig(ctx, want))

	got, err := c.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	shot, err := c.Capture(ctx)
	require.NoError(t, err)
	assert.True(t, shot.Changed, "config change discards the baseline")
	assert.Equal(t, 32, shot.Width)
	assert.Equal(t, 16, shot.Height)
}

func TestCaptureInvalidDisplayIndex(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, Handler{})
	ctx := testContext(t)

	cfg := capture.DefaultConfig()
	cfg.ScreenIndex = 5
	require.NoError(t, c.SetConfig(ctx, cfg))

	_, err := c.Capture(ctx)
	assert.ErrorIs(t, err, capture.ErrInvalidDisplayIndex)
	assert.ErrorContains(t, err, "screen index 5 not found")
}

func TestBadRequests(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, Handler{})
	ctx := testContext(t)

	_, err := c.call(ctx, Message{Type: TypeSetConfig}, TypeOK)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, KindBadRequest, remote.Kind)

	_, err = c.call(ctx, Message{Type: "teleport"}, TypeOK)
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, KindBadRequest, remote.Kind)
	assert.Contains(t, remote.Message, "teleport")
}

func TestMalformedRequestKeepsSession(t *testing.T) {
	h := newHarness(t)
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	for _, tt := range []struct {
		raw    string
		wantID string
	}{
		{`{"type":"set-config","id":"cfg-1","config":{"diff_threshold":300,"change_threshold_percent":0.5}}`, "cfg-1"},
		{`{"type":"set-config","id":"cfg-2","config":{"change_threshold_percent":"lots"}}`, "cfg-2"},
		{`not json`, ""},
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)))

		var reply Message
		require.NoError(t, conn.ReadJSON(&reply), tt.raw)
		assert.Equal(t, TypeError, reply.Type, tt.raw)
		assert.Equal(t, tt.wantID, reply.ID, tt.raw)
		require.NotNil(t, reply.Error, tt.raw)
		assert.Equal(t, KindBadRequest, reply.Error.Kind, tt.raw)
		assert.Contains(t, reply.Error.Message, "malformed request", tt.raw)
	}

	require.NoError(t, conn.WriteJSON(Message{Type: TypePing, ID: "after"}))
	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, Message{Type: TypePong, ID: "after"}, pong)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeGetConfig, ID: "cfg"}))
	var cfg Message
	require.NoError(t, conn.ReadJSON(&cfg))
	require.NotNil(t, cfg.Config)
	assert.Equal(t, capture.DefaultConfig(), *cfg.Config, "rejected config was not applied")
}

func TestUnsolicitedErrorReachesHandler(t *testing.T) {
	h := newHarness(t)
	errs := make(chan error, 1)
	c := h.dial(t, Handler{OnError: func(err error) { errs <- err }})

	require.NoError(t, c.SendICECandidate(json.RawMessage(`{"candidate":""}`)))

	select {
	case err := <-errs:
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, KindBadRequest, remote.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("no error delivered")
	}
}

func TestPingAndClose(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, Handler{})
	ctx := testContext(t)

	require.NoError(t, c.Ping(ctx))

	h.server.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client not notified of server close")
	}
	assert.ErrorIs(t, c.Ping(ctx), ErrClosed)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, err := h.http.Client().Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

// attachViewer negotiates a WebRTC viewer over its own RPC connection and
// returns the screenshots it receives.
func attachViewer(t *testing.T, h *harness, opts peer.Options) <-chan *capture.Screenshot {
	t.Helper()
	var (
		mu     sync.Mutex
		viewer *peer.Viewer
	)
	current := func() *peer.Viewer {
		mu.Lock()
		defer mu.Unlock()
		return viewer
	}
	c := h.dial(t, Handler{
		OnAnswer: func(payload json.RawMessage) {
			assert.NoError(t, current().HandleAnswer(payload))
		},
		OnICECandidate: func(payload json.RawMessage) {
			assert.NoError(t, current().HandleICECandidate(payload))
		},
	})

	v, err := peer.NewViewer(c, opts)
	require.NoError(t, err)
	t.Cleanup(v.Close)
	mu.Lock()
	viewer = v
	mu.Unlock()

	shots := make(chan *capture.Screenshot, 16)
	v.Transport().OnScreenshot(func(shot *capture.Screenshot) {
		select {
		case shots <- shot:
		default:
		}
	})
	require.NoError(t, v.Connect())
	return shots
}

func loopbackPeerOptions() peer.Options {
	opts := peer.DefaultOptions()
	opts.ICEServers = nil
	opts.IncludeLoopback = true
	return opts
}

func receive(t *testing.T, shots <-chan *capture.Screenshot, what string) *capture.Screenshot {
	t.Helper()
	select {
	case shot := <-shots:
		return shot
	case <-time.After(15 * time.Second):
		t.Fatalf("no screenshot: %s", what)
		return nil
	}
}

func TestViewerReceivesPushedScreenshots(t *testing.T) {
	opts := loopbackPeerOptions()
	h := newHarness(t, WithPeerOptions(opts), WithWatchInterval(20*time.Millisecond))

	shots := attachViewer(t, h, opts)
	shot := receive(t, shots, "initial frame")
	assert.True(t, shot.Changed)
	assert.Equal(t, 64, shot.Width)
}

func TestEveryViewerSeesEachChange(t *testing.T) {
	opts := loopbackPeerOptions()
	h := newHarness(t, WithPeerOptions(opts), WithWatchInterval(20*time.Millisecond))

	first := attachViewer(t, h, opts)
	white := receive(t, first, "first viewer initial frame")

	second := attachViewer(t, h, opts)
	joined := receive(t, second, "second viewer initial frame")
	assert.Equal(t, white.Data, joined.Data, "a late viewer gets the current screen")

	h.source.paint(color.RGBA{A: 255})

	for name, shots := range map[string]<-chan *capture.Screenshot{"first": first, "second": second} {
		shot := receive(t, shots, name+" viewer change")
		assert.True(t, shot.Changed, name)
		assert.NotEqual(t, white.Data, shot.Data, name)
	}
}
