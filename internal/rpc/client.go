package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/junsooki/screendiff/internal/capture"
)

// ErrClosed is returned for calls on a closed or disconnected Client.
var ErrClosed = errors.New("rpc: connection closed")

const pingInterval = 25 * time.Second

// Handler callbacks for messages that are not replies to a call.
type Handler struct {
	OnAnswer       func(payload json.RawMessage)
	OnICECandidate func(payload json.RawMessage)
	OnError        func(err error)
}

// Client talks to a Server over WebSocket. Calls may be issued concurrently.
type Client struct {
	url     string
	handler Handler
	logger  zerolog.Logger

	conn   *websocket.Conn
	mu     sync.Mutex
	done   chan struct{}
	closed bool

	pendingMu sync.Mutex
	pending   map[string]chan Message
}

// NewClient creates a client for the server at url.
func NewClient(url string, handler Handler, logger zerolog.Logger) *Client {
	return &Client{
		url:     url,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
		pending: make(map[string]chan Message),
	}
}

// Connect dials the server and starts reading messages.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("rpc dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts down the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
}

// ListDisplays returns the host's displays.
func (c *Client) ListDisplays(ctx context.Context) ([]capture.ScreenInfo, error) {
	resp, err := c.call(ctx, Message{Type: TypeListDisplays}, TypeDisplays)
	if err != nil {
		return nil, err
	}
	return resp.Displays, nil
}

// Capture asks the host for a screenshot.
func (c *Client) Capture(ctx context.Context) (*capture.Screenshot, error) {
	resp, err := c.call(ctx, Message{Type: TypeCapture}, TypeScreenshot)
	if err != nil {
		return nil, err
	}
	if resp.Screenshot == nil {
		return nil, errors.New("rpc: screenshot response without screenshot")
	}
	return resp.Screenshot, nil
}

// Config returns the host's capture configuration.
func (c *Client) Config(ctx context.Context) (capture.Config, error) {
	resp, err := c.call(ctx, Message{Type: TypeGetConfig}, TypeConfig)
	if err != nil {
		return capture.Config{}, err
	}
	if resp.Config == nil {
		return capture.Config{}, errors.New("rpc: config response without config")
	}
	return *resp.Config, nil
}

// SetConfig replaces the host's capture configuration.
func (c *Client) SetConfig(ctx context.Context, cfg capture.Config) error {
	_, err := c.call(ctx, Message{Type: TypeSetConfig, Config: &cfg}, TypeOK)
	return err
}

// Reset discards the host's baseline.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.call(ctx, Message{Type: TypeReset}, TypeOK)
	return err
}

// Ping checks the host is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, Message{Type: TypePing}, TypePong)
	return err
}

// SendOffer sends an SDP offer. The answer arrives through Handler.OnAnswer.
func (c *Client) SendOffer(payload json.RawMessage) error {
	return c.send(Message{Type: TypeOffer, Payload: payload})
}

// SendICECandidate sends a local ICE candidate to the host.
func (c *Client) SendICECandidate(payload json.RawMessage) error {
	return c.send(Message{Type: TypeICECandidate, Payload: payload})
}

func (c *Client) call(ctx context.Context, req Message, want string) (Message, error) {
	req.ID = uuid.NewString()
	ch := make(chan Message, 1)

	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	if err := c.send(req); err != nil {
		return Message{}, err
	}

	select {
	case resp := <-ch:
		if resp.Type == TypeError {
			if resp.Error == nil {
				return Message{}, &RemoteError{Kind: capture.KindUnknown, Message: "unspecified error"}
			}
			return Message{}, &RemoteError{Kind: resp.Error.Kind, Message: resp.Error.Message}
		}
		if resp.Type != want {
			return Message{}, fmt.Errorf("rpc: unexpected %q reply to %q", resp.Type, req.Type)
		}
		return resp, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, ErrClosed
	}
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn().Err(err).Msg("rpc read error")
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	if msg.ID != "" {
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
			return
		}
	}

	switch msg.Type {
	case TypeAnswer:
		if c.handler.OnAnswer != nil {
			c.handler.OnAnswer(msg.Payload)
		}
	case TypeICECandidate:
		if c.handler.OnICECandidate != nil {
			c.handler.OnICECandidate(msg.Payload)
		}
	case TypeError:
		if c.handler.OnError != nil && msg.Error != nil {
			c.handler.OnError(&RemoteError{Kind: msg.Error.Kind, Message: msg.Error.Message})
		}
	case TypePong:
		// heartbeat response, nothing to do
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("ignoring unsolicited message")
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.send(Message{Type: TypePing})
		}
	}
}
