package peer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// ICEServers is the default ICE server configuration.
var ICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

// Signaler delivers ICE candidates to the remote side.
type Signaler interface {
	SendICECandidate(payload json.RawMessage) error
}

// Options configures a PeerConnection.
type Options struct {
	ICEServers []webrtc.ICEServer
	// IncludeLoopback gathers loopback candidates, for same-machine sessions.
	IncludeLoopback bool
	Logger          zerolog.Logger
}

// DefaultOptions returns options using ICEServers and a no-op logger.
func DefaultOptions() Options {
	return Options{ICEServers: ICEServers, Logger: zerolog.Nop()}
}

// NewPeerConnection creates a configured PeerConnection.
func NewPeerConnection(opts Options) (*webrtc.PeerConnection, error) {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(opts.IncludeLoopback)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: opts.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	logger := opts.Logger
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug().Str("state", state.String()).Msg("peer connection state")
	})
	return pc, nil
}

// conn queues remote ICE candidates that arrive before the remote description.
type conn struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
}

func (c *conn) trickle(sig Signaler) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		data, err := json.Marshal(cand.ToJSON())
		if err != nil {
			c.logger.Warn().Err(err).Msg("marshal ICE candidate")
			return
		}
		if err := sig.SendICECandidate(data); err != nil {
			c.logger.Warn().Err(err).Msg("send ICE candidate")
		}
	})
}

func (c *conn) setRemote(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}
	for _, cand := range c.pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.logger.Warn().Err(err).Msg("add queued ICE candidate")
		}
	}
	c.pending = nil
	return nil
}

// HandleICECandidate adds a remote ICE candidate.
func (c *conn) HandleICECandidate(payload json.RawMessage) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &cand); err != nil {
		return fmt.Errorf("decode ICE candidate: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, cand)
		return nil
	}
	return c.pc.AddICECandidate(cand)
}

// Close shuts down the peer connection.
func (c *conn) Close() {
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("close peer connection")
		}
	}
}
