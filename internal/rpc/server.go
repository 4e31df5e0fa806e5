package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/junsooki/screendiff/internal/capture"
	"github.com/junsooki/screendiff/internal/peer"
	"github.com/junsooki/screendiff/internal/transport"
	"github.com/junsooki/screendiff/internal/watch"
)

// Path is the WebSocket endpoint served by Server.
const Path = "/ws"

const maxRequestBytes = 1 << 20

// Service is the capture state a Server exposes. *capture.Capturer implements it.
type Service interface {
	ListDisplays() ([]capture.ScreenInfo, error)
	Capture() (*capture.Screenshot, error)
	Config() (capture.Config, error)
	SetConfig(cfg capture.Config) error
	Reset() error
}

// Server exposes a Service over WebSocket and pushes changed screenshots to
// viewers that negotiate a WebRTC session.
type Server struct {
	svc           Service
	watchInterval time.Duration
	peerOptions   peer.Options
	logger        zerolog.Logger
	upgrader      websocket.Upgrader
	feed          *feed

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithWatchInterval sets how often the host polls for changes while any
// screenshots channel is open.
func WithWatchInterval(d time.Duration) ServerOption {
	return func(s *Server) { s.watchInterval = d }
}

// WithPeerOptions sets the WebRTC configuration used for viewer sessions.
func WithPeerOptions(opts peer.Options) ServerOption {
	return func(s *Server) { s.peerOptions = opts }
}

// WithServerLogger sets the server logger.
func WithServerLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a Server for svc.
func NewServer(svc Service, opts ...ServerOption) *Server {
	s := &Server{
		svc:           svc,
		watchInterval: watch.DefaultInterval,
		peerOptions:   peer.DefaultOptions(),
		logger:        zerolog.Nop(),
		sessions:      make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.peerOptions.Logger = s.logger.With().Str("component", "peer").Logger()
	s.feed = newFeed(svc, s.watchInterval, s.logger.With().Str("component", "watch").Logger())
	return s
}

// Handler returns the HTTP handler serving Path and a health check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Close disconnects every session.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	s.feed.close()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxRequestBytes)

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     uuid.NewString(),
		srv:    s,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
	sess.logger = s.logger.With().Str("session", sess.id).Logger()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		cancel()
		return
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.logger.Info().Str("remote", r.RemoteAddr).Msg("session opened")
	sess.run()

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	sess.logger.Info().Msg("session closed")
}

type session struct {
	id     string
	srv    *Server
	conn   *websocket.Conn
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	peerMu      sync.Mutex
	host        *peer.Host
	unsubscribe func()
}

func (s *session) run() {
	defer s.close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && s.ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("malformed request")
			s.replyBadRequest(requestID(data), fmt.Sprintf("malformed request: %v", err))
			continue
		}
		s.handle(msg)
	}
}

// requestID recovers the id of a request whose other fields failed to decode.
func requestID(data []byte) string {
	var envelope struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(data, &envelope) != nil {
		return ""
	}
	return envelope.ID
}

func (s *session) handle(msg Message) {
	svc := s.srv.svc
	s.logger.Debug().Str("type", msg.Type).Str("id", msg.ID).Msg("request")

	switch msg.Type {
	case TypeListDisplays:
		displays, err := svc.ListDisplays()
		if err != nil {
			s.replyError(msg.ID, err)
			return
		}
		s.reply(Message{Type: TypeDisplays, ID: msg.ID, Displays: displays})
	case TypeCapture:
		shot, err := s.srv.feed.Capture()
		if err != nil {
			s.replyError(msg.ID, err)
			return
		}
		s.reply(Message{Type: TypeScreenshot, ID: msg.ID, Screenshot: shot})
	case TypeGetConfig:
		cfg, err := svc.Config()
		if err != nil {
			s.replyError(msg.ID, err)
			return
		}
		s.reply(Message{Type: TypeConfig, ID: msg.ID, Config: &cfg})
	case TypeSetConfig:
		if msg.Config == nil {
			s.replyBadRequest(msg.ID, "set-config requires a config")
			return
		}
		if err := s.srv.feed.SetConfig(*msg.Config); err != nil {
			s.replyError(msg.ID, err)
			return
		}
		s.reply(Message{Type: TypeOK, ID: msg.ID})
	case TypeReset:
		if err := svc.Reset(); err != nil {
			s.replyError(msg.ID, err)
			return
		}
		s.reply(Message{Type: TypeOK, ID: msg.ID})
	case TypePing:
		s.reply(Message{Type: TypePong, ID: msg.ID})
	case TypeOffer:
		if err := s.handleOffer(msg.Payload); err != nil {
			s.logger.Warn().Err(err).Msg("offer failed")
			s.replyBadRequest(msg.ID, err.Error())
		}
	case TypeICECandidate:
		s.peerMu.Lock()
		host := s.host
		s.peerMu.Unlock()
		if host == nil {
			s.replyBadRequest(msg.ID, "ice-candidate before offer")
			return
		}
		if err := host.HandleICECandidate(msg.Payload); err != nil {
			s.replyBadRequest(msg.ID, err.Error())
		}
	default:
		s.replyBadRequest(msg.ID, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// handleOffer replaces any previous WebRTC session with a new one.
func (s *session) handleOffer(payload json.RawMessage) error {
	s.stopPeer()

	host, err := peer.NewHost(s, s.srv.peerOptions, s.subscribe)
	if err != nil {
		return err
	}
	s.peerMu.Lock()
	s.host = host
	s.peerMu.Unlock()

	return host.HandleOffer(payload)
}

// subscribe joins the host-wide feed once the viewer's screenshots channel opens.
func (s *session) subscribe(t *transport.DataChannelTransport) {
	unsubscribe := s.srv.feed.subscribe(t)
	t.OnClose(unsubscribe)

	s.peerMu.Lock()
	previous := s.unsubscribe
	s.unsubscribe = unsubscribe
	s.peerMu.Unlock()

	if previous != nil {
		previous()
	}
	if s.ctx.Err() != nil {
		unsubscribe()
	}
}

func (s *session) stopPeer() {
	s.peerMu.Lock()
	unsubscribe, host := s.unsubscribe, s.host
	s.unsubscribe, s.host = nil, nil
	s.peerMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if host != nil {
		host.Close()
	}
}

func (s *session) close() {
	s.cancel()
	s.stopPeer()
	s.conn.Close()
}

// SendAnswer implements peer.HostSignaler.
func (s *session) SendAnswer(payload json.RawMessage) error {
	return s.send(Message{Type: TypeAnswer, Payload: payload})
}

// SendICECandidate implements peer.HostSignaler.
func (s *session) SendICECandidate(payload json.RawMessage) error {
	return s.send(Message{Type: TypeICECandidate, Payload: payload})
}

func (s *session) reply(msg Message) {
	if err := s.send(msg); err != nil {
		s.logger.Debug().Err(err).Str("type", msg.Type).Msg("reply failed")
	}
}

func (s *session) replyError(id string, err error) {
	s.logger.Warn().Err(err).Msg("request failed")
	s.reply(Message{Type: TypeError, ID: id, Error: errorBody(err)})
}

func (s *session) replyBadRequest(id, message string) {
	s.reply(Message{Type: TypeError, ID: id, Error: &ErrorBody{Kind: KindBadRequest, Message: message}})
}

func (s *session) send(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}
