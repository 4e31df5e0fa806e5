package peer

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/screendiff/internal/transport"
)

// HostSignaler carries the host's answer and candidates to the viewer.
type HostSignaler interface {
	Signaler
	SendAnswer(payload json.RawMessage) error
}

// Host answers a viewer's offer and hands over the screenshots channel once open.
type Host struct {
	conn
	sig HostSignaler
}

// NewHost creates a Host peer manager. onChannel runs when the viewer's
// screenshots channel opens.
func NewHost(sig HostSignaler, opts Options, onChannel func(*transport.DataChannelTransport)) (*Host, error) {
	pc, err := NewPeerConnection(opts)
	if err != nil {
		return nil, err
	}

	h := &Host{conn: conn{pc: pc, logger: opts.Logger}, sig: sig}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != transport.ScreenshotsLabel {
			h.logger.Warn().Str("label", dc.Label()).Msg("ignoring unexpected data channel")
			return
		}
		t := transport.NewDataChannelTransport(dc)
		dc.OnOpen(func() {
			h.logger.Info().Msg("screenshots data channel open")
			onChannel(t)
		})
	})
	h.trickle(sig)

	return h, nil
}

// HandleOffer processes an incoming offer and sends back the answer.
func (h *Host) HandleOffer(payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}
	if err := h.setRemote(offer); err != nil {
		return err
	}

	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return h.sig.SendAnswer(answerJSON)
}
