package peer

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/screendiff/internal/transport"
)

// ViewerSignaler carries the viewer's offer and candidates to the host.
type ViewerSignaler interface {
	Signaler
	SendOffer(payload json.RawMessage) error
}

// Viewer offers a session and receives screenshots over it.
type Viewer struct {
	conn
	sig       ViewerSignaler
	transport *transport.DataChannelTransport
}

// NewViewer creates a Viewer peer manager with an ordered screenshots channel.
func NewViewer(sig ViewerSignaler, opts Options) (*Viewer, error) {
	pc, err := NewPeerConnection(opts)
	if err != nil {
		return nil, err
	}

	ordered := true
	dc, err := pc.CreateDataChannel(transport.ScreenshotsLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create %s data channel: %w", transport.ScreenshotsLabel, err)
	}

	v := &Viewer{
		conn:      conn{pc: pc, logger: opts.Logger},
		sig:       sig,
		transport: transport.NewDataChannelTransport(dc),
	}
	dc.OnOpen(func() {
		v.logger.Info().Msg("screenshots data channel open")
	})
	v.trickle(sig)

	return v, nil
}

// Transport returns the screenshots transport.
func (v *Viewer) Transport() *transport.DataChannelTransport {
	return v.transport
}

// Connect initiates the connection by creating and sending an offer.
func (v *Viewer) Connect() error {
	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := v.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return v.sig.SendOffer(offerJSON)
}

// HandleAnswer processes an incoming SDP answer.
func (v *Viewer) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	return v.setRemote(answer)
}
