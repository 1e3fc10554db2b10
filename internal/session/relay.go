package session

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// RelaySession is the fallback when either peer cannot negotiate a direct
// channel. Every session frame is tunneled through the rendezvous server:
// text frames are tagged with the recipient id, binary chunks ride as
// base64 chunk frames. There is no handshake; the session is usable as
// soon as it exists.
type RelaySession struct {
	*Session
	signaler Signaler
}

func NewRelaySession(bus *events.Bus, cfg *config.Config, signaler Signaler, peerID string) *RelaySession {
	s := &RelaySession{
		Session:  newSession(bus, cfg, peerID),
		signaler: signaler,
	}
	s.Session.transport = s
	return s
}

// relayChunk wraps one binary chunk for the JSON-only server path.
type relayChunk struct {
	transfer.Message
	To string `json:"to"`
}

// SendText forwards a session text frame through the server by tagging it
// with the recipient id.
func (s *RelaySession) SendText(payload []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return transfer.NewError("relay frame", err)
	}
	fields["to"] = s.ID()
	return s.signaler.Send(fields)
}

func (s *RelaySession) SendBinary(chunk []byte) error {
	return s.signaler.Send(&relayChunk{
		Message: transfer.Message{
			Type: transfer.MessageTypeChunk,
			Data: base64.StdEncoding.EncodeToString(chunk),
		},
		To: s.ID(),
	})
}

// OnRelayFrame dispatches one tunneled frame from this peer.
func (s *RelaySession) OnRelayFrame(raw []byte) {
	msg, err := transfer.ParseMessage(raw)
	if err != nil {
		slog.Warn("unparseable relay frame", "peer", s.ID(), "err", err)
		return
	}
	if msg.Type == transfer.MessageTypeChunk {
		chunk, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			slog.Warn("undecodable relay chunk", "peer", s.ID(), "err", err)
			return
		}
		s.OnBinaryFrame(chunk)
		return
	}
	s.OnTextFrame(raw)
}

// Open is unconditionally true: sends while the server link is down are
// dropped by the connection itself.
func (s *RelaySession) Open() bool {
	return true
}

// Refresh is a no-op; the relay path has no handshake to restart.
func (s *RelaySession) Refresh() {}

func (s *RelaySession) Close() error {
	return nil
}
