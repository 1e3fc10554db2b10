package session

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/signaling"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

const dataChannelLabel = "beamdrop"

// RTCSession is a peer session over a direct binary data channel
// negotiated via SDP/ICE through the rendezvous server.
//
// The caller (constructed from a peer list) creates the channel and the
// offer; the callee (constructed from an inbound signaling frame) waits
// for the remote-created channel to appear.
type RTCSession struct {
	*Session
	signaler Signaler
	caller   bool

	rtcMu   sync.Mutex
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	pending []webrtc.ICECandidateInit
	closed  bool
}

func NewRTCSession(bus *events.Bus, cfg *config.Config, signaler Signaler, peerID string, caller bool) *RTCSession {
	s := &RTCSession{
		Session:  newSession(bus, cfg, peerID),
		signaler: signaler,
		caller:   caller,
	}
	s.Session.transport = s

	if caller {
		if err := s.connect(); err != nil {
			slog.Error("rtc connect failed", "peer", peerID, "err", err)
		}
	}
	return s
}

// connect makes sure a peer connection exists and, for the caller,
// (re)creates the data channel and offer. A no-op for the caller while the
// channel is open; a channel that is still connecting is replaced by a new
// channel and a fresh offer.
func (s *RTCSession) connect() error {
	s.rtcMu.Lock()
	defer s.rtcMu.Unlock()
	return s.connectLocked()
}

func (s *RTCSession) connectLocked() error {
	if s.closed {
		return transfer.ErrChannelClosed
	}
	if s.pc == nil {
		pc, err := s.newPeerConnection()
		if err != nil {
			return err
		}
		s.pc = pc
	}
	if !s.caller {
		return nil
	}

	if s.dc != nil && s.dc.ReadyState() == webrtc.DataChannelStateOpen {
		return nil
	}

	ordered := true
	dc, err := s.pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return transfer.NewError("create data channel", err)
	}
	s.attachChannelLocked(dc)

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return transfer.NewError("create offer", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return transfer.NewError("set local description", err)
	}
	return s.signalDescription(s.pc.LocalDescription())
}

func (s *RTCSession) newPeerConnection() (*webrtc.PeerConnection, error) {
	var iceServers []webrtc.ICEServer
	if stunServers := s.cfg.GetSTUNServers(); stunServers != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stunServers})
	}
	if turnServers := s.cfg.GetTURNServers(); turnServers != nil {
		username, password := s.cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, transfer.NewError("create peer connection", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.signalCandidate(c.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateDisconnected:
			s.onChannelClosed()
		case webrtc.PeerConnectionStateFailed:
			// a failed connection cannot recover; discard it before
			// re-initiating
			s.dropConnection()
			s.onChannelClosed()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.rtcMu.Lock()
		s.attachChannelLocked(dc)
		s.rtcMu.Unlock()
	})

	return pc, nil
}

func (s *RTCSession) attachChannelLocked(dc *webrtc.DataChannel) {
	s.dc = dc
	dc.OnOpen(func() {
		slog.Debug("channel open", "peer", s.ID())
		s.onChannelOpen()
	})
	dc.OnClose(func() {
		s.onChannelClosed()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			s.OnTextFrame(msg.Data)
		} else {
			s.OnBinaryFrame(msg.Data)
		}
	})
}

// OnSignal applies one inbound signaling frame: an SDP description or an
// ICE candidate. Candidates arriving before the remote description are
// buffered and applied once it is set.
func (s *RTCSession) OnSignal(msg *signaling.Message) {
	if msg.SDP != nil {
		s.onRemoteDescription(msg.SDP)
	}
	if msg.ICE != nil {
		s.onRemoteCandidate(msg.ICE)
	}
}

func (s *RTCSession) onRemoteDescription(raw json.RawMessage) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		slog.Warn("unparseable sdp", "peer", s.ID(), "err", err)
		return
	}

	s.rtcMu.Lock()
	defer s.rtcMu.Unlock()

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if s.pc == nil {
			if err := s.connectLocked(); err != nil {
				slog.Error("rtc connect failed", "peer", s.ID(), "err", err)
				return
			}
		}
		if err := s.pc.SetRemoteDescription(desc); err != nil {
			slog.Error("set remote description failed", "peer", s.ID(), "err", err)
			return
		}
		s.drainCandidatesLocked()

		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			slog.Error("create answer failed", "peer", s.ID(), "err", err)
			return
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			slog.Error("set local description failed", "peer", s.ID(), "err", err)
			return
		}
		if err := s.signalDescription(s.pc.LocalDescription()); err != nil {
			slog.Error("signal answer failed", "peer", s.ID(), "err", err)
		}

	case webrtc.SDPTypeAnswer:
		if s.pc == nil {
			slog.Warn("answer without connection", "peer", s.ID())
			return
		}
		if err := s.pc.SetRemoteDescription(desc); err != nil {
			slog.Error("set remote description failed", "peer", s.ID(), "err", err)
			return
		}
		s.drainCandidatesLocked()

	default:
		slog.Warn("dropped signal", "peer", s.ID(), "err", transfer.ErrUnexpectedSignal, "sdp", desc.Type.String())
	}
}

func (s *RTCSession) onRemoteCandidate(raw json.RawMessage) {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		slog.Warn("unparseable ice candidate", "peer", s.ID(), "err", err)
		return
	}

	s.rtcMu.Lock()
	defer s.rtcMu.Unlock()
	if s.pc == nil || s.pc.RemoteDescription() == nil {
		s.pending = append(s.pending, init)
		return
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		slog.Warn("add ice candidate failed", "peer", s.ID(), "err", err)
	}
}

func (s *RTCSession) drainCandidatesLocked() {
	for _, init := range s.pending {
		if err := s.pc.AddICECandidate(init); err != nil {
			slog.Warn("add ice candidate failed", "peer", s.ID(), "err", err)
		}
	}
	s.pending = nil
}

func (s *RTCSession) signalDescription(desc *webrtc.SessionDescription) error {
	raw, err := json.Marshal(desc)
	if err != nil {
		return transfer.NewError("marshal sdp", err)
	}
	return s.signaler.Send(&signaling.Message{
		Type: signaling.MessageTypeSignal,
		To:   s.ID(),
		SDP:  raw,
	})
}

func (s *RTCSession) signalCandidate(init webrtc.ICECandidateInit) {
	raw, err := json.Marshal(init)
	if err != nil {
		slog.Warn("marshal ice candidate failed", "peer", s.ID(), "err", err)
		return
	}
	s.signaler.Send(&signaling.Message{
		Type: signaling.MessageTypeSignal,
		To:   s.ID(),
		ICE:  raw,
	})
}

// onChannelClosed reacts to the channel going away: the caller
// re-initiates the handshake with the same peer id, the callee waits to
// be re-called.
func (s *RTCSession) onChannelClosed() {
	s.rtcMu.Lock()
	if s.closed {
		s.rtcMu.Unlock()
		return
	}
	s.dc = nil
	s.rtcMu.Unlock()

	slog.Info("channel closed", "peer", s.ID(), "caller", s.caller)
	if s.caller {
		if err := s.connect(); err != nil {
			slog.Error("rtc reconnect failed", "peer", s.ID(), "err", err)
		}
	}
}

func (s *RTCSession) dropConnection() {
	s.rtcMu.Lock()
	defer s.rtcMu.Unlock()
	if s.pc != nil {
		s.pc.Close()
		s.pc = nil
	}
	s.dc = nil
}

// Refresh is invoked when this peer reappears in a fresh peer list. A
// missing or non-open channel restarts the handshake in the current role;
// an open channel is left alone.
func (s *RTCSession) Refresh() {
	s.rtcMu.Lock()
	dc := s.dc
	s.rtcMu.Unlock()
	if dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
		return
	}
	if err := s.connect(); err != nil {
		slog.Error("rtc refresh failed", "peer", s.ID(), "err", err)
	}
}

// SendText implements Transport over the data channel's string frames.
func (s *RTCSession) SendText(payload []byte) error {
	dc := s.channel()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transfer.ErrChannelNotOpen
	}
	return dc.SendText(string(payload))
}

// SendBinary implements Transport over the data channel's binary frames.
func (s *RTCSession) SendBinary(chunk []byte) error {
	dc := s.channel()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transfer.ErrChannelNotOpen
	}
	return dc.Send(chunk)
}

// Open reports whether the data channel is usable.
func (s *RTCSession) Open() bool {
	dc := s.channel()
	return dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Close tears the session down for good.
func (s *RTCSession) Close() error {
	s.rtcMu.Lock()
	defer s.rtcMu.Unlock()
	s.closed = true
	s.dc = nil
	if s.pc != nil {
		err := s.pc.Close()
		s.pc = nil
		return err
	}
	return nil
}

func (s *RTCSession) channel() *webrtc.DataChannel {
	s.rtcMu.Lock()
	defer s.rtcMu.Unlock()
	return s.dc
}
