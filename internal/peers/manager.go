package peers

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/internal/signaling"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// FilesSelected is the detail of a files-selected event from the UI
// collaborator.
type FilesSelected struct {
	To    string
	Files []*transfer.File
}

// TextSubmission is the detail of a send-text event from the UI
// collaborator.
type TextSubmission struct {
	To   string
	Text string
}

// Manager is the registry of live sessions by peer id. It creates and
// refreshes sessions from server announcements, routes signaling and
// relayed frames to them, and routes user actions from the bus.
type Manager struct {
	bus      *events.Bus
	cfg      *config.Config
	signaler session.Signaler

	mu       sync.Mutex
	sessions map[string]session.Peer
}

func NewManager(bus *events.Bus, cfg *config.Config, signaler session.Signaler) *Manager {
	m := &Manager{
		bus:      bus,
		cfg:      cfg,
		signaler: signaler,
		sessions: make(map[string]session.Peer),
	}

	bus.On(events.Peers, m.onPeers)
	bus.On(events.Signal, m.onSignal)
	bus.On(events.Relay, m.onRelay)
	bus.On(events.PeerLeft, m.onPeerLeft)
	bus.On(events.FilesSelected, m.onFilesSelected)
	bus.On(events.SendText, m.onSendText)

	return m
}

// onPeers processes a fresh peer list: known peers are refreshed, new ones
// get a session with this side as the caller.
func (m *Manager) onPeers(detail any) {
	peers, ok := detail.([]signaling.Peer)
	if !ok {
		return
	}
	for _, p := range peers {
		m.mu.Lock()
		existing := m.sessions[p.ID]
		if existing == nil {
			m.createLocked(p, true)
		}
		m.mu.Unlock()

		if existing != nil {
			existing.Refresh()
		}
	}
}

// createLocked picks the transport for a new session: a direct channel
// when both ends support it, the server relay otherwise.
func (m *Manager) createLocked(p signaling.Peer, caller bool) session.Peer {
	var s session.Peer
	if m.cfg.RTCSupported() && p.RTCSupported {
		s = session.NewRTCSession(m.bus, m.cfg, m.signaler, p.ID, caller)
	} else {
		s = session.NewRelaySession(m.bus, m.cfg, m.signaler, p.ID)
	}
	m.sessions[p.ID] = s
	return s
}

// onSignal forwards a signaling frame to the sender's session, creating a
// callee-role session when the sender is unknown.
func (m *Manager) onSignal(detail any) {
	msg, ok := detail.(*signaling.Message)
	if !ok || msg.Sender == "" {
		return
	}

	m.mu.Lock()
	s := m.sessions[msg.Sender]
	if s == nil {
		s = m.createLocked(signaling.Peer{ID: msg.Sender, RTCSupported: true}, false)
	}
	m.mu.Unlock()

	rtc, ok := s.(*session.RTCSession)
	if !ok {
		slog.Warn("signal for relayed peer dropped", "peer", msg.Sender)
		return
	}
	rtc.OnSignal(msg)
}

// onRelay forwards a tunneled session frame to the sender's relay session.
func (m *Manager) onRelay(detail any) {
	frame, ok := detail.(signaling.RelayFrame)
	if !ok || frame.Sender == "" {
		return
	}

	m.mu.Lock()
	s := m.sessions[frame.Sender]
	if s == nil {
		s = m.createLocked(signaling.Peer{ID: frame.Sender}, false)
	}
	m.mu.Unlock()

	relay, ok := s.(*session.RelaySession)
	if !ok {
		slog.Warn("relay frame for direct peer dropped", "peer", frame.Sender)
		return
	}
	relay.OnRelayFrame(frame.Raw)
}

func (m *Manager) onPeerLeft(detail any) {
	id, ok := detail.(string)
	if !ok {
		return
	}

	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if s != nil {
		s.Close()
		slog.Info("peer left", "peer", id)
	}
}

func (m *Manager) onFilesSelected(detail any) {
	sel, ok := detail.(FilesSelected)
	if !ok {
		return
	}
	if s := m.Get(sel.To); s != nil {
		s.SendFiles(sel.Files)
	}
}

func (m *Manager) onSendText(detail any) {
	sub, ok := detail.(TextSubmission)
	if !ok {
		return
	}
	if s := m.Get(sub.To); s != nil {
		s.SendText(sub.Text)
	}
}

// Get returns the session for a peer id, or nil.
func (m *Manager) Get(id string) session.Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// IDs lists the registered peer ids in stable order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]session.Peer)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
