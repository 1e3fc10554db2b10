package peers

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/internal/signaling"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

type stubSignaler struct {
	mu   sync.Mutex
	sent []any
}

func (s *stubSignaler) Send(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubSignaler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *stubSignaler) frames() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.sent))
	for _, msg := range s.sent {
		raw, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		var fields map[string]any
		if json.Unmarshal(raw, &fields) == nil {
			out = append(out, fields)
		}
	}
	return out
}

func relayConfig() *config.Config {
	return &config.Config{
		RTCDisabled:      true,
		ChunkSize:        4,
		MaxPartitionSize: 10,
		ProgressStep:     0.01,
	}
}

func rtcEnabledConfig() *config.Config {
	return &config.Config{
		ChunkSize:        64_000,
		MaxPartitionSize: 1_000_000,
		ProgressStep:     0.01,
	}
}

func TestPeersAnnouncementCreatesSessions(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(bus, relayConfig(), &stubSignaler{})

	bus.Fire(events.Peers, []signaling.Peer{{ID: "p1"}, {ID: "p2", RTCSupported: true}})

	assert.Equal(t, []string{"p1", "p2"}, m.IDs())
	assert.IsType(t, &session.RelaySession{}, m.Get("p1"))
	// relay even for an RTC-capable peer while we run in fallback mode
	assert.IsType(t, &session.RelaySession{}, m.Get("p2"))
}

func TestRTCCapablePairGetsDirectSession(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(bus, rtcEnabledConfig(), &stubSignaler{})
	defer m.Shutdown()

	bus.Fire(events.Peers, []signaling.Peer{
		{ID: "direct", RTCSupported: true},
		{ID: "legacy", RTCSupported: false},
	})

	assert.IsType(t, &session.RTCSession{}, m.Get("direct"))
	assert.IsType(t, &session.RelaySession{}, m.Get("legacy"))
}

func TestRepeatedAnnouncementKeepsOneSessionPerPeer(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(bus, relayConfig(), &stubSignaler{})

	bus.Fire(events.Peers, []signaling.Peer{{ID: "p1"}})
	first := m.Get("p1")
	bus.Fire(events.Peers, []signaling.Peer{{ID: "p1"}})

	require.Len(t, m.IDs(), 1)
	assert.Same(t, first, m.Get("p1"), "existing sessions are refreshed, not replaced")
}

func TestPeerLeftRemovesAndClosesSession(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(bus, relayConfig(), &stubSignaler{})

	bus.Fire(events.Peers, []signaling.Peer{{ID: "p1"}})
	require.NotNil(t, m.Get("p1"))

	bus.Fire(events.PeerLeft, "p1")
	assert.Nil(t, m.Get("p1"))
	assert.Empty(t, m.IDs())
}

func TestSignalFromUnknownSenderCreatesCalleeSession(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(bus, rtcEnabledConfig(), &stubSignaler{})
	defer m.Shutdown()

	bus.Fire(events.Signal, &signaling.Message{Type: signaling.MessageTypeSignal, Sender: "ghost"})

	s := m.Get("ghost")
	require.NotNil(t, s)
	assert.IsType(t, &session.RTCSession{}, s)
}

func TestRelayFrameFromUnknownSenderCreatesRelaySession(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(bus, relayConfig(), &stubSignaler{})

	textCh := make(chan session.ReceivedText, 1)
	bus.On(events.TextReceived, func(d any) { textCh <- d.(session.ReceivedText) })

	frame := &transfer.Message{Type: transfer.MessageTypeText, Text: transfer.EncodeText("hi there")}
	raw, err := frame.Encode()
	require.NoError(t, err)
	bus.Fire(events.Relay, signaling.RelayFrame{Sender: "r1", Raw: raw})

	require.NotNil(t, m.Get("r1"))
	select {
	case rt := <-textCh:
		assert.Equal(t, "r1", rt.Sender)
		assert.Equal(t, "hi there", rt.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("tunneled text never surfaced")
	}
}

func TestFilesSelectedRoutesToTargetSession(t *testing.T) {
	bus := events.NewBus()
	sig := &stubSignaler{}
	m := NewManager(bus, relayConfig(), sig)

	bus.Fire(events.Peers, []signaling.Peer{{ID: "p1"}})
	require.NotNil(t, m.Get("p1"))

	data := []byte("hello world, twenty-five")
	bus.Fire(events.FilesSelected, FilesSelected{
		To: "p1",
		Files: []*transfer.File{{
			Name:   "routed.bin",
			Mime:   "application/octet-stream",
			Size:   int64(len(data)),
			Source: bytes.NewReader(data),
		}},
	})

	require.Eventually(t, func() bool {
		for _, f := range sig.frames() {
			if f["type"] == transfer.MessageTypePartition {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	var header map[string]any
	for _, f := range sig.frames() {
		if f["type"] == transfer.MessageTypeHeader {
			header = f
			break
		}
	}
	require.NotNil(t, header, "transfer starts with a header frame")
	assert.Equal(t, "routed.bin", header["name"])
	assert.Equal(t, "p1", header["to"])
}

func TestSendTextRoutesToTargetSession(t *testing.T) {
	bus := events.NewBus()
	sig := &stubSignaler{}
	m := NewManager(bus, relayConfig(), sig)

	bus.Fire(events.Peers, []signaling.Peer{{ID: "p1"}})
	require.NotNil(t, m.Get("p1"))

	bus.Fire(events.SendText, TextSubmission{To: "p1", Text: "psst"})

	var textFrame map[string]any
	for _, f := range sig.frames() {
		if f["type"] == transfer.MessageTypeText {
			textFrame = f
		}
	}
	require.NotNil(t, textFrame)
	assert.Equal(t, "p1", textFrame["to"])
	assert.Equal(t, transfer.EncodeText("psst"), textFrame["text"])
}

func TestActionsForUnknownPeersAreIgnored(t *testing.T) {
	bus := events.NewBus()
	sig := &stubSignaler{}
	NewManager(bus, relayConfig(), sig)

	bus.Fire(events.FilesSelected, FilesSelected{To: "nobody"})
	bus.Fire(events.SendText, TextSubmission{To: "nobody", Text: "void"})
	bus.Fire(events.PeerLeft, "nobody")

	assert.Zero(t, sig.count())
}

func TestShutdownClosesEverySession(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(bus, relayConfig(), &stubSignaler{})

	bus.Fire(events.Peers, []signaling.Peer{{ID: "p1"}, {ID: "p2"}})
	require.Len(t, m.IDs(), 2)

	m.Shutdown()
	assert.Empty(t, m.IDs())
}
