package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// fakeRelay plays the rendezvous server for one direction: it stamps the
// sender id the way the server does and hands the frame to the other side.
type fakeRelay struct {
	mu       sync.Mutex
	senderID string
	peer     *RelaySession
	sent     []map[string]any
}

func (f *fakeRelay) Send(msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}

	recorded := make(map[string]any, len(fields))
	for k, v := range fields {
		recorded[k] = v
	}
	f.mu.Lock()
	f.sent = append(f.sent, recorded)
	peer := f.peer
	f.mu.Unlock()

	delete(fields, "to")
	fields["sender"] = f.senderID
	forwarded, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if peer != nil {
		peer.OnRelayFrame(forwarded)
	}
	return nil
}

func (f *fakeRelay) sentFrames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.sent...)
}

func linkedRelay(t *testing.T) (a, b *RelaySession, sigA, sigB *fakeRelay, recA, recB *recorder) {
	t.Helper()
	cfg := testConfig(4, 10)
	busA, busB := events.NewBus(), events.NewBus()
	sigA = &fakeRelay{senderID: "A"}
	sigB = &fakeRelay{senderID: "B"}
	a = NewRelaySession(busA, cfg, sigA, "B")
	b = NewRelaySession(busB, cfg, sigB, "A")
	sigA.peer, sigB.peer = b, a
	return a, b, sigA, sigB, newRecorder(busA), newRecorder(busB)
}

func TestRelayFileTransfer(t *testing.T) {
	a, _, sigA, _, _, recB := linkedRelay(t)
	data := pattern(25)

	a.SendFiles([]*transfer.File{memFile("relayed.bin", data)})

	rf := recB.waitFile(t)
	assert.Equal(t, "A", rf.Sender)
	assert.Equal(t, data, rf.Artifact.Data)

	chunks := 0
	for _, frame := range sigA.sentFrames() {
		if frame["type"] == transfer.MessageTypeChunk {
			chunks++
		}
	}
	assert.Equal(t, 7, chunks, "25 bytes in 4-byte chunks")
}

func TestRelayTextRoundTrip(t *testing.T) {
	a, b, _, _, recA, recB := linkedRelay(t)

	require.NoError(t, a.SendText("héllo 🌍"))
	assert.Equal(t, "héllo 🌍", recB.waitText(t).Text)

	require.NoError(t, b.SendText("back atcha"))
	assert.Equal(t, "back atcha", recA.waitText(t).Text)
}

func TestRelayFramesCarryRecipient(t *testing.T) {
	a, _, sigA, _, _, recB := linkedRelay(t)

	a.SendFiles([]*transfer.File{memFile("addressed.bin", pattern(5))})
	recB.waitFile(t)

	frames := sigA.sentFrames()
	require.NotEmpty(t, frames)
	for _, frame := range frames {
		assert.Equal(t, "B", frame["to"], "every tunneled frame is addressed")
	}
}

func TestRelayIsAlwaysOpen(t *testing.T) {
	a, _, _, _, _, _ := linkedRelay(t)

	assert.True(t, a.Open())
	a.Refresh() // no handshake to restart
	assert.NoError(t, a.Close())
}

func TestRelayDropsUndecodableFrames(t *testing.T) {
	a, _, _, _, recA, _ := linkedRelay(t)

	a.OnRelayFrame([]byte("not json"))
	a.OnRelayFrame([]byte(`{"type":"chunk","data":"!!! not base64 !!!"}`))

	assert.Empty(t, recA.progressValues())
}
