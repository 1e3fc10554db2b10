package session

import (
	"log/slog"
	"sync"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// Progress is the detail of a file-progress event.
type Progress struct {
	Sender   string
	Progress float64
}

// ReceivedFile is the detail of a file-received event.
type ReceivedFile struct {
	Sender   string
	Artifact *transfer.Artifact
}

// ReceivedText is the detail of a text-received event.
type ReceivedText struct {
	Sender string
	Text   string
}

// Session is the transport-independent half of a peer session: the
// outbound file queue, the partitioned transfer state machines for both
// directions, and text frames. Concrete sessions supply the Transport.
//
// At most one outbound transfer is in flight; the rest wait in the queue
// in submission order. The two directions are independent.
type Session struct {
	peerID string
	bus    *events.Bus
	cfg    *config.Config

	transport Transport

	mu           sync.Mutex
	queue        []*transfer.File
	busy         bool
	chunker      *transfer.Chunker
	ackWaiters   []ackWaiter
	digester     *transfer.Digester
	lastReported float64
}

// ackWaiter pairs a sent partition boundary with the chunker it belongs
// to, so the receiver's echoed offset resumes exactly that transfer. A
// boundary from an already-finished transfer can otherwise swallow the
// ack meant for its successor.
type ackWaiter struct {
	chunker *transfer.Chunker
	offset  int64
}

func newSession(bus *events.Bus, cfg *config.Config, peerID string) *Session {
	return &Session{peerID: peerID, bus: bus, cfg: cfg}
}

// ID returns the server-assigned peer identity this session talks to.
func (s *Session) ID() string {
	return s.peerID
}

// SendFiles appends to the outbound queue and, if the session is idle,
// begins the next transfer.
func (s *Session) SendFiles(files []*transfer.File) {
	s.mu.Lock()
	s.queue = append(s.queue, files...)
	s.mu.Unlock()
	s.dequeue()
}

// SendText sends one text frame, base64-wrapped for the JSON path.
func (s *Session) SendText(text string) error {
	return s.sendMessage(&transfer.Message{
		Type: transfer.MessageTypeText,
		Text: transfer.EncodeText(text),
	})
}

// dequeue pops the queue head and starts its transfer, unless a transfer
// is already in flight or the channel is not usable yet.
func (s *Session) dequeue() {
	s.mu.Lock()
	if s.busy || len(s.queue) == 0 || !s.transport.Open() {
		s.mu.Unlock()
		return
	}
	file := s.queue[0]
	s.queue = s.queue[1:]
	s.busy = true
	var ck *transfer.Chunker
	ck = transfer.NewChunker(file, s.cfg.ChunkSize, s.cfg.MaxPartitionSize, s.sendChunk, func(offset int64) error {
		s.mu.Lock()
		s.ackWaiters = append(s.ackWaiters, ackWaiter{chunker: ck, offset: offset})
		s.mu.Unlock()
		return s.sendMessage(&transfer.Message{Type: transfer.MessageTypePartition, Offset: offset})
	})
	s.chunker = ck
	s.mu.Unlock()

	if err := s.sendMessage(&transfer.Message{
		Type: transfer.MessageTypeHeader,
		Name: file.Name,
		Mime: file.Mime,
		Size: file.Size,
	}); err != nil {
		slog.Warn("header send failed", "peer", s.peerID, "err", err)
		return
	}
	go s.drivePartition(ck)
}

// drivePartition reads and sends one partition, blocking on file reads and
// channel writes. The next partition is driven by the receiver's ack.
func (s *Session) drivePartition(ck *transfer.Chunker) {
	if err := ck.NextPartition(); err != nil {
		slog.Warn("partition send failed", "peer", s.peerID, "err", err)
	}
}

func (s *Session) sendChunk(chunk []byte) error {
	return s.transport.SendBinary(chunk)
}

func (s *Session) sendMessage(msg *transfer.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.transport.SendText(payload)
}

// OnTextFrame dispatches one inbound JSON frame.
func (s *Session) OnTextFrame(raw []byte) {
	msg, err := transfer.ParseMessage(raw)
	if err != nil {
		slog.Warn("unparseable session frame", "peer", s.peerID, "err", err)
		return
	}

	switch msg.Type {
	case transfer.MessageTypeHeader:
		s.onHeader(msg)
	case transfer.MessageTypePartition:
		s.onPartitionEnd(msg.Offset)
	case transfer.MessageTypePartitionReceived:
		s.onPartitionReceived(msg.Offset)
	case transfer.MessageTypeProgress:
		s.onRemoteProgress(msg.Progress)
	case transfer.MessageTypeTransferComplete:
		s.onTransferComplete()
	case transfer.MessageTypeText:
		s.onText(msg)
	default:
		slog.Warn("unknown session frame", "peer", s.peerID, "type", msg.Type)
	}
}

// OnBinaryFrame feeds one chunk to the inbound transfer. A chunk that
// overruns the declared size is fatal for the inbound state.
func (s *Session) OnBinaryFrame(chunk []byte) {
	s.mu.Lock()
	d := s.digester
	s.mu.Unlock()
	if d == nil {
		slog.Warn("binary frame outside a transfer", "peer", s.peerID)
		return
	}

	if err := d.Unchunk(chunk); err != nil {
		slog.Error("inbound transfer aborted", "peer", s.peerID, "err", err)
		s.mu.Lock()
		s.digester = nil
		s.mu.Unlock()
		return
	}
	if d.Done() {
		// completion already reported via onArtifact
		return
	}

	p := d.Progress()
	s.mu.Lock()
	report := p-s.lastReported >= s.cfg.ProgressStep
	if report {
		s.lastReported = p
	}
	s.mu.Unlock()

	if report {
		s.sendMessage(&transfer.Message{Type: transfer.MessageTypeProgress, Progress: p})
		s.bus.Fire(events.FileProgress, Progress{Sender: s.peerID, Progress: p})
	}
}

func (s *Session) onHeader(msg *transfer.Message) {
	d := transfer.NewDigester(msg.Name, msg.Mime, msg.Size, s.onArtifact)
	if d.Done() {
		// zero-size transfer completed on the spot
		return
	}
	s.mu.Lock()
	s.digester = d
	s.lastReported = 0
	s.mu.Unlock()
}

func (s *Session) onArtifact(a *transfer.Artifact) {
	s.mu.Lock()
	s.digester = nil
	s.mu.Unlock()

	s.sendMessage(&transfer.Message{Type: transfer.MessageTypeTransferComplete})
	s.bus.Fire(events.FileProgress, Progress{Sender: s.peerID, Progress: 1})
	s.bus.Fire(events.FileReceived, ReceivedFile{Sender: s.peerID, Artifact: a})
}

// onPartitionEnd acknowledges the sender's partition boundary, echoing the
// numeric offset.
func (s *Session) onPartitionEnd(offset int64) {
	s.sendMessage(&transfer.Message{Type: transfer.MessageTypePartitionReceived, Offset: offset})
}

// onPartitionReceived advances the outbound transfer to its next
// partition, or leaves it awaiting the completion frame. Acks are matched
// to their boundary by the echoed offset; unmatched or stale ones are
// dropped.
func (s *Session) onPartitionReceived(offset int64) {
	s.mu.Lock()
	var ck *transfer.Chunker
	kept := s.ackWaiters[:0]
	for _, w := range s.ackWaiters {
		if ck == nil && w.offset == offset {
			ck = w.chunker
			continue
		}
		if w.chunker == s.chunker {
			kept = append(kept, w)
		}
	}
	s.ackWaiters = kept
	current := s.chunker
	s.mu.Unlock()

	if ck == nil || ck != current || ck.FileEnd() {
		return
	}
	go s.drivePartition(ck)
}

func (s *Session) onRemoteProgress(p float64) {
	s.bus.Fire(events.FileProgress, Progress{Sender: s.peerID, Progress: p})
}

func (s *Session) onTransferComplete() {
	s.mu.Lock()
	if !s.busy {
		s.mu.Unlock()
		return
	}
	s.busy = false
	s.chunker = nil
	s.mu.Unlock()

	s.bus.Fire(events.FileProgress, Progress{Sender: s.peerID, Progress: 1})
	s.dequeue()
}

func (s *Session) onText(msg *transfer.Message) {
	text, err := transfer.DecodeText(msg.Text)
	if err != nil {
		slog.Warn("undecodable text frame", "peer", s.peerID, "err", err)
		return
	}
	s.bus.Fire(events.TextReceived, ReceivedText{Sender: s.peerID, Text: text})
}

// onChannelOpen resumes the queue once the transport becomes usable.
func (s *Session) onChannelOpen() {
	s.dequeue()
}
