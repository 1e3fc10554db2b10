package transfer

import (
	"encoding/base64"
	"encoding/json"
)

// Session frame types carried as JSON text frames on the data channel.
// Binary chunks travel as raw binary frames beside them; on the relayed
// fallback they are wrapped in MessageTypeChunk frames instead.
const (
	MessageTypeHeader            = "header"
	MessageTypePartition         = "partition"
	MessageTypePartitionReceived = "partition_received"
	MessageTypeProgress          = "progress"
	MessageTypeTransferComplete  = "transfer-complete"
	MessageTypeText              = "text"
	MessageTypeChunk             = "chunk"
)

// Message is the envelope for every session text frame. Fields beyond Type
// are populated per frame type.
type Message struct {
	Type     string  `json:"type"`
	Name     string  `json:"name,omitempty"`
	Mime     string  `json:"mime,omitempty"`
	Size     int64   `json:"size,omitempty"`
	Offset   int64   `json:"offset,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Text     string  `json:"text,omitempty"`

	// Data carries a base64 chunk on the relayed fallback path.
	Data string `json:"data,omitempty"`
}

func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, NewError("parse message", err)
	}
	if msg.Type == "" {
		return nil, NewError("parse message", ErrUnknownMessage)
	}
	return &msg, nil
}

// IsSessionFrame reports whether t names a frame of the session protocol.
// The server connection uses it to recognize relayed session traffic.
func IsSessionFrame(t string) bool {
	switch t {
	case MessageTypeHeader, MessageTypePartition, MessageTypePartitionReceived,
		MessageTypeProgress, MessageTypeTransferComplete, MessageTypeText,
		MessageTypeChunk:
		return true
	}
	return false
}

// EncodeText wraps text as base64(utf8) so it traverses the JSON-only
// control path safely.
func EncodeText(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// DecodeText reverses EncodeText.
func DecodeText(encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", NewError("decode text", err)
	}
	return string(b), nil
}
