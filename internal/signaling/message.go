package signaling

import "encoding/json"

// Peer is a room member as announced by the rendezvous server.
type Peer struct {
	ID           string `json:"id"`
	RTCSupported bool   `json:"rtcSupported"`
}

// Message represents all control frames exchanged with the rendezvous
// server. Signaling frames carry exactly one of SDP or ICE plus To
// (outbound) or Sender (inbound); both are kept opaque here.
type Message struct {
	Type   string          `json:"type"`
	Peers  []Peer          `json:"peers,omitempty"`
	Peer   *Peer           `json:"peer,omitempty"`
	PeerID string          `json:"peerId,omitempty"`
	Sender string          `json:"sender,omitempty"`
	To     string          `json:"to,omitempty"`
	SDP    json.RawMessage `json:"sdp,omitempty"`
	ICE    json.RawMessage `json:"ice,omitempty"`
}

// Message type constants.
const (
	MessageTypePeers      = "peers"
	MessageTypePeerJoined = "peer-joined"
	MessageTypePeerLeft   = "peer-left"
	MessageTypeSignal     = "signal"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeDisconnect = "disconnect"
)

// RelayFrame is a session frame tunneled through the server by a relayed
// peer session. Raw is the full frame for the session to parse.
type RelayFrame struct {
	Sender string
	Raw    []byte
}
