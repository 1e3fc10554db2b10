package session

import "github.com/beamdrop/beamdrop/internal/transfer"

// Signaler is the session's handle on the server control link, used for
// signaling frames and relayed session traffic.
type Signaler interface {
	Send(msg any) error
}

// Transport is the minimal capability set a session runs its protocol
// over: JSON text frames and binary chunk frames on one ordered channel.
type Transport interface {
	SendText(payload []byte) error
	SendBinary(chunk []byte) error
	Open() bool
	Close() error
}

// Peer is the manager's view of a live session, independent of transport.
type Peer interface {
	ID() string
	SendFiles(files []*transfer.File)
	SendText(text string) error
	Refresh()
	Close() error
}
