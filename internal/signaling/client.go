package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// Timing constants for WebSocket health checks
const (
	// Time allowed to write a message to the server
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the server
	pongWait = 60 * time.Second

	// Send pings to server with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the server. Relayed session frames
	// carry base64 chunks, so this must exceed the encoded chunk size.
	maxMessageSize = 256 * 1024
)

// ConnState is the lifecycle state of the server connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// Client is the long-lived control link to the rendezvous server. It owns
// the only socket; reconnect attempts are serialized by a single retry
// timer that is always cleared before it is re-armed.
type Client struct {
	cfg *config.Config
	bus *events.Bus

	mu         sync.Mutex
	conn       *websocket.Conn
	state      ConnState
	retryTimer *time.Timer
	shutdown   bool

	// writeMu serializes writers on the socket
	writeMu sync.Mutex
}

// NewClient creates a signaling client. Call Connect to establish the link.
func NewClient(cfg *config.Config, bus *events.Bus) *Client {
	return &Client{cfg: cfg, bus: bus}
}

// Connect dials the server. It is a no-op while already connected or
// connecting, so it doubles as the reconnect-on-visibility hook.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.shutdown || c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	url := c.cfg.ServerURL()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		slog.Error("server dial failed", "url", url, "err", err)
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.notifyAndRetry()
		return transfer.NewError("connect to server", err)
	}

	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	slog.Info("server connected", "url", url)

	go c.readPump(conn)
	go c.pingLoop(conn)

	return nil
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send serializes msg to JSON and writes it if the socket is open;
// otherwise the message is dropped silently. Callers that care re-send
// after reconnect.
func (c *Client) Send(msg any) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateConnected
	c.mu.Unlock()

	if !open || conn == nil {
		slog.Debug("send dropped, socket not open")
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		slog.Error("server write failed", "err", err)
		return transfer.NewError("send", err)
	}
	return nil
}

// readPump reads server frames until the socket dies, then triggers the
// reconnect path. It also maintains the pong deadline.
func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Info("server read closed", "err", err)
			c.connLost(conn)
			return
		}
		c.handleMessage(raw)
	}
}

// pingLoop keeps the socket alive with websocket-level pings. It exits as
// soon as a write fails; readPump owns teardown.
func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("unparseable server frame", "err", err)
		return
	}

	switch msg.Type {
	case MessageTypePeers:
		c.bus.Fire(events.Peers, msg.Peers)
	case MessageTypePeerJoined:
		if msg.Peer != nil {
			c.bus.Fire(events.PeerJoined, *msg.Peer)
		}
	case MessageTypePeerLeft:
		c.bus.Fire(events.PeerLeft, msg.PeerID)
	case MessageTypeSignal:
		c.bus.Fire(events.Signal, &msg)
	case MessageTypePing:
		c.Send(&Message{Type: MessageTypePong})
	default:
		if transfer.IsSessionFrame(msg.Type) && msg.Sender != "" {
			c.bus.Fire(events.Relay, RelayFrame{Sender: msg.Sender, Raw: raw})
			return
		}
		slog.Warn("unknown server message", "type", msg.Type)
	}
}

// connLost tears down one particular socket. A stale pump whose socket was
// already replaced must not disturb the live connection.
func (c *Client) connLost(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	down := !c.shutdown
	c.mu.Unlock()

	conn.Close()

	if down {
		c.notifyAndRetry()
	}
}

func (c *Client) notifyAndRetry() {
	c.bus.Fire(events.NotifyUser, "Connection lost. Retrying in "+c.cfg.ReconnectDelay.String())
	c.scheduleRetry()
}

// scheduleRetry arms the single reconnect timer, clearing any pending one
// first so at most one reconnection is ever outstanding.
func (c *Client) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.Connect()
	})
}

// Shutdown sends a courtesy disconnect and closes the socket for good.
func (c *Client) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn == nil {
		return
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(&Message{Type: MessageTypeDisconnect})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	conn.Close()
}
