package cmd

import (
	"time"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/peers"
	"github.com/beamdrop/beamdrop/internal/signaling"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// Engine bundles the running core: bus, server connection, and the
// session registry, wired together the way the library expects.
type Engine struct {
	Config  *config.Config
	Bus     *events.Bus
	Client  *signaling.Client
	Manager *peers.Manager
}

// NewEngine loads configuration and assembles the core without
// connecting; callers register their bus handlers first, then Start.
func NewEngine() (*Engine, error) {
	cfg, err := config.Load(config.Options{
		Host:        flagHost,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		Insecure:    flagInsecure,
		RTCDisabled: flagNoRTC,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}

	bus := events.NewBus()
	client := signaling.NewClient(cfg, bus)
	manager := peers.NewManager(bus, cfg, client)

	return &Engine{Config: cfg, Bus: bus, Client: client, Manager: manager}, nil
}

// Start connects to the rendezvous server.
func (e *Engine) Start() error {
	return e.Client.Connect()
}

// Close shuts down sessions and the server link.
func (e *Engine) Close() {
	e.Manager.Shutdown()
	e.Client.Shutdown()
}

// WaitForPeers blocks until the server announces the room's peer list or
// the timeout expires. Handlers must be registered before Start, so this
// buffers the first announcement itself.
func WaitForPeers(e *Engine, timeout time.Duration) ([]signaling.Peer, error) {
	ch := make(chan []signaling.Peer, 1)
	e.Bus.On(events.Peers, func(detail any) {
		if ps, ok := detail.([]signaling.Peer); ok {
			select {
			case ch <- ps:
			default:
			}
		}
	})

	if err := e.Start(); err != nil {
		return nil, err
	}

	select {
	case ps := <-ch:
		return ps, nil
	case <-time.After(timeout):
		return nil, transfer.WrapError("wait for peers", transfer.ErrSignalingError, "no peer announcement")
	}
}
