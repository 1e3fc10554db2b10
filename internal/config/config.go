package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values (production)
const (
	DefaultHost     = "beamdrop.qzz.io"
	DefaultDevPort  = 3000
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "turn:beamdrop.qzz.io"
	DefaultTURNUser = "beamdrop"
	DefaultTURNPass = "beamdrop-secret"
)

// Transfer protocol constants. Chunk size bounds a single binary frame;
// the partition size bounds how many bytes may be in flight before the
// receiver must acknowledge.
const (
	DefaultChunkSize        = 64_000
	DefaultMaxPartitionSize = 1_000_000
	DefaultReconnectDelay   = 5 * time.Second
	DefaultProgressStep     = 0.01
)

// Config holds application configuration
type Config struct {
	// Host is the rendezvous server domain
	Host string

	// DevPort is the local server port used when Host is localhost
	DevPort int

	// Secure selects wss:// over ws://
	Secure bool

	// RTCDisabled forces the relayed fallback path
	RTCDisabled bool

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// Transfer tuning
	ChunkSize        int64
	MaxPartitionSize int64
	ReconnectDelay   time.Duration
	ProgressStep     float64
}

// Options for loading config with CLI flag overrides
type Options struct {
	Host        string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	Insecure    bool
	RTCDisabled bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	host := firstNonEmpty(opts.Host, os.Getenv("BEAMDROP_HOST"), DefaultHost)
	stunServer := firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turnServer := firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN)
	turnUser := firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass)

	devPort := DefaultDevPort
	if p := os.Getenv("BEAMDROP_DEV_PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid BEAMDROP_DEV_PORT: %w", err)
		}
		devPort = n
	}

	return &Config{
		Host:             host,
		DevPort:          devPort,
		Secure:           !opts.Insecure && !IsLocalhost(host),
		RTCDisabled:      opts.RTCDisabled,
		STUNServer:       stunServer,
		TURNServer:       turnServer,
		TURNUser:         turnUser,
		TURNPass:         turnPass,
		ChunkSize:        DefaultChunkSize,
		MaxPartitionSize: DefaultMaxPartitionSize,
		ReconnectDelay:   DefaultReconnectDelay,
		ProgressStep:     DefaultProgressStep,
	}, nil
}

// RTCSupported reports whether this endpoint can negotiate direct channels.
func (c *Config) RTCSupported() bool {
	return !c.RTCDisabled
}

// ServerURL builds the rendezvous websocket endpoint. Localhost hosts dial
// the development port directly; everything else goes through the /server
// reverse-proxy prefix. The path advertises our transport capability so the
// server can pair capabilities.
func (c *Config) ServerURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}

	path := "/fallback"
	if c.RTCSupported() {
		path = "/webrtc"
	}

	if IsLocalhost(c.Host) {
		return fmt.Sprintf("%s://localhost:%d%s", scheme, c.DevPort, path)
	}
	return fmt.Sprintf("%s://%s/server%s", scheme, c.Host, path)
}

// IsLocalhost reports whether host names the local development server.
func IsLocalhost(host string) bool {
	h := host
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	return h == "localhost" || h == "127.0.0.1"
}

// GetSTUNServers returns STUN server URLs if configured
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
