package server

import (
	"log/slog"
	"time"
)

// ---------------------------------------------------------------------------
// Network
// ---------------------------------------------------------------------------

const (
	defaultHost    = "127.0.0.1" // localhost only; override with Options.Host
	defaultNetwork = NetworkTCP
	defaultName    = "tarot"
)

// Supported network types for Options.Network.
const (
	NetworkTCP  = "tcp"
	NetworkTCP4 = "tcp4"
	NetworkTCP6 = "tcp6"
	NetworkUnix = "unix"
)

var supportedNetworks = map[string]bool{
	NetworkTCP:  true,
	NetworkTCP4: true,
	NetworkTCP6: true,
	NetworkUnix: true,
}

// WebSocketPath is where the websocket listener accepts clients.
const WebSocketPath = "/tarot"

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type Options struct {
	Network string // tcp, tcp4, tcp6 or unix
	Host    string // listen address, or socket path for unix
	Port    uint16 // ignored for unix; 0 picks a free port

	// WSAddr enables a websocket listener (host:port) next to the stream
	// listener. Empty disables it.
	WSAddr string

	// Name is the text sent back in PingAnswer.
	Name string

	WriteTimeout   time.Duration
	MaxFrameSize   int
	SendQueueLimit int

	// DrainTimeout bounds how long a closing session may spend flushing
	// answers that are still queued.
	DrainTimeout time.Duration

	Logger *slog.Logger
}

const (
	defaultWriteTimeout = 5 * time.Second
	defaultMaxFrameSize = 16 << 20 // 16MB
	defaultDrainTimeout = time.Second
)

// applyDefaults fills zero-valued fields with sensible defaults.
func (o *Options) applyDefaults() {
	if o.Network == "" {
		o.Network = defaultNetwork
	}
	if o.Host == "" && o.Network != NetworkUnix {
		o.Host = defaultHost
	}
	if o.Name == "" {
		o.Name = defaultName
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = defaultMaxFrameSize
	}
	if o.SendQueueLimit < 0 {
		o.SendQueueLimit = 0
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = defaultDrainTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
