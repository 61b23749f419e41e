package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"tarot/protocol"
)

// Supported networks for Dial.
const (
	NetworkTCP  = "tcp"
	NetworkTCP4 = "tcp4"
	NetworkTCP6 = "tcp6"
	NetworkUnix = "unix"
	NetworkWS   = "ws"  // WebSocket, binary messages carry the byte stream
	NetworkWSS  = "wss" // WebSocket over TLS
)

// Dial establishes a byte stream to addr. For ws/wss, addr is either a full
// URL or host[:port][/path].
//
// Connection setup is all Dial does: the result is meant to be handed to
// NewDuplex, NewOutbound or NewInbound.
func Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	switch network {
	case NetworkTCP, NetworkTCP4, NetworkTCP6, NetworkUnix:
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn, nil
	case NetworkWS, NetworkWSS:
		url := addr
		if !strings.Contains(addr, "://") {
			url = network + "://" + addr
		}
		c, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		c.SetReadLimit(protocol.DefaultMaxFrameSize)
		// The stream outlives ctx, which only bounds the handshake.
		return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

// AcceptWebSocket upgrades an HTTP request to a WebSocket and exposes it as a
// byte stream. The stream is tied to the request context, so the handler
// must not return before it is done with the stream.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (net.Conn, error) {
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, fmt.Errorf("accept websocket: %w", err)
	}
	c.SetReadLimit(protocol.DefaultMaxFrameSize)
	return websocket.NetConn(r.Context(), c, websocket.MessageBinary), nil
}
