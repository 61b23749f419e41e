package transport

import (
	"log/slog"
	"time"
)

// Options tunes a transport half. The zero value is ready to use.
type Options struct {
	// SendQueueLimit bounds the Outbound queue. Zero means unbounded, in which
	// case Submit never fails for lack of room.
	SendQueueLimit int

	// RecvQueueLimit bounds the Inbound queue. When it is full the worker
	// stops reading, which pushes back on the peer. Zero means unbounded.
	RecvQueueLimit int

	// WriteTimeout bounds each message write when the stream supports
	// SetWriteDeadline (net.Conn does). Zero means no timeout.
	WriteTimeout time.Duration

	// Logger receives worker lifecycle events. Nil means slog.Default().
	Logger *slog.Logger
}

// applyDefaults fills zero-valued fields with sensible defaults.
func (o *Options) applyDefaults() {
	if o.SendQueueLimit < 0 {
		o.SendQueueLimit = 0
	}
	if o.RecvQueueLimit < 0 {
		o.RecvQueueLimit = 0
	}
	if o.WriteTimeout < 0 {
		o.WriteTimeout = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
