// Package protocol defines how typed messages are laid out on a byte stream.
//
// A Codec never relies on end-of-stream markers: decoding one message consumes
// exactly the bytes its encoding produced and leaves the stream positioned at
// the start of the next message. Codecs for formats that are not
// self-delimiting on their own (see Framed) add an explicit length prefix.
package protocol

import (
	"errors"
	"io"
)

// DefaultMaxFrameSize is a safety limit to avoid unbounded allocations on malformed input.
// It caps every length field a decoder trusts (string, byte slice, frame or message size).
const DefaultMaxFrameSize = 16 << 20 // 16 MiB

var (
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
	ErrInvalidFrame   = errors.New("protocol: invalid frame")
	ErrInvalidMessage = errors.New("protocol: invalid message")
	ErrUnknownVariant = errors.New("protocol: unknown variant")
)

// Codec creates per-stream encoders and decoders for messages of type T.
//
// A Codec holds no stream state and may be shared by any number of streams.
// Read-ahead buffers and similar state live in the Encoder and Decoder.
type Codec[T any] interface {
	NewEncoder(w io.Writer) Encoder[T]
	NewDecoder(r io.Reader) Decoder[T]
}

// Encoder writes messages to one stream.
type Encoder[T any] interface {
	// Encode writes exactly one message. The message is handed to the
	// underlying writer before Encode returns; nothing stays buffered.
	Encode(v T) error
}

// Decoder reads messages from one stream.
type Decoder[T any] interface {
	// Decode reads exactly one message. It returns io.EOF only when the stream
	// ends on a message boundary; a stream ending mid-message yields
	// io.ErrUnexpectedEOF. Errors returned by the underlying reader are
	// passed through unchanged.
	Decode() (T, error)
}

type codecConfig struct {
	maxSize int
}

// Option tunes a codec.
type Option func(*codecConfig)

// WithMaxSize sets the largest length field a decoder accepts.
// If you set this too large, a peer can force large allocations.
func WithMaxSize(n int) Option {
	return func(c *codecConfig) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func newCodecConfig(opts []Option) codecConfig {
	cfg := codecConfig{maxSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// unexpectedEOF turns a bare io.EOF seen after the first byte of a message
// into io.ErrUnexpectedEOF.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
