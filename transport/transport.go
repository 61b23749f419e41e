// Package transport turns a byte stream into typed, queue-backed message channels.
//
// A stream endpoint usually pairs one Outbound (application → peer) and one
// Inbound (peer → application), each bound to its own message type and each
// driven by one worker goroutine. The application never blocks on the network:
// Outbound.Submit only enqueues, and Inbound.Poll only dequeues.
//
// Direction and message type are fixed by the Go type of the instance:
// an Outbound has no read operation and an Inbound has no write operation.
package transport

import (
	"errors"
	"fmt"
	"io"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_stream_test.go -package=transport

// Stream is a connected, ordered, reliable byte stream, typically a net.Conn.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

var (
	// ErrClosed is returned once a transport was closed locally or its
	// worker terminated. Submit wraps the terminal cause when there is one.
	ErrClosed = errors.New("transport: closed")

	// ErrStreamClosed reports that the peer closed the stream or a read failed.
	// No further messages will be produced.
	ErrStreamClosed = errors.New("transport: stream closed")

	// ErrCorruptStream reports bytes that do not decode as a message. The
	// stream cannot be resynchronized, so it is terminal.
	ErrCorruptStream = errors.New("transport: corrupt stream")

	// ErrBackpressure is returned by Submit when a bounded send queue is full.
	ErrBackpressure = errors.New("transport: send queue full")

	ErrUnsupportedNetwork = errors.New("transport: unsupported network")
)

// WriteError is the terminal error of an Outbound whose stream write failed.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "transport: write failed: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

// PeerGone reports whether the failure means the peer went away
// (broken pipe, connection reset or aborted) rather than a local problem.
func (e *WriteError) PeerGone() bool { return isPeerGone(e.Err) }

// DecodeError is the terminal error of an Inbound that read bytes the codec
// rejected. It matches ErrCorruptStream with errors.Is.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %v", ErrCorruptStream, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrCorruptStream }

// closeStream closes s if it can be closed.
func closeStream(s any) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
