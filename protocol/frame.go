package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Framer reads and writes length-prefixed frames.
//
// Framing is required for payload encodings that do not carry their own
// boundaries (JSON documents, raw protobuf, opaque blobs): a byte stream
// does not preserve message boundaries.
type Framer struct {
	r          *bufio.Reader
	w          *bufio.Writer
	maxPayload int
}

// NewFramer wraps r/w with buffering. Either side may be nil when the
// Framer is only used in one direction.
func NewFramer(r io.Reader, w io.Writer) *Framer {
	f := &Framer{maxPayload: DefaultMaxFrameSize}
	if r != nil {
		f.r = bufio.NewReader(r)
	}
	if w != nil {
		f.w = bufio.NewWriter(w)
	}
	return f
}

// SetMaxPayload sets the maximum permitted payload size.
// If you set this too large, a peer can force large allocations.
func (f *Framer) SetMaxPayload(n int) { f.maxPayload = n }

func (f *Framer) Read() ([]byte, error) { return readFrameMax(f.r, f.maxPayload) }

// Write writes one frame and flushes it.
func (f *Framer) Write(payload []byte) error {
	if err := writeFrame(f.w, payload); err != nil {
		return err
	}
	return f.w.Flush()
}

// Frame format:
//
//	[4 bytes frameLen LE][frameLen bytes payload]
//
// This is intentionally simple: io.ReadFull is the "state machine".
func readFrameMax(r io.Reader, maxPayload int) ([]byte, error) {
	if maxPayload <= 0 {
		return nil, ErrInvalidFrame
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	ln := int(binary.LittleEndian.Uint32(hdr[:]))
	if ln < 0 || ln > maxPayload {
		return nil, ErrFrameTooLarge
	}
	if ln == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, ln)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, unexpectedEOF(err)
	}
	return payload, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Framed returns a Codec that puts each marshaled message in its own
// length-prefixed frame. Use it for payload encodings that are not
// self-delimiting.
func Framed[T any](marshal func(T) ([]byte, error), unmarshal func([]byte) (T, error), opts ...Option) Codec[T] {
	return framedCodec[T]{marshal: marshal, unmarshal: unmarshal, cfg: newCodecConfig(opts)}
}

type framedCodec[T any] struct {
	marshal   func(T) ([]byte, error)
	unmarshal func([]byte) (T, error)
	cfg       codecConfig
}

func (c framedCodec[T]) NewEncoder(w io.Writer) Encoder[T] {
	return &framedEncoder[T]{f: NewFramer(nil, w), marshal: c.marshal}
}

func (c framedCodec[T]) NewDecoder(r io.Reader) Decoder[T] {
	f := NewFramer(r, nil)
	f.SetMaxPayload(c.cfg.maxSize)
	return &framedDecoder[T]{f: f, unmarshal: c.unmarshal}
}

type framedEncoder[T any] struct {
	f       *Framer
	marshal func(T) ([]byte, error)
}

func (e *framedEncoder[T]) Encode(v T) error {
	payload, err := e.marshal(v)
	if err != nil {
		return err
	}
	return e.f.Write(payload)
}

type framedDecoder[T any] struct {
	f         *Framer
	unmarshal func([]byte) (T, error)
}

func (d *framedDecoder[T]) Decode() (T, error) {
	var zero T
	payload, err := d.f.Read()
	if err != nil {
		return zero, err
	}
	return d.unmarshal(payload)
}
