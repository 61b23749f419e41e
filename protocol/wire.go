package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WireFormat describes the binary layout of T for the Binary codec.
//
// Layout rules, shared by every format in this package:
//
//	variant tag   uint32 LE
//	integers      fixed width, LE
//	bool          one byte, 0 or 1
//	bytes/string  uint64 LE length, then the raw bytes
//
// Every field has a length that is either fixed or written in front of it,
// so an encoded value is self-delimiting.
type WireFormat[T any] interface {
	AppendWire(buf []byte, v T) ([]byte, error)
	ReadWire(r *WireReader) (T, error)
}

// Binary returns a Codec that lays out T as described by format.
func Binary[T any](format WireFormat[T], opts ...Option) Codec[T] {
	return binaryCodec[T]{format: format, cfg: newCodecConfig(opts)}
}

type binaryCodec[T any] struct {
	format WireFormat[T]
	cfg    codecConfig
}

func (c binaryCodec[T]) NewEncoder(w io.Writer) Encoder[T] {
	return &binaryEncoder[T]{w: w, format: c.format}
}

func (c binaryCodec[T]) NewDecoder(r io.Reader) Decoder[T] {
	return &binaryDecoder[T]{r: newWireReader(r, c.cfg.maxSize), format: c.format}
}

type binaryEncoder[T any] struct {
	w      io.Writer
	format WireFormat[T]
	buf    []byte
}

// Encode assembles the whole message first so it reaches the writer in a single Write.
func (e *binaryEncoder[T]) Encode(v T) error {
	buf, err := e.format.AppendWire(e.buf[:0], v)
	if err != nil {
		return err
	}
	e.buf = buf
	_, err = e.w.Write(buf)
	return err
}

type binaryDecoder[T any] struct {
	r      *WireReader
	format WireFormat[T]
}

func (d *binaryDecoder[T]) Decode() (T, error) {
	var zero T
	// A clean end of stream is only possible before the first byte.
	if _, err := d.r.br.Peek(1); err != nil {
		return zero, err
	}
	v, err := d.format.ReadWire(d.r)
	if err != nil {
		return zero, unexpectedEOF(err)
	}
	return v, nil
}

// WireReader reads the primitive fields of a WireFormat from a buffered stream.
// A short read inside a message is reported as io.ErrUnexpectedEOF.
type WireReader struct {
	br      *bufio.Reader
	maxLen  int
	scratch [8]byte
}

// NewWireReader wraps r for use by a WireFormat outside of a Decoder.
func NewWireReader(r io.Reader, opts ...Option) *WireReader {
	return newWireReader(r, newCodecConfig(opts).maxSize)
}

func newWireReader(r io.Reader, maxLen int) *WireReader {
	return &WireReader{br: bufio.NewReader(r), maxLen: maxLen}
}

func (r *WireReader) fixed(n int) ([]byte, error) {
	b := r.scratch[:n]
	if _, err := io.ReadFull(r.br, b); err != nil {
		return nil, unexpectedEOF(err)
	}
	return b, nil
}

func (r *WireReader) U8() (uint8, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, unexpectedEOF(err)
	}
	return b, nil
}

func (r *WireReader) U16() (uint16, error) {
	b, err := r.fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *WireReader) U32() (uint32, error) {
	b, err := r.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *WireReader) U64() (uint64, error) {
	b, err := r.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Tag reads a variant tag.
func (r *WireReader) Tag() (uint32, error) { return r.U32() }

func (r *WireReader) Bool() (bool, error) {
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool byte %#x", ErrInvalidMessage, b)
	}
}

// Bytes reads a length-prefixed byte slice. The result does not alias any buffer.
func (r *WireReader) Bytes() ([]byte, error) {
	n, err := r.U64()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.maxLen) {
		return nil, ErrFrameTooLarge
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, unexpectedEOF(err)
	}
	return buf, nil
}

// Text reads a length-prefixed UTF-8 string.
func (r *WireReader) Text() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func AppendU8(buf []byte, v uint8) []byte { return append(buf, v) }

func AppendU16(buf []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(buf, v) }

func AppendU32(buf []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(buf, v) }

func AppendU64(buf []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(buf, v) }

// AppendTag writes a variant tag.
func AppendTag(buf []byte, tag uint32) []byte { return AppendU32(buf, tag) }

func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func AppendBytes(buf []byte, b []byte) []byte {
	buf = AppendU64(buf, uint64(len(b)))
	return append(buf, b...)
}

func AppendText(buf []byte, s string) []byte {
	buf = AppendU64(buf, uint64(len(s)))
	return append(buf, s...)
}
