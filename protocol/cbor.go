package protocol

import (
	"io"

	cbor "github.com/fxamacker/cbor/v2"
)

// CBOR returns a Codec that encodes T as one deterministic CBOR data item
// (RFC 8949 core deterministic encoding). CBOR items carry their own
// lengths, so no extra framing is needed.
//
// WithMaxSize bounds the encoded size of a single item. The decoder fails
// with ErrFrameTooLarge as soon as a pending item grows past it, before the
// rest of the item is buffered.
func CBOR[T any](opts ...Option) (Codec[T], error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec[T]{enc: em, dec: dm, cfg: newCodecConfig(opts)}, nil
}

type cborCodec[T any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
	cfg codecConfig
}

func (c cborCodec[T]) NewEncoder(w io.Writer) Encoder[T] {
	return cborEncoder[T]{enc: c.enc.NewEncoder(w)}
}

func (c cborCodec[T]) NewDecoder(r io.Reader) Decoder[T] {
	lr := &itemLimitReader{r: r, max: c.cfg.maxSize}
	lr.dec = c.dec.NewDecoder(lr)
	return cborDecoder[T]{dec: lr.dec}
}

type cborEncoder[T any] struct{ enc *cbor.Encoder }

func (e cborEncoder[T]) Encode(v T) error { return e.enc.Encode(v) }

type cborDecoder[T any] struct{ dec *cbor.Decoder }

func (d cborDecoder[T]) Decode() (T, error) {
	var v T
	if err := d.dec.Decode(&v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// itemLimitReader feeds a cbor.Decoder. The decoder only reads while its
// buffer holds no complete item, so everything read past NumBytesRead
// belongs to the pending item.
type itemLimitReader struct {
	r    io.Reader
	dec  *cbor.Decoder
	max  int
	read int
}

func (l *itemLimitReader) Read(p []byte) (int, error) {
	pending := l.read - l.dec.NumBytesRead()
	if pending >= l.max {
		return 0, ErrFrameTooLarge
	}
	if room := l.max - pending; len(p) > room {
		p = p[:room]
	}
	n, err := l.r.Read(p)
	l.read += n
	return n, err
}
