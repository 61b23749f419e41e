package protocol

import (
	"bufio"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/proto"
)

// Proto returns a Codec for protobuf messages. Each message is preceded by
// its size as a varint, the same layout as Java's writeDelimitedTo.
// newMsg must return a fresh, empty message for every call.
func Proto[T proto.Message](newMsg func() T, opts ...Option) Codec[T] {
	return protoCodec[T]{newMsg: newMsg, cfg: newCodecConfig(opts)}
}

type protoCodec[T proto.Message] struct {
	newMsg func() T
	cfg    codecConfig
}

func (c protoCodec[T]) NewEncoder(w io.Writer) Encoder[T] {
	return &protoEncoder[T]{
		w:    bufio.NewWriter(w),
		opts: protodelim.MarshalOptions{MarshalOptions: proto.MarshalOptions{Deterministic: true}},
	}
}

func (c protoCodec[T]) NewDecoder(r io.Reader) Decoder[T] {
	return &protoDecoder[T]{
		r:      bufio.NewReader(r),
		newMsg: c.newMsg,
		opts:   protodelim.UnmarshalOptions{MaxSize: int64(c.cfg.maxSize)},
	}
}

type protoEncoder[T proto.Message] struct {
	w    *bufio.Writer
	opts protodelim.MarshalOptions
}

func (e *protoEncoder[T]) Encode(v T) error {
	if _, err := e.opts.MarshalTo(e.w, v); err != nil {
		return err
	}
	return e.w.Flush()
}

type protoDecoder[T proto.Message] struct {
	r      *bufio.Reader
	newMsg func() T
	opts   protodelim.UnmarshalOptions
}

func (d *protoDecoder[T]) Decode() (T, error) {
	m := d.newMsg()
	if err := d.opts.UnmarshalFrom(d.r, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}
