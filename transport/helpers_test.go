package transport

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tarot/protocol"
)

// testPacket is a small two-variant packet: P1 has no payload, P2 one u16.
type testPacket interface{ isTestPacket() }

type P1 struct{}

type P2 struct{ N uint16 }

func (P1) isTestPacket() {}
func (P2) isTestPacket() {}

type testFormat struct{}

func (testFormat) AppendWire(buf []byte, p testPacket) ([]byte, error) {
	switch p := p.(type) {
	case P1:
		return protocol.AppendTag(buf, 0), nil
	case P2:
		return protocol.AppendU16(protocol.AppendTag(buf, 1), p.N), nil
	default:
		return nil, fmt.Errorf("%w: %T", protocol.ErrUnknownVariant, p)
	}
}

func (testFormat) ReadWire(r *protocol.WireReader) (testPacket, error) {
	tag, err := r.Tag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return P1{}, nil
	case 1:
		n, err := r.U16()
		if err != nil {
			return nil, err
		}
		return P2{N: n}, nil
	default:
		return nil, fmt.Errorf("%w: tag %d", protocol.ErrUnknownVariant, tag)
	}
}

var testCodec = protocol.Binary[testPacket](testFormat{})

func encode(t testing.TB, msgs ...testPacket) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := testCodec.NewEncoder(&buf)
	for _, m := range msgs {
		require.NoError(t, enc.Encode(m))
	}
	return buf.Bytes()
}

func testOptions() Options {
	return Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// syncBuffer is an in-memory sink safe to read while a worker writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// pollAll polls in until a terminal error shows up and returns everything
// received before it.
func pollAll[T any](t testing.TB, in *Inbound[T]) ([]T, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var got []T
	for time.Now().Before(deadline) {
		msg, ok, err := in.Poll()
		if err != nil {
			return got, err
		}
		if ok {
			got = append(got, msg)
			continue
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no terminal condition after %d messages", len(got))
	return nil, nil
}
