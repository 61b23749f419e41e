package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"tarot/protocol"
)

// result is one decode attempt: a message or the error that ended the stream.
type result[T any] struct {
	msg T
	err error
}

// Inbound reads and decodes messages from a stream on a dedicated worker
// goroutine and queues them for the application, in wire order.
//
// Thread safety: Poll and Recv may be called from any goroutine; each
// message is delivered exactly once.
//
// Terminal conditions (peer closed the stream, read failure, undecodable
// bytes, local Close) are queued behind the messages decoded before them,
// so nothing that arrived intact is lost. Once reported, the same terminal
// error is returned by every later Poll or Recv.
type Inbound[T any] struct {
	r      *readTracker
	dec    protocol.Decoder[T]
	q      *queue[result[T]]
	logger *slog.Logger

	done    chan struct{}
	closing atomic.Bool

	mu       sync.Mutex
	terminal error // reported to the application
	cause    error // seen by the worker

	closeOnce sync.Once
	closeErr  error
}

// NewInbound binds a new Inbound to r and starts its worker. The Inbound
// owns r from now on and closes it on Close if r implements io.Closer.
func NewInbound[T any](r io.Reader, codec protocol.Codec[T], opts Options) *Inbound[T] {
	opts.applyDefaults()
	rt := &readTracker{r: r}
	in := &Inbound[T]{
		r:      rt,
		dec:    codec.NewDecoder(rt),
		q:      newQueue[result[T]](opts.RecvQueueLimit),
		logger: opts.Logger,
		done:   make(chan struct{}),
	}
	go in.readLoop()
	return in
}

// Poll returns the next decoded message without blocking.
//
//	msg, true,  nil  a message
//	zero, false, nil  nothing has arrived yet
//	zero, false, err  terminal: ErrStreamClosed, a *DecodeError, or ErrClosed
func (in *Inbound[T]) Poll() (T, bool, error) {
	var zero T
	if err := in.terminalErr(); err != nil {
		return zero, false, err
	}
	res, ok := in.q.tryPop()
	if !ok {
		// The queue only closes after the worker queued its terminal result,
		// or after Close, which records ErrClosed first.
		return zero, false, in.terminalErr()
	}
	if res.err != nil {
		return zero, false, in.setTerminal(res.err)
	}
	return res.msg, true, nil
}

// Recv waits for the next message, a terminal condition, or ctx.
func (in *Inbound[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if err := in.terminalErr(); err != nil {
		return zero, err
	}
	res, err := in.q.popContext(ctx)
	if errors.Is(err, errQueueClosed) {
		return zero, in.terminalErr()
	}
	if err != nil {
		return zero, err
	}
	if res.err != nil {
		return zero, in.setTerminal(res.err)
	}
	return res.msg, nil
}

// Buffered returns the number of decoded messages waiting to be polled.
func (in *Inbound[T]) Buffered() int { return in.q.len() }

// Done is closed when the worker has exited.
func (in *Inbound[T]) Done() <-chan struct{} { return in.done }

// Err returns the condition that stopped the worker, or nil while it runs.
// Unlike Poll, it does not wait for queued messages to be consumed.
func (in *Inbound[T]) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cause
}

// Close closes the stream to unblock the worker, waits for it to exit, and
// discards undelivered messages. Later Poll and Recv calls report ErrClosed
// unless a terminal condition was already reported. Close is idempotent.
//
// If the stream is not an io.Closer, Close waits for the pending read to return.
func (in *Inbound[T]) Close() error {
	return in.closeWith(func() error { return closeStream(in.r.r) })
}

// closeWith is Close with a custom way of releasing the stream.
func (in *Inbound[T]) closeWith(release func() error) error {
	in.closeOnce.Do(func() {
		in.closing.Store(true)
		in.closeErr = release()
		in.setTerminal(ErrClosed)
		in.q.abort()
		<-in.done
	})
	return in.closeErr
}

func (in *Inbound[T]) terminalErr() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.terminal
}

// setTerminal records err unless a terminal error is already recorded, and
// returns the recorded one.
func (in *Inbound[T]) setTerminal(err error) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.terminal == nil {
		in.terminal = err
	}
	return in.terminal
}

func (in *Inbound[T]) readLoop() {
	defer close(in.done)
	defer in.q.close()

	for {
		msg, err := in.dec.Decode()
		if err != nil {
			err = in.classify(err)
			in.mu.Lock()
			in.cause = err
			in.mu.Unlock()

			if errors.Is(err, ErrCorruptStream) {
				in.logger.Warn("inbound: undecodable data, worker stopped", "err", err)
			} else {
				in.logger.Debug("inbound: worker stopped", "err", err)
			}
			_ = in.q.put(result[T]{err: err})
			return
		}
		if err := in.q.put(result[T]{msg: msg}); err != nil {
			// Closed locally.
			return
		}
	}
}

// classify maps a decoder error to the terminal condition it represents.
func (in *Inbound[T]) classify(err error) error {
	if in.closing.Load() {
		return ErrClosed
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrStreamClosed, err)
	}
	if readErr := in.r.err(); readErr != nil && errors.Is(err, readErr) {
		return fmt.Errorf("%w: %w", ErrStreamClosed, err)
	}
	return &DecodeError{Err: err}
}

// readTracker remembers the first error returned by the underlying reader so
// read failures can be told apart from codec failures.
type readTracker struct {
	r io.Reader

	mu      sync.Mutex
	readErr error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil {
		t.mu.Lock()
		if t.readErr == nil {
			t.readErr = err
		}
		t.mu.Unlock()
	}
	return n, err
}

func (t *readTracker) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readErr
}
