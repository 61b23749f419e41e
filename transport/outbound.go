package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tarot/protocol"
)

type deadlineWriter interface{ SetWriteDeadline(time.Time) error }

// aborter is implemented by writers that can unblock a pending write without
// being closed.
type aborter interface{ abort() error }

// Outbound encodes submitted messages and writes them to a stream, one at a
// time and in submission order, from a dedicated worker goroutine.
//
// Thread safety: Submit may be called concurrently, but order is only defined
// between calls made by one goroutine.
//
// Lifecycle: the worker starts in NewOutbound and runs until Close, Shutdown,
// or the first write failure. A write failure is terminal: Err reports it,
// Done is closed, and later Submit calls fail with ErrClosed wrapping it.
// A message the codec refuses to encode is skipped and counted in Rejected.
type Outbound[T any] struct {
	w      io.Writer
	tw     *trackingWriter
	enc    protocol.Encoder[T]
	q      *queue[T]
	opts   Options
	logger *slog.Logger

	done     chan struct{}
	aborting atomic.Bool
	rejected atomic.Int64

	mu  sync.Mutex
	err error // terminal write failure

	closeOnce   sync.Once
	closeErr    error
	releaseOnce sync.Once
	releaseErr  error
}

// NewOutbound binds a new Outbound to w and starts its worker. The Outbound
// owns w from now on and closes it on Close if w implements io.Closer.
func NewOutbound[T any](w io.Writer, codec protocol.Codec[T], opts Options) *Outbound[T] {
	opts.applyDefaults()
	tw := &trackingWriter{Writer: w}
	o := &Outbound[T]{
		w:      w,
		tw:     tw,
		enc:    codec.NewEncoder(tw),
		q:      newQueue[T](opts.SendQueueLimit),
		opts:   opts,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}
	go o.writeLoop()
	return o
}

// Submit enqueues msg for transmission. It never waits for the network.
//
// Errors: ErrBackpressure when a bounded queue is full; ErrClosed after
// Close/Shutdown or after the worker stopped on a write failure (the
// *WriteError is wrapped and reachable with errors.As).
func (o *Outbound[T]) Submit(msg T) error {
	err := o.q.offer(msg)
	if errors.Is(err, errQueueClosed) {
		if cause := o.Err(); cause != nil {
			return fmt.Errorf("%w: %w", ErrClosed, cause)
		}
		return ErrClosed
	}
	return err
}

// Pending returns the number of submitted messages not yet handed to the encoder.
func (o *Outbound[T]) Pending() int { return o.q.len() }

// Rejected returns how many submitted messages the codec refused to encode.
// Such messages are skipped; nothing of them reaches the stream.
func (o *Outbound[T]) Rejected() int { return int(o.rejected.Load()) }

// Done is closed when the worker has exited.
func (o *Outbound[T]) Done() <-chan struct{} { return o.done }

// Err returns the terminal write failure, or nil.
func (o *Outbound[T]) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Close stops accepting messages and waits until every message submitted
// before it has been written, then closes the stream. Messages are dropped
// only if the worker already failed. Close is idempotent and returns the
// error of closing the stream.
//
// If the stream is not an io.Closer and a write blocks forever, Close blocks
// with it; use Shutdown to bound the wait.
func (o *Outbound[T]) Close() error {
	o.closeOnce.Do(func() {
		o.q.close()
		<-o.done
		o.closeErr = o.release()
	})
	return o.closeErr
}

// Shutdown is Close bounded by ctx. When ctx is done before the queue is
// drained, the remaining messages are discarded, the stream is closed to
// unblock a pending write, and ctx.Err() is returned.
func (o *Outbound[T]) Shutdown(ctx context.Context) error {
	o.q.close()
	select {
	case <-o.done:
	case <-ctx.Done():
		o.aborting.Store(true)
		dropped := o.q.abort()
		_ = o.interrupt()
		<-o.done
		o.logger.Warn("outbound: shutdown deadline exceeded", "dropped", dropped)
		return ctx.Err()
	}
	return o.Close()
}

// interrupt unblocks a write in progress, closing the stream unless the
// writer knows a gentler way.
func (o *Outbound[T]) interrupt() error {
	if a, ok := o.w.(aborter); ok {
		return a.abort()
	}
	return o.release()
}

func (o *Outbound[T]) release() error {
	o.releaseOnce.Do(func() {
		o.releaseErr = closeStream(o.w)
	})
	return o.releaseErr
}

func (o *Outbound[T]) writeLoop() {
	defer close(o.done)

	for {
		msg, ok := o.q.pop()
		if !ok {
			o.logger.Debug("outbound: worker stopped")
			return
		}
		o.tw.touched = false
		if err := o.write(msg); err != nil {
			if o.aborting.Load() {
				return
			}
			if !o.tw.touched {
				o.rejected.Add(1)
				o.logger.Warn("outbound: message rejected by codec, skipped", "err", err)
				continue
			}
			werr := &WriteError{Err: err}
			o.mu.Lock()
			o.err = werr
			o.mu.Unlock()

			dropped := o.q.abort()
			o.logger.Warn("outbound: write failed, worker stopped",
				"err", err, "peer_gone", werr.PeerGone(), "dropped", dropped)
			return
		}
	}
}

func (o *Outbound[T]) write(msg T) error {
	if o.opts.WriteTimeout > 0 {
		if dw, ok := o.w.(deadlineWriter); ok {
			if err := dw.SetWriteDeadline(time.Now().Add(o.opts.WriteTimeout)); err == nil {
				defer dw.SetWriteDeadline(time.Time{})
			}
		}
	}
	return o.enc.Encode(msg)
}

// trackingWriter records whether an encoder got as far as the stream, which
// tells a value the codec refused apart from a failed write.
type trackingWriter struct {
	io.Writer
	touched bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	t.touched = true
	return t.Writer.Write(p)
}
