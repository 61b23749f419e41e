package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tarot/protocol"
)

var errHalfDone = errors.New("transport: half done")

// Duplex pairs an Outbound and an Inbound on one stream. Out is the type the
// application sends, In the type it receives; a peer uses the reciprocal pair.
//
// The halves share nothing but the stream and have no relative ordering.
type Duplex[Out, In any] struct {
	// ID identifies the connection in logs.
	ID string

	conn Stream
	out  *Outbound[Out]
	in   *Inbound[In]

	closeOnce sync.Once
	closeErr  error
}

// NewDuplex starts both halves on conn. The Duplex owns conn and closes it
// exactly once, in Close or Shutdown.
func NewDuplex[Out, In any](conn Stream, out protocol.Codec[Out], in protocol.Codec[In], opts Options) *Duplex[Out, In] {
	opts.applyDefaults()
	id := uuid.NewString()
	opts.Logger = opts.Logger.With("conn_id", id)
	if nc, ok := conn.(net.Conn); ok && nc.RemoteAddr() != nil {
		opts.Logger = opts.Logger.With("remote", nc.RemoteAddr().String())
	}
	inbound := NewInbound(readHalf{conn}, in, opts)
	return &Duplex[Out, In]{
		ID:   id,
		conn: conn,
		out:  NewOutbound(writeHalf{s: conn, closing: &inbound.closing}, out, opts),
		in:   inbound,
	}
}

// Submit enqueues msg on the outbound half. See Outbound.Submit.
func (d *Duplex[Out, In]) Submit(msg Out) error { return d.out.Submit(msg) }

// Poll takes the next message from the inbound half. See Inbound.Poll.
func (d *Duplex[Out, In]) Poll() (In, bool, error) { return d.in.Poll() }

// Recv waits for the next message on the inbound half. See Inbound.Recv.
func (d *Duplex[Out, In]) Recv(ctx context.Context) (In, error) { return d.in.Recv(ctx) }

// Outbound returns the transmit half.
func (d *Duplex[Out, In]) Outbound() *Outbound[Out] { return d.out }

// Inbound returns the receive half.
func (d *Duplex[Out, In]) Inbound() *Inbound[In] { return d.in }

// Wait blocks until either half's worker stops or ctx is done. It returns
// the terminal error of the half that stopped first (nil when it stopped
// because of a local close), or ctx.Err().
func (d *Duplex[Out, In]) Wait(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return awaitHalf(gctx, d.out.Done(), d.out.Err) })
	g.Go(func() error { return awaitHalf(gctx, d.in.Done(), d.in.Err) })
	err := g.Wait()
	if errors.Is(err, errHalfDone) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func awaitHalf(ctx context.Context, done <-chan struct{}, errFn func() error) error {
	select {
	case <-done:
		if err := errFn(); err != nil {
			return err
		}
		return errHalfDone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the outbound half, then closes the stream and the inbound half.
func (d *Duplex[Out, In]) Close() error {
	d.closeOnce.Do(func() {
		_ = d.out.Close()
		d.closeErr = d.in.closeWith(d.conn.Close)
	})
	return d.closeErr
}

// Shutdown is Close with the outbound drain bounded by ctx.
func (d *Duplex[Out, In]) Shutdown(ctx context.Context) error {
	err := d.out.Shutdown(ctx)
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}

// writeHalf hands the stream to an Outbound without giving it the right to
// close it; the Duplex closes the stream itself.
type writeHalf struct {
	s       Stream
	closing *atomic.Bool // the Inbound's, set before the stream is torn down under it
}

func (h writeHalf) Write(p []byte) (int, error) { return h.s.Write(p) }

func (h writeHalf) SetWriteDeadline(t time.Time) error {
	if dw, ok := h.s.(deadlineWriter); ok {
		return dw.SetWriteDeadline(t)
	}
	return nil
}

func (h writeHalf) Close() error { return nil }

// abort unblocks a pending write. Expiring the write deadline leaves the read
// side alone; streams without deadlines can only be closed as a whole.
func (h writeHalf) abort() error {
	if dw, ok := h.s.(deadlineWriter); ok {
		return dw.SetWriteDeadline(time.Unix(1, 0))
	}
	h.closing.Store(true)
	return h.s.Close()
}

// readHalf hides Close from an Inbound; the Duplex closes the stream itself.
type readHalf struct{ r io.Reader }

func (h readHalf) Read(p []byte) (int, error) { return h.r.Read(p) }
