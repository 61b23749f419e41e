package server

import (
	"context"
	"errors"
	"net"

	"tarot/protocol"
	"tarot/transport"
)

// session is one connected player.
type session = transport.Duplex[protocol.Clientbound, protocol.Serverbound]

func (s *Server) newSession(conn net.Conn) *session {
	return transport.NewDuplex(conn,
		protocol.ClientboundCodec(),
		protocol.ServerboundCodec(protocol.WithMaxSize(s.opts.MaxFrameSize)),
		transport.Options{
			SendQueueLimit: s.opts.SendQueueLimit,
			WriteTimeout:   s.opts.WriteTimeout,
			Logger:         s.log(),
		})
}

func (s *Server) serveConn(conn net.Conn) {
	sess := s.newSession(conn)
	logger := s.log().With("conn_id", sess.ID)

	s.sessions.Add(1)
	logger.Info("session opened")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DrainTimeout)
		defer cancel()
		if err := sess.Shutdown(ctx); err != nil {
			logger.Debug("session close", "err", err)
		}
		s.sessions.Add(-1)
		logger.Info("session closed")
	}()

	for {
		pkt, err := sess.Recv(s.ctx)
		if err != nil {
			switch {
			case s.ctx.Err() != nil:
			case errors.Is(err, transport.ErrStreamClosed):
				logger.Debug("peer closed the connection", "err", err)
			default:
				logger.Warn("session aborted", "err", err)
			}
			return
		}

		reply, ok := s.handle(pkt)
		if !ok {
			continue
		}
		if err := sess.Submit(reply); err != nil {
			logger.Warn("failed to queue answer", "err", err)
			return
		}
	}
}
