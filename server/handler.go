package server

import "tarot/protocol"

// handle returns the answer to pkt, if any.
func (s *Server) handle(pkt protocol.Serverbound) (protocol.Clientbound, bool) {
	switch pkt.(type) {
	case protocol.Ping:
		return protocol.PingAnswer{Text: s.opts.Name}, true

	case protocol.Join:
		n := s.seated.Add(1)
		s.log().Info("player seated", "seated", n)
		return protocol.Accept{}, true

	default:
		s.log().Warn("unhandled packet", "type", pkt)
		return nil, false
	}
}
