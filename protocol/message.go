package protocol

import "fmt"

// Serverbound is a packet sent by a client to the server.
//
// Wire format: [tag uint32 LE][fields]
//
//	0 Ping  (no fields)
//	1 Join  (no fields)
type Serverbound interface {
	serverbound()
}

// Clientbound is a packet sent by the server to a client.
//
// Wire format: [tag uint32 LE][fields]
//
//	0 PingAnswer  [len uint64 LE][text]
//	1 Accept      (no fields)
type Clientbound interface {
	clientbound()
}

// Ping asks the server to answer with a PingAnswer.
type Ping struct{}

// Join asks the server to seat the client at a table.
type Join struct{}

// PingAnswer carries a free-form text, typically the server name.
type PingAnswer struct {
	Text string
}

// Accept confirms a Join.
type Accept struct{}

func (Ping) serverbound() {}
func (Join) serverbound() {}

func (PingAnswer) clientbound() {}
func (Accept) clientbound()     {}

const (
	tagPing uint32 = 0
	tagJoin uint32 = 1

	tagPingAnswer uint32 = 0
	tagAccept     uint32 = 1
)

// ServerboundCodec returns the Binary codec for client-to-server packets.
func ServerboundCodec(opts ...Option) Codec[Serverbound] {
	return Binary[Serverbound](serverboundFormat{}, opts...)
}

// ClientboundCodec returns the Binary codec for server-to-client packets.
func ClientboundCodec(opts ...Option) Codec[Clientbound] {
	return Binary[Clientbound](clientboundFormat{}, opts...)
}

type serverboundFormat struct{}

func (serverboundFormat) AppendWire(buf []byte, p Serverbound) ([]byte, error) {
	switch p.(type) {
	case Ping:
		return AppendTag(buf, tagPing), nil
	case Join:
		return AppendTag(buf, tagJoin), nil
	default:
		return nil, fmt.Errorf("%w: serverbound %T", ErrUnknownVariant, p)
	}
}

func (serverboundFormat) ReadWire(r *WireReader) (Serverbound, error) {
	tag, err := r.Tag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagPing:
		return Ping{}, nil
	case tagJoin:
		return Join{}, nil
	default:
		return nil, fmt.Errorf("%w: serverbound tag %d", ErrUnknownVariant, tag)
	}
}

type clientboundFormat struct{}

func (clientboundFormat) AppendWire(buf []byte, p Clientbound) ([]byte, error) {
	switch p := p.(type) {
	case PingAnswer:
		return AppendText(AppendTag(buf, tagPingAnswer), p.Text), nil
	case Accept:
		return AppendTag(buf, tagAccept), nil
	default:
		return nil, fmt.Errorf("%w: clientbound %T", ErrUnknownVariant, p)
	}
}

func (clientboundFormat) ReadWire(r *WireReader) (Clientbound, error) {
	tag, err := r.Tag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagPingAnswer:
		text, err := r.Text()
		if err != nil {
			return nil, err
		}
		return PingAnswer{Text: text}, nil
	case tagAccept:
		return Accept{}, nil
	default:
		return nil, fmt.Errorf("%w: clientbound tag %d", ErrUnknownVariant, tag)
	}
}
