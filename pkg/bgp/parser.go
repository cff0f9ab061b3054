package bgp

import (
	"encoding/binary"

	"github.com/flowmesh/relay/pkg/buffer"
	"github.com/flowmesh/relay/pkg/deframe"
)

const (
	stateHeader = iota
	stateBody
)

// Parser decodes a byte stream into Messages, driven by a deframe.Deframer
// through HEADER → BODY → HEADER (§4.6). A malformed field latches the
// decoder in error and reports once through OnError before the Deframer
// stops consuming.
//
// The reference state machine calls this START → HEADER → BODY → START;
// here the initial 19-byte header read is scheduled directly by NewParser
// rather than through a do-nothing START state, since scheduling it via a
// state transition would require consuming (and losing) one input byte
// before the schedule took effect.
type Parser struct {
	deframe.Base

	producer *buffer.Producer
	d        *deframe.Deframer

	header  [HeaderSize]byte
	msgType Type
	bodyLen int
	body    *buffer.Data

	// OnMessage is called once per successfully decoded message.
	OnMessage func(*Message)
	// OnError is called once when decoding latches in error, with the
	// NOTIFICATION this implementation synthesizes for it.
	OnError func(*Notification)
}

// NewParser creates a Parser reading Data chunks allocated from producer.
func NewParser(producer *buffer.Producer) *Parser {
	p := &Parser{producer: producer}
	p.d = deframe.New(p, stateHeader)
	p.Read(p.header[:])
	return p
}

// Feed decodes as much of in as possible, invoking OnMessage/OnError as
// messages complete or the decoder latches. in is fully consumed.
func (p *Parser) Feed(in *buffer.Data) {
	p.d.Process(in)
}

// Errored reports whether the decoder has latched in an unrecoverable
// error and will not produce further messages.
func (p *Parser) Errored() bool { return p.d.Errored() }

// OnState implements deframe.Handler. Each branch schedules its next read
// and returns explicitly — no fall-through between HEADER and BODY (Open
// Question: Parser BODY fall-through).
func (p *Parser) OnState(state int, last byte) int {
	switch state {
	case stateHeader:
		return p.onHeader()
	case stateBody:
		return p.onBody()
	default:
		return deframe.StateError
	}
}

func (p *Parser) onHeader() int {
	if [16]byte(p.header[:16]) != Marker {
		// Generic malformed-header failure, matching the reference
		// decoder's default error(0, 0) for conditions it doesn't assign a
		// specific RFC code to.
		p.fail(0, 0)
		return deframe.StateError
	}

	length := int(binary.BigEndian.Uint16(p.header[16:18]))
	typ := Type(p.header[18])
	p.msgType = typ

	if length < HeaderSize || length > MaxMessageSize {
		p.fail(ErrMessageHeader, 2) // Bad Message Length
		return deframe.StateError
	}

	switch typ {
	case TypeOpen, TypeUpdate, TypeNotification, TypeKeepalive:
		// known
	default:
		p.fail(ErrMessageHeader, ErrBadType)
		return deframe.StateError
	}

	p.bodyLen = length - HeaderSize
	if p.bodyLen == 0 {
		p.deliver(&Message{Type: typ})
		p.Read(p.header[:])
		return stateHeader
	}
	p.body = p.ReadData(p.bodyLen, p.producer)
	return stateBody
}

func (p *Parser) onBody() int {
	msg, err := p.decodeBody(p.msgType, p.body)
	if err != nil {
		p.fail(ErrMessageHeader, 0)
		return deframe.StateError
	}
	p.deliver(msg)
	p.Read(p.header[:])
	return stateHeader
}

func (p *Parser) deliver(msg *Message) {
	if p.OnMessage != nil {
		p.OnMessage(msg)
	}
}

func (p *Parser) fail(code, subcode byte) {
	if p.OnError != nil {
		p.OnError(&Notification{ErrorCode: code, ErrorSubcode: subcode})
	}
}

func (p *Parser) decodeBody(typ Type, body *buffer.Data) (*Message, error) {
	r := buffer.NewReader(body)
	switch typ {
	case TypeOpen:
		o, err := decodeOpen(r, p.producer)
		if err != nil {
			return nil, err
		}
		return &Message{Type: typ, Open: o}, nil
	case TypeUpdate:
		u, err := decodeUpdate(r, body.Size(), p.producer)
		if err != nil {
			return nil, err
		}
		return &Message{Type: typ, Update: u}, nil
	case TypeNotification:
		n, err := decodeNotification(r, body.Size(), p.producer)
		if err != nil {
			return nil, err
		}
		return &Message{Type: typ, Notification: n}, nil
	case TypeKeepalive:
		return &Message{Type: typ}, nil
	default:
		return nil, errMalformed
	}
}
