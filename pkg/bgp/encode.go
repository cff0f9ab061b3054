package bgp

import "github.com/flowmesh/relay/pkg/buffer"

// clampByteLen clamps n into [0, 255], for fields the wire format bounds to
// a single length byte (per-parameter and per-AS_PATH-segment blocks).
func clampByteLen(n int) byte {
	if n > 255 {
		n = 255
	}
	return byte(n)
}

func be16(v uint16) [2]byte { return [2]byte{byte(v >> 8), byte(v)} }
func be32(v uint32) [4]byte {
	return [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// Encode appends the wire form of msg onto out. Encoding never fails;
// oversize fields (per-parameter blocks beyond 255 bytes, AS_PATH segments
// beyond 255 hops, total message length beyond MaxMessageSize) are
// truncated.
func Encode(msg *Message, out *buffer.Data, producer *buffer.Producer) {
	body := producer.New()
	switch msg.Type {
	case TypeOpen:
		encodeOpen(msg.Open, body, producer)
	case TypeUpdate:
		encodeUpdate(msg.Update, body, producer)
	case TypeNotification:
		encodeNotification(msg.Notification, body)
	case TypeKeepalive:
		// empty body
	}

	total := HeaderSize + body.Size()
	if total > MaxMessageSize {
		body.Pop(total - MaxMessageSize)
		total = MaxMessageSize
	}

	b := buffer.NewBuilder(out)
	b.Push(Marker[:])
	length := be16(uint16(total))
	b.Push(length[:])
	b.PushByte(byte(msg.Type))
	b.Flush()
	out.Push(body)
}

func encodeOpen(o *Open, body *buffer.Data, producer *buffer.Producer) {
	b := buffer.NewBuilder(body)
	b.PushByte(o.Version)
	as := be16(o.MyAS)
	b.Push(as[:])
	hold := be16(o.HoldTime)
	b.Push(hold[:])
	b.Push(o.Identifier[:])

	params := producer.New()
	pb := buffer.NewBuilder(params)
	for _, p := range o.Parameters {
		encodeParameter(pb, p.Type, p.Value)
	}
	if len(o.Capabilities) > 0 {
		capsData := producer.New()
		cb := buffer.NewBuilder(capsData)
		for code, val := range o.Capabilities {
			var n int
			if val != nil {
				n = val.Size()
			}
			cb.PushByte(code)
			cb.PushByte(clampByteLen(n))
			if val != nil {
				cb.Flush()
				// Capability value shares the caller's Data; copy bytes so
				// the original isn't consumed twice if reused.
				cb.Push(val.Bytes())
			}
		}
		cb.Flush()
		encodeParameter(pb, paramCapabilities, capsData)
	}
	pb.Flush()

	if params.Size() > 255 {
		params.Pop(params.Size() - 255)
	}
	b.PushByte(clampByteLen(params.Size()))
	b.Flush()
	body.Push(params)
}

// encodeParameter writes one {type, length, value} entry, clamping value to
// 255 bytes.
func encodeParameter(b *buffer.Builder, typ byte, value *buffer.Data) {
	n := 0
	if value != nil {
		n = value.Size()
	}
	b.PushByte(typ)
	b.PushByte(clampByteLen(n))
	if value != nil {
		if value.Size() > 255 {
			value.Pop(value.Size() - 255)
		}
		b.Flush()
		b.PushData(value)
	}
}

func encodeUpdate(u *Update, body *buffer.Data, producer *buffer.Producer) {
	withdrawn := producer.New()
	wb := buffer.NewBuilder(withdrawn)
	for _, p := range u.WithdrawnRoutes {
		encodePrefix(wb, p)
	}
	wb.Flush()

	attrs := producer.New()
	ab := buffer.NewBuilder(attrs)
	for _, a := range u.PathAttributes {
		encodePathAttribute(ab, a)
	}
	ab.Flush()

	nlri := producer.New()
	nb := buffer.NewBuilder(nlri)
	for _, p := range u.Destinations {
		encodePrefix(nb, p)
	}
	nb.Flush()

	b := buffer.NewBuilder(body)
	wl := be16(uint16(withdrawn.Size()))
	b.Push(wl[:])
	b.Flush()
	body.Push(withdrawn)

	al := be16(uint16(attrs.Size()))
	b.Push(al[:])
	b.Flush()
	body.Push(attrs)
	body.Push(nlri)
}

func encodePrefix(b *buffer.Builder, p Prefix) {
	nbytes := int(p.Bits+7) / 8
	if nbytes > 4 {
		nbytes = 4
	}
	addr := p.Address
	clearTrailingBits(&addr, p.Bits)
	b.PushByte(p.Bits)
	b.Push(addr[:nbytes])
}

func clearTrailingBits(addr *[4]byte, bits byte) {
	for i := 0; i < 4; i++ {
		bitStart := i * 8
		switch {
		case bitStart+8 <= int(bits):
			// fully significant byte, untouched
		case bitStart >= int(bits):
			addr[i] = 0
		default:
			keep := int(bits) - bitStart
			mask := byte(0xFF << (8 - keep))
			addr[i] &= mask
		}
	}
}

func encodePathAttribute(b *buffer.Builder, a PathAttribute) {
	n := 0
	if a.Value != nil {
		n = a.Value.Size()
	}
	flags := a.Flags
	ext := flags&AttrExtLength != 0 || n > 255
	if ext {
		flags |= AttrExtLength
	}
	b.PushByte(flags)
	b.PushByte(a.Type)
	if ext {
		l := be16(uint16(n))
		b.Push(l[:])
	} else {
		b.PushByte(byte(n))
	}
	if a.Value != nil {
		b.Flush()
		b.Push(a.Value.Bytes())
	}
}

// EncodeASPath packs segments into the Value payload an AS_PATH
// PathAttribute expects, clamping each segment to 255 AS numbers.
func EncodeASPath(segments []ASPathSegment, producer *buffer.Producer) *buffer.Data {
	out := producer.New()
	b := buffer.NewBuilder(out)
	for _, seg := range segments {
		asNums := seg.AS
		if len(asNums) > 255 {
			asNums = asNums[:255]
		}
		b.PushByte(seg.SegmentType)
		b.PushByte(byte(len(asNums)))
		for _, as := range asNums {
			v := be16(as)
			b.Push(v[:])
		}
	}
	b.Flush()
	return out
}

// EncodeAggregator packs the {as(2BE), ip(4)} AGGREGATOR value.
func EncodeAggregator(as uint16, ip [4]byte, producer *buffer.Producer) *buffer.Data {
	out := producer.New()
	b := buffer.NewBuilder(out)
	v := be16(as)
	b.Push(v[:])
	b.Push(ip[:])
	b.Flush()
	return out
}

func encodeNotification(n *Notification, body *buffer.Data) {
	b := buffer.NewBuilder(body)
	b.PushByte(n.ErrorCode)
	b.PushByte(n.ErrorSubcode)
	b.Flush()
	if n.Data != nil {
		body.Push(n.Data)
	}
}
