package bgp

import (
	"encoding/binary"
	"errors"

	"github.com/flowmesh/relay/pkg/buffer"
)

// errMalformed is the internal decode-failure sentinel; Parser turns it
// into a synthesized NOTIFICATION rather than surfacing it directly.
var errMalformed = errors.New("bgp: malformed message")

func readExact(r *buffer.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if got := r.Read(buf); got != n {
		return nil, errMalformed
	}
	return buf, nil
}

func readByte(r *buffer.Reader) (byte, error) {
	v := r.Get()
	if v < 0 {
		return 0, errMalformed
	}
	return byte(v), nil
}

func readUint16(r *buffer.Reader) (uint16, error) {
	b, err := readExact(r, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func readUint32(r *buffer.Reader) (uint32, error) {
	b, err := readExact(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func decodeOpen(r *buffer.Reader, producer *buffer.Producer) (*Open, error) {
	o := &Open{Capabilities: map[byte]*buffer.Data{}}

	v, err := readByte(r)
	if err != nil {
		return nil, err
	}
	o.Version = v

	if o.MyAS, err = readUint16(r); err != nil {
		return nil, err
	}
	if o.HoldTime, err = readUint16(r); err != nil {
		return nil, err
	}
	id, err := readExact(r, 4)
	if err != nil {
		return nil, err
	}
	copy(o.Identifier[:], id)

	paramLen, err := readByte(r)
	if err != nil {
		return nil, err
	}
	remaining := int(paramLen)
	for remaining > 0 {
		typ, err := readByte(r)
		if err != nil {
			return nil, err
		}
		length, err := readByte(r)
		if err != nil {
			return nil, err
		}
		value, err := readExact(r, int(length))
		if err != nil {
			return nil, err
		}
		remaining -= 2 + int(length)

		if typ == paramCapabilities {
			if err := decodeCapabilities(value, o.Capabilities, producer); err != nil {
				return nil, err
			}
			continue
		}
		o.Parameters = append(o.Parameters, Parameter{Type: typ, Value: producer.NewFromBytes(value)})
	}
	if remaining != 0 {
		return nil, errMalformed
	}
	return o, nil
}

func decodeCapabilities(raw []byte, out map[byte]*buffer.Data, producer *buffer.Producer) error {
	for len(raw) > 0 {
		if len(raw) < 2 {
			return errMalformed
		}
		code := raw[0]
		length := int(raw[1])
		if len(raw) < 2+length {
			return errMalformed
		}
		value := raw[2 : 2+length]
		out[code] = producer.NewFromBytes(value)
		raw = raw[2+length:]
	}
	return nil
}

func decodeUpdate(r *buffer.Reader, bodySize int, producer *buffer.Producer) (*Update, error) {
	u := &Update{}

	withdrawnLen, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	withdrawn, err := decodePrefixList(r, int(withdrawnLen))
	if err != nil {
		return nil, err
	}
	u.WithdrawnRoutes = withdrawn

	attrLen, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	attrs, err := decodePathAttributes(r, int(attrLen), producer)
	if err != nil {
		return nil, err
	}
	u.PathAttributes = attrs

	consumed := 2 + int(withdrawnLen) + 2 + int(attrLen)
	nlriLen := bodySize - consumed
	if nlriLen < 0 {
		return nil, errMalformed
	}
	dest, err := decodePrefixList(r, nlriLen)
	if err != nil {
		return nil, err
	}
	u.Destinations = dest
	return u, nil
}

func decodePrefixList(r *buffer.Reader, byteLen int) ([]Prefix, error) {
	var out []Prefix
	remaining := byteLen
	for remaining > 0 {
		bits, err := readByte(r)
		if err != nil {
			return nil, err
		}
		nbytes := int(bits+7) / 8
		if nbytes > 4 {
			return nil, errMalformed
		}
		addrBytes, err := readExact(r, nbytes)
		if err != nil {
			return nil, err
		}
		var addr [4]byte
		copy(addr[:], addrBytes)
		clearTrailingBits(&addr, bits)
		out = append(out, Prefix{Bits: bits, Address: addr})
		remaining -= 1 + nbytes
	}
	if remaining != 0 {
		return nil, errMalformed
	}
	return out, nil
}

func decodePathAttributes(r *buffer.Reader, byteLen int, producer *buffer.Producer) ([]PathAttribute, error) {
	var out []PathAttribute
	remaining := byteLen
	for remaining > 0 {
		flags, err := readByte(r)
		if err != nil {
			return nil, err
		}
		typ, err := readByte(r)
		if err != nil {
			return nil, err
		}
		var length int
		var headerBytes int
		if flags&AttrExtLength != 0 {
			l, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			length = int(l)
			headerBytes = 4
		} else {
			l, err := readByte(r)
			if err != nil {
				return nil, err
			}
			length = int(l)
			headerBytes = 3
		}
		value, err := readExact(r, length)
		if err != nil {
			return nil, err
		}
		out = append(out, PathAttribute{Flags: flags, Type: typ, Value: producer.NewFromBytes(value)})
		remaining -= headerBytes + length
	}
	if remaining != 0 {
		return nil, errMalformed
	}
	return out, nil
}

// DecodeASPath unpacks an AS_PATH attribute's Value into its segments.
func DecodeASPath(value *buffer.Data) ([]ASPathSegment, error) {
	r := buffer.NewReader(value)
	var segs []ASPathSegment
	remaining := value.Size()
	for remaining > 0 {
		segType, err := readByte(r)
		if err != nil {
			return nil, err
		}
		count, err := readByte(r)
		if err != nil {
			return nil, err
		}
		as := make([]uint16, count)
		for i := range as {
			v, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			as[i] = v
		}
		segs = append(segs, ASPathSegment{SegmentType: segType, AS: as})
		remaining -= 2 + 2*int(count)
	}
	if remaining != 0 {
		return nil, errMalformed
	}
	return segs, nil
}

// DecodeAggregator unpacks an AGGREGATOR attribute's {as(2BE), ip(4)} value.
func DecodeAggregator(value *buffer.Data) (as uint16, ip [4]byte, err error) {
	if value.Size() != 6 {
		return 0, ip, errMalformed
	}
	r := buffer.NewReader(value)
	if as, err = readUint16(r); err != nil {
		return 0, ip, err
	}
	b, err := readExact(r, 4)
	if err != nil {
		return 0, ip, err
	}
	copy(ip[:], b)
	return as, ip, nil
}

func decodeNotification(r *buffer.Reader, bodySize int, producer *buffer.Producer) (*Notification, error) {
	code, err := readByte(r)
	if err != nil {
		return nil, err
	}
	subcode, err := readByte(r)
	if err != nil {
		return nil, err
	}
	remaining := bodySize - 2
	if remaining < 0 {
		return nil, errMalformed
	}
	data, err := readExact(r, remaining)
	if err != nil {
		return nil, err
	}
	var d *buffer.Data
	if len(data) > 0 {
		d = producer.NewFromBytes(data)
	}
	return &Notification{ErrorCode: code, ErrorSubcode: subcode, Data: d}, nil
}
