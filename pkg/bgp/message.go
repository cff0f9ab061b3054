// Package bgp implements a minimal BGP-4 message codec (RFC 4271) as the
// worked protocol example for the deframe driver: OPEN, UPDATE,
// NOTIFICATION, and KEEPALIVE, each with an Encode and a streaming Parser
// decode path.
package bgp

import "github.com/flowmesh/relay/pkg/buffer"

// Type is a BGP message type code, carried in the 19-byte header.
type Type byte

const (
	TypeOpen         Type = 1
	TypeUpdate       Type = 2
	TypeNotification Type = 3
	TypeKeepalive    Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeOpen:
		return "OPEN"
	case TypeUpdate:
		return "UPDATE"
	case TypeNotification:
		return "NOTIFICATION"
	case TypeKeepalive:
		return "KEEPALIVE"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the fixed 19-byte BGP header: 16 marker bytes, a 16-bit
// total length, and a 1-byte type.
const HeaderSize = 19

// MaxMessageSize is the RFC 4271 ceiling on total message length (header +
// body); encode clamps to it.
const MaxMessageSize = 4096

// Marker is the all-ones 16-byte marker every BGP header carries (the
// authentication field is unused by this implementation).
var Marker = [16]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// Message is a decoded or to-be-encoded BGP message. Exactly one of the
// Body fields is meaningful, selected by Type.
type Message struct {
	Type Type

	Open         *Open
	Update       *Update
	Notification *Notification
	// Keepalive carries no body.
}

// Open is the OPEN message body.
type Open struct {
	Version      byte
	MyAS         uint16
	HoldTime     uint16
	Identifier   [4]byte // IPv4
	Capabilities map[byte]*buffer.Data
	Parameters   []Parameter
}

// Parameter is a generic {type, length, value} OPEN parameter entry, used
// for any parameter type other than the capabilities list (type 2), which
// Encode/decode handle specially via Open.Capabilities.
type Parameter struct {
	Type  byte
	Value *buffer.Data
}

const paramCapabilities byte = 2

// Update is the UPDATE message body. Fields are independent: unlike the
// aliasing bug observed in the reference implementation, PathAttributes and
// Destinations never read or write WithdrawnRoutes.
type Update struct {
	WithdrawnRoutes []Prefix
	PathAttributes  []PathAttribute
	Destinations    []Prefix
}

// Prefix is a CIDR-style network prefix: the first ceil(Bits/8) bytes of
// Address hold the significant bits, trailing bits cleared.
type Prefix struct {
	Bits    byte
	Address [4]byte
}

// PathAttrFlag bits, per RFC 4271 4.3.
const (
	AttrOptional   byte = 0x80
	AttrTransitive byte = 0x40
	AttrPartial    byte = 0x20
	AttrExtLength  byte = 0x10
)

// Path attribute type codes with structured encodings.
const (
	AttrOrigin          byte = 1
	AttrASPath          byte = 2
	AttrNextHop         byte = 3
	AttrMultiExitDisc   byte = 4
	AttrLocalPref       byte = 5
	AttrAtomicAggregate byte = 6
	AttrAggregator      byte = 7
)

// PathAttribute is one UPDATE path attribute. Value holds the raw
// type-specific bytes for both known and unknown type codes — callers use
// EncodeASPath/DecodeASPath and EncodeAggregator/DecodeAggregator to build
// or interpret it for AS_PATH and AGGREGATOR.
type PathAttribute struct {
	Flags byte
	Type  byte
	Value *buffer.Data
}

// ASPathSegment is one segment of an AS_PATH attribute.
type ASPathSegment struct {
	SegmentType byte
	AS          []uint16
}

// Notification is the NOTIFICATION message body.
type Notification struct {
	ErrorCode    byte
	ErrorSubcode byte
	Data         *buffer.Data
}

// Error codes/subcodes this implementation emits for decode failures. RFC
// 4271 6.1 defines 1/3 (Message Header Error / Bad Message Type) for an
// unrecognized top-level message type; this implementation follows that
// mapping rather than the reference's error(0,0).
const (
	ErrMessageHeader byte = 1
	ErrBadType       byte = 3
)
