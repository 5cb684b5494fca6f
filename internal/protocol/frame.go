package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layout constants
//
//	[0]     srcId          Source device id
//	[1]     dstId          Destination device id
//	[2]     seqNum         Sequence number
//	[3]     msgType        Message type (see MessageType)
//	[4]     payloadLen     Payload length (0-75)
//	[5..]   payload        Message payload
//	[N-4..] check          Frame check sequence (big-endian)
const (
	OffsetSource        = 0
	OffsetDestination   = 1
	OffsetSequence      = 2
	OffsetMessageType   = 3
	OffsetPayloadLength = 4

	HeaderSize     = 5
	CheckSize      = 4
	MaxPayloadSize = 75
	MinFrameSize   = HeaderSize + CheckSize
	MaxFrameSize   = HeaderSize + MaxPayloadSize + CheckSize
)

// Device addressing
const (
	// MaxNodes is the number of addressable nodes (ids 0..MaxNodes-1)
	MaxNodes = 62

	// HostControllerID is the fixed id of the host side of the link
	HostControllerID = 0xF0

	// AllNodes addresses every node at once
	AllNodes = 0xFF
)

var (
	ErrShortFrame      = errors.New("frame shorter than header")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrInvalidTarget   = errors.New("target is neither a node nor all-nodes")
	ErrShortBuffer     = errors.New("output buffer too small")
)

// Header is the fixed part of a frame. The destination id is not part of
// Header: on transmit it is derived from Source, on receive Unwrap returns it
// separately.
type Header struct {
	Source        uint8
	Sequence      uint8
	MessageType   MessageType
	PayloadLength uint8
}

// String returns a debug representation of the header
func (h Header) String() string {
	return fmt.Sprintf("Header{src=%d, seq=%d, type=%s, len=%d}",
		h.Source, h.Sequence, h.MessageType, h.PayloadLength)
}

// IsValidNode reports whether id addresses a single node
func IsValidNode(id uint8) bool {
	return id < MaxNodes
}

// Unwrap extracts the header, destination id and payload from a raw frame.
// Only the header length is checked; the payload slice is bounded by both the
// declared payload length and the frame length so a lying length field can
// never read past the buffer. Callers validate the rest with
// ValidateIncoming and ValidateCheck.
func Unwrap(raw []byte) (Header, uint8, []byte, error) {
	if len(raw) < HeaderSize {
		return Header{}, 0, nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrShortFrame, len(raw), HeaderSize)
	}

	h := Header{
		Source:        raw[OffsetSource],
		Sequence:      raw[OffsetSequence],
		MessageType:   MessageType(raw[OffsetMessageType]),
		PayloadLength: raw[OffsetPayloadLength],
	}
	dst := raw[OffsetDestination]

	end := HeaderSize + int(h.PayloadLength)
	if end > len(raw) {
		end = len(raw)
	}
	return h, dst, raw[HeaderSize:end], nil
}

// ValidateIncoming checks the addressing and size fields of an inbound
// header. claimedSource is the device id the transport says the frame came
// from; a mismatch with the header's source id is rejected.
func ValidateIncoming(h Header, claimedSource uint8, destination uint8) bool {
	if h.PayloadLength > MaxPayloadSize {
		return false
	}
	if destination != HostControllerID {
		return false
	}
	return h.Source == claimedSource
}

// Wrap builds a transmit-ready frame into out and returns its length.
// The header's Source names the target node (or AllNodes); on the wire the
// destination is set to that target and the source to HostControllerID.
func Wrap(h Header, payload []byte, out []byte) (int, error) {
	if !IsValidNode(h.Source) && h.Source != AllNodes {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTarget, h.Source)
	}
	if len(payload) > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	n := HeaderSize + len(payload) + CheckSize
	if len(out) < n {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, len(out))
	}

	out[OffsetSource] = HostControllerID
	out[OffsetDestination] = h.Source
	out[OffsetSequence] = h.Sequence
	out[OffsetMessageType] = byte(h.MessageType)
	out[OffsetPayloadLength] = byte(len(payload))
	copy(out[HeaderSize:], payload)

	body := HeaderSize + len(payload)
	binary.BigEndian.PutUint32(out[body:n], ComputeCheck(out[:body]))
	return n, nil
}

// BuildFrame is a convenience wrapper around Wrap that allocates the frame.
func BuildFrame(h Header, payload []byte) ([]byte, error) {
	out := make([]byte, MaxFrameSize)
	n, err := Wrap(h, payload, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// BuildInbound assembles a node-to-host frame. It is the mirror of Wrap and
// is used by the bridge tooling and tests to synthesise node traffic.
func BuildInbound(source uint8, seq uint8, msgType MessageType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	n := HeaderSize + len(payload) + CheckSize
	out := make([]byte, n)
	out[OffsetSource] = source
	out[OffsetDestination] = HostControllerID
	out[OffsetSequence] = seq
	out[OffsetMessageType] = byte(msgType)
	out[OffsetPayloadLength] = byte(len(payload))
	copy(out[HeaderSize:], payload)

	body := HeaderSize + len(payload)
	binary.BigEndian.PutUint32(out[body:], ComputeCheck(out[:body]))
	return out, nil
}
