package measure

import (
	"fmt"

	"github.com/muurk/wbms/internal/protocol"
)

// Context is the allocation context of a StorageState.
type Context int

const (
	ContextSafety Context = iota
	ContextNonSafety
)

// String returns a human-readable name for the context
func (c Context) String() string {
	switch c {
	case ContextSafety:
		return "safety"
	case ContextNonSafety:
		return "non-safety"
	default:
		return fmt.Sprintf("Context(%d)", int(c))
	}
}

// Allocation holds the device bitmap and packets-per-device of each sensor
// type for one context.
type Allocation struct {
	Devices          [protocol.NumSensorTypes]uint64
	PacketsPerDevice [protocol.NumSensorTypes]uint8
}

// Slot holds one received packet.
type Slot struct {
	DeviceID uint8
	Sequence uint8
	Length   uint8
	Data     [protocol.MaxMeasurementDataSize]byte
}

// Bytes returns the filled part of the slot
func (s *Slot) Bytes() []byte {
	return s.Data[:s.Length]
}

// Packet is one measurement packet handed to the aggregator.
type Packet struct {
	Sensor    protocol.SensorType
	Context   Context
	DeviceID  uint8
	Sequence  uint8
	Timestamp uint32 // 24-bit interval timestamp, safety context only
	Start     bool   // first packet of the device's interval
	Data      []byte
}

// Ensemble is the payload of the data-ready events.
type Ensemble struct {
	Sensor    protocol.SensorType
	Context   Context
	Timestamp uint32
	Slots     []Slot // references the slot buffer
	Filled    int
}

// Stats are the per-sensor-type counters.
type Stats struct {
	Valid         uint32
	Late          uint32
	Duplicate     uint32
	Dropped       uint32
	Notifications uint32
}

// Reason classifies a rejected packet.
type Reason int

const (
	ReasonNotInitialized Reason = iota + 1
	ReasonContextMismatch
	ReasonUnknownDevice
	ReasonAllocationChanged
	ReasonTooManyPackets
	ReasonNoOrigin
	ReasonLate
	ReasonOutOfSequence
	ReasonDuplicate
	ReasonSlotOccupied
	ReasonInsufficientBuffer
)

// String returns a human-readable name for the reason
func (r Reason) String() string {
	switch r {
	case ReasonNotInitialized:
		return "allocation not initialized"
	case ReasonContextMismatch:
		return "context mismatch"
	case ReasonUnknownDevice:
		return "device not allocated"
	case ReasonAllocationChanged:
		return "allocation changed mid-interval"
	case ReasonTooManyPackets:
		return "packets per device exceed slot cap"
	case ReasonNoOrigin:
		return "no interval origin"
	case ReasonLate:
		return "late"
	case ReasonOutOfSequence:
		return "out of sequence"
	case ReasonDuplicate:
		return "duplicate"
	case ReasonSlotOccupied:
		return "slot occupied"
	case ReasonInsufficientBuffer:
		return "insufficient buffer"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// RejectError describes why HandlePacket did not store a packet. The
// rejection has already been counted and reported as an event.
type RejectError struct {
	Sensor   protocol.SensorType
	DeviceID uint8
	Sequence uint8
	Reason   Reason
}

// Error implements the error interface
func (e *RejectError) Error() string {
	return fmt.Sprintf("%s packet from device %d seq %d rejected: %s", e.Sensor, e.DeviceID, e.Sequence, e.Reason)
}

// StateInfo is a read-only view of a StorageState.
type StateInfo struct {
	Sensor           protocol.SensorType
	Initialized      bool
	Context          Context
	Devices          uint64
	PacketsPerDevice uint8
	Collecting       bool
	Filled           int
	Expected         int
	Timestamp        uint32
	SlotCapacity     int
}
