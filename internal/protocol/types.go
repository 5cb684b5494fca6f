package protocol

import "fmt"

// MessageType is the frame header's message type tag.
type MessageType uint8

const (
	MsgTypeConnect                 MessageType = 1
	MsgTypeMeasurementStart        MessageType = 2
	MsgTypeMeasurementSupplemental MessageType = 3
	MsgTypeSensorCommand           MessageType = 4
	MsgTypeHeartbeat               MessageType = 5
	MsgTypeFault                   MessageType = 6
)

// Valid reports whether t is one of the defined message types
func (t MessageType) Valid() bool {
	return t >= MsgTypeConnect && t <= MsgTypeFault
}

// String returns a human-readable name for the message type
func (t MessageType) String() string {
	switch t {
	case MsgTypeConnect:
		return "Connect"
	case MsgTypeMeasurementStart:
		return "MeasurementStart"
	case MsgTypeMeasurementSupplemental:
		return "MeasurementSupplemental"
	case MsgTypeSensorCommand:
		return "SensorCommand"
	case MsgTypeHeartbeat:
		return "Heartbeat"
	case MsgTypeFault:
		return "Fault"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// SensorType identifies one of the three aggregated measurement streams.
type SensorType uint8

const (
	SensorBMS SensorType = iota // Battery monitoring
	SensorPMS                   // Power monitoring
	SensorEMS                   // Environmental monitoring

	NumSensorTypes = 3
)

// Valid reports whether s is a known sensor type
func (s SensorType) Valid() bool {
	return s < NumSensorTypes
}

// String returns a human-readable name for the sensor type
func (s SensorType) String() string {
	switch s {
	case SensorBMS:
		return "BMS"
	case SensorPMS:
		return "PMS"
	case SensorEMS:
		return "EMS"
	default:
		return fmt.Sprintf("Sensor(%d)", uint8(s))
	}
}

// SensorTypes lists every sensor type in index order
var SensorTypes = [NumSensorTypes]SensorType{SensorBMS, SensorPMS, SensorEMS}

// Sensor command identifiers (first byte of a SensorCommand payload)
const (
	CmdConfigureCellBalancing = 0x01
	CmdGetCellBalancingStatus = 0x02
)

// ReturnCodeSuccess is the node-side return code for a completed request
const ReturnCodeSuccess = 0x00

// NumCells is the number of cell entries in the balancing tables
const NumCells = 64
