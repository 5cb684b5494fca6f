package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload is returned when a sub-frame is shorter than its layout
var ErrShortPayload = errors.New("payload too short")

// Connect response layout (51 bytes)
const (
	ConnectResponseSize = 51

	connOffsetMAC             = 0  // [0-7]   MAC address
	connOffsetSerial          = 8  // [8-15]  Serial id
	connOffsetAppVersion      = 16 // [16-17] Application version
	connOffsetBootVersion     = 18 // [18-19] Bootloader version
	connOffsetHWVersion       = 20 // [20-21] Hardware version
	connOffsetProtocolVersion = 22 // [22-23] Protocol version
	connOffsetAppCRC          = 24 // [24-27] Application image CRC
	connOffsetBootCRC         = 28 // [28-31] Bootloader image CRC
	connOffsetConfigCRC       = 32 // [32-35] Configuration CRC
	connOffsetSafetyParamsCRC = 36 // [36-39] Safety parameters CRC
	connOffsetBMSInterval     = 40 // [40-41] BMS interval (ms)
	connOffsetPMSInterval     = 42 // [42-43] PMS interval (ms)
	connOffsetEMSInterval     = 44 // [44-45] EMS interval (ms)
	connOffsetBMSPacketsMax   = 46 // [46]    BMS packets per interval
	connOffsetPMSPacketsMax   = 47 // [47]    PMS packets per interval
	connOffsetEMSPacketsMax   = 48 // [48]    EMS packets per interval
	connOffsetMode            = 49 // [49]    Operating mode
	connOffsetReturnCode      = 50 // [50]    Return code
)

// Cell balancing response layout (3 bytes)
const (
	CellBalancingResponseSize = 3

	cbRespOffsetCommand    = 0
	cbRespOffsetSequence   = 1
	cbRespOffsetReturnCode = 2
)

// Cell balancing status response layout (71 bytes)
const (
	CellBalancingStatusSize = 71

	cbStatusOffsetCommand    = 0  // [0]     Command id
	cbStatusOffsetSequence   = 1  // [1]     Request sequence number
	cbStatusOffsetReturnCode = 2  // [2]     Return code
	cbStatusOffsetReserved   = 3  // [3]     Reserved
	cbStatusOffsetCells      = 4  // [4-67]  Enabled cells, one byte per cell
	cbStatusOffsetRemaining  = 68 // [68-69] Remaining duration
	cbStatusOffsetThermal    = 70 // [70]    Thermal shutdown flag
)

// Measurement payload layout
const (
	MeasurementHeaderSize  = 5
	MaxMeasurementDataSize = MaxPayloadSize - MeasurementHeaderSize

	measOffsetSensor    = 0 // [0]   Sensor type
	measOffsetTimestamp = 1 // [1-4] Timestamp, high 24 bits significant
	measOffsetData      = 5 // [5..] Measurement data
)

// ConnectResponse is a node's reply to a connect request.
type ConnectResponse struct {
	MAC                [8]byte
	SerialID           [8]byte
	ApplicationVersion uint16
	BootloaderVersion  uint16
	HardwareVersion    uint16
	ProtocolVersion    uint16
	ApplicationCRC     uint32
	BootloaderCRC      uint32
	ConfigurationCRC   uint32
	SafetyParamsCRC    uint32
	Intervals          [NumSensorTypes]uint16 // BMS, PMS, EMS in ms
	MaxPackets         [NumSensorTypes]uint8  // BMS, PMS, EMS
	Mode               uint8
	ReturnCode         uint8
}

// String returns a debug representation of the response
func (r *ConnectResponse) String() string {
	return fmt.Sprintf("ConnectResponse{mac=%x, serial=%x, app=0x%04x, mode=%d, rc=%d}",
		r.MAC, r.SerialID, r.ApplicationVersion, r.Mode, r.ReturnCode)
}

// CellBalancingResponse is a node's reply to a configure-cell-balancing
// request.
type CellBalancingResponse struct {
	Command    uint8
	Sequence   uint8
	ReturnCode uint8
}

// CellBalancingStatus is a node's reply to a get-status request.
type CellBalancingStatus struct {
	Command           uint8
	Sequence          uint8
	ReturnCode        uint8
	EnabledCells      [NumCells]uint8
	RemainingDuration uint16
	ThermalShutdown   bool
}

// EnabledBitmap folds the per-cell table into a bitmap (bit n = cell n).
func (s *CellBalancingStatus) EnabledBitmap() uint64 {
	var m uint64
	for i, v := range s.EnabledCells {
		if v != 0 {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Measurement is the decoded payload of a MeasurementStart or
// MeasurementSupplemental frame.
type Measurement struct {
	Sensor    SensorType
	Timestamp uint32 // 24-bit interval timestamp
	Data      []byte // references the frame buffer
}

// ParseConnectResponse decodes a 51-byte connect response
func ParseConnectResponse(payload []byte) (*ConnectResponse, error) {
	if len(payload) < ConnectResponseSize {
		return nil, fmt.Errorf("connect response: %w: %d bytes (minimum %d)", ErrShortPayload, len(payload), ConnectResponseSize)
	}

	r := &ConnectResponse{
		ApplicationVersion: binary.BigEndian.Uint16(payload[connOffsetAppVersion:]),
		BootloaderVersion:  binary.BigEndian.Uint16(payload[connOffsetBootVersion:]),
		HardwareVersion:    binary.BigEndian.Uint16(payload[connOffsetHWVersion:]),
		ProtocolVersion:    binary.BigEndian.Uint16(payload[connOffsetProtocolVersion:]),
		ApplicationCRC:     binary.BigEndian.Uint32(payload[connOffsetAppCRC:]),
		BootloaderCRC:      binary.BigEndian.Uint32(payload[connOffsetBootCRC:]),
		ConfigurationCRC:   binary.BigEndian.Uint32(payload[connOffsetConfigCRC:]),
		SafetyParamsCRC:    binary.BigEndian.Uint32(payload[connOffsetSafetyParamsCRC:]),
		Mode:               payload[connOffsetMode],
		ReturnCode:         payload[connOffsetReturnCode],
	}
	copy(r.MAC[:], payload[connOffsetMAC:connOffsetSerial])
	copy(r.SerialID[:], payload[connOffsetSerial:connOffsetAppVersion])

	r.Intervals[SensorBMS] = binary.BigEndian.Uint16(payload[connOffsetBMSInterval:])
	r.Intervals[SensorPMS] = binary.BigEndian.Uint16(payload[connOffsetPMSInterval:])
	r.Intervals[SensorEMS] = binary.BigEndian.Uint16(payload[connOffsetEMSInterval:])
	r.MaxPackets[SensorBMS] = payload[connOffsetBMSPacketsMax]
	r.MaxPackets[SensorPMS] = payload[connOffsetPMSPacketsMax]
	r.MaxPackets[SensorEMS] = payload[connOffsetEMSPacketsMax]

	return r, nil
}

// ParseCellBalancingResponse decodes a 3-byte configure-cell-balancing reply
func ParseCellBalancingResponse(payload []byte) (*CellBalancingResponse, error) {
	if len(payload) < CellBalancingResponseSize {
		return nil, fmt.Errorf("cell balancing response: %w: %d bytes (minimum %d)", ErrShortPayload, len(payload), CellBalancingResponseSize)
	}
	return &CellBalancingResponse{
		Command:    payload[cbRespOffsetCommand],
		Sequence:   payload[cbRespOffsetSequence],
		ReturnCode: payload[cbRespOffsetReturnCode],
	}, nil
}

// ParseCellBalancingStatus decodes a 71-byte get-status reply
func ParseCellBalancingStatus(payload []byte) (*CellBalancingStatus, error) {
	if len(payload) < CellBalancingStatusSize {
		return nil, fmt.Errorf("cell balancing status: %w: %d bytes (minimum %d)", ErrShortPayload, len(payload), CellBalancingStatusSize)
	}

	s := &CellBalancingStatus{
		Command:           payload[cbStatusOffsetCommand],
		Sequence:          payload[cbStatusOffsetSequence],
		ReturnCode:        payload[cbStatusOffsetReturnCode],
		RemainingDuration: binary.BigEndian.Uint16(payload[cbStatusOffsetRemaining:]),
		ThermalShutdown:   payload[cbStatusOffsetThermal] != 0,
	}
	copy(s.EnabledCells[:], payload[cbStatusOffsetCells:cbStatusOffsetRemaining])
	return s, nil
}

// ParseMeasurement decodes a measurement payload. At least one data byte is
// required since the first data byte doubles as the packet id.
func ParseMeasurement(payload []byte) (*Measurement, error) {
	if len(payload) < MeasurementHeaderSize+1 {
		return nil, fmt.Errorf("measurement: %w: %d bytes (minimum %d)", ErrShortPayload, len(payload), MeasurementHeaderSize+1)
	}

	sensor := SensorType(payload[measOffsetSensor])
	if !sensor.Valid() {
		return nil, fmt.Errorf("measurement: unknown sensor type %d", payload[measOffsetSensor])
	}

	return &Measurement{
		Sensor:    sensor,
		Timestamp: binary.BigEndian.Uint32(payload[measOffsetTimestamp:]) >> 8,
		Data:      payload[measOffsetData:],
	}, nil
}

// CommandID returns the command id of a SensorCommand payload
func CommandID(payload []byte) (uint8, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("sensor command: %w: empty", ErrShortPayload)
	}
	return payload[0], nil
}

// ParseHeartbeat decodes a 12-byte heartbeat payload and returns the
// connected-node bitmap it carries.
func ParseHeartbeat(payload []byte) (uint64, error) {
	if len(payload) < HeartbeatSize {
		return 0, fmt.Errorf("heartbeat: %w: %d bytes (minimum %d)", ErrShortPayload, len(payload), HeartbeatSize)
	}
	return binary.BigEndian.Uint64(payload[hbOffsetConnected:]), nil
}

// ParseCellBalancingRequest decodes a 71-byte configure-cell-balancing request
func ParseCellBalancingRequest(payload []byte) (*CellBalancingRequest, error) {
	if len(payload) < CellBalancingRequestSize {
		return nil, fmt.Errorf("cell balancing request: %w: %d bytes (minimum %d)", ErrShortPayload, len(payload), CellBalancingRequestSize)
	}

	r := &CellBalancingRequest{
		Duration:  binary.BigEndian.Uint16(payload[cbReqOffsetDuration:]),
		Threshold: binary.BigEndian.Uint32(payload[cbReqOffsetThreshold:]),
	}
	copy(r.DutyCycles[:], payload[cbReqOffsetDuty:cbReqOffsetDuration])
	return r, nil
}
