package protocol

import (
	"encoding/binary"
	"fmt"
)

// Message constructors for sub-frame payloads. Host-to-node payloads are
// built here and then wrapped by the link layer; node-to-host encoders exist
// for the bridge simulator, the CLI and tests.

// Heartbeat request layout (12 bytes)
const (
	HeartbeatSize = 12

	hbOffsetConnected = 0 // [0-7]  Connected node bitmap
	hbOffsetReserved  = 8 // [8-11] Reserved, zero
)

// Configure-cell-balancing request layout (71 bytes)
const (
	CellBalancingRequestSize = 71

	cbReqOffsetCommand   = 0  // [0]     Command id
	cbReqOffsetDuty      = 1  // [1-64]  Duty cycle per cell
	cbReqOffsetDuration  = 65 // [65-66] Duration
	cbReqOffsetThreshold = 67 // [67-70] Threshold
)

// GetStatusRequestSize is the size of a get-cell-balancing-status request
const GetStatusRequestSize = 1

// CellBalancingRequest holds the parameters of a configure-cell-balancing
// request.
type CellBalancingRequest struct {
	DutyCycles [NumCells]uint8
	Duration   uint16
	Threshold  uint32
}

// EncodeHeartbeat writes a heartbeat payload carrying the connected-node
// bitmap into out and returns its length.
func EncodeHeartbeat(connected uint64, out []byte) (int, error) {
	if len(out) < HeartbeatSize {
		return 0, fmt.Errorf("heartbeat: %w: need %d bytes", ErrShortBuffer, HeartbeatSize)
	}
	binary.BigEndian.PutUint64(out[hbOffsetConnected:], connected)
	for i := hbOffsetReserved; i < HeartbeatSize; i++ {
		out[i] = 0
	}
	return HeartbeatSize, nil
}

// BuildCellBalancingRequest returns a 71-byte configure-cell-balancing payload
func BuildCellBalancingRequest(req *CellBalancingRequest) []byte {
	payload := make([]byte, CellBalancingRequestSize)
	payload[cbReqOffsetCommand] = CmdConfigureCellBalancing
	copy(payload[cbReqOffsetDuty:cbReqOffsetDuration], req.DutyCycles[:])
	binary.BigEndian.PutUint16(payload[cbReqOffsetDuration:], req.Duration)
	binary.BigEndian.PutUint32(payload[cbReqOffsetThreshold:], req.Threshold)
	return payload
}

// BuildGetStatusRequest returns a 1-byte get-cell-balancing-status payload
func BuildGetStatusRequest() []byte {
	return []byte{CmdGetCellBalancingStatus}
}

// BuildConnectResponse encodes r as a 51-byte connect response payload
func BuildConnectResponse(r *ConnectResponse) []byte {
	payload := make([]byte, ConnectResponseSize)
	copy(payload[connOffsetMAC:], r.MAC[:])
	copy(payload[connOffsetSerial:], r.SerialID[:])
	binary.BigEndian.PutUint16(payload[connOffsetAppVersion:], r.ApplicationVersion)
	binary.BigEndian.PutUint16(payload[connOffsetBootVersion:], r.BootloaderVersion)
	binary.BigEndian.PutUint16(payload[connOffsetHWVersion:], r.HardwareVersion)
	binary.BigEndian.PutUint16(payload[connOffsetProtocolVersion:], r.ProtocolVersion)
	binary.BigEndian.PutUint32(payload[connOffsetAppCRC:], r.ApplicationCRC)
	binary.BigEndian.PutUint32(payload[connOffsetBootCRC:], r.BootloaderCRC)
	binary.BigEndian.PutUint32(payload[connOffsetConfigCRC:], r.ConfigurationCRC)
	binary.BigEndian.PutUint32(payload[connOffsetSafetyParamsCRC:], r.SafetyParamsCRC)
	binary.BigEndian.PutUint16(payload[connOffsetBMSInterval:], r.Intervals[SensorBMS])
	binary.BigEndian.PutUint16(payload[connOffsetPMSInterval:], r.Intervals[SensorPMS])
	binary.BigEndian.PutUint16(payload[connOffsetEMSInterval:], r.Intervals[SensorEMS])
	payload[connOffsetBMSPacketsMax] = r.MaxPackets[SensorBMS]
	payload[connOffsetPMSPacketsMax] = r.MaxPackets[SensorPMS]
	payload[connOffsetEMSPacketsMax] = r.MaxPackets[SensorEMS]
	payload[connOffsetMode] = r.Mode
	payload[connOffsetReturnCode] = r.ReturnCode
	return payload
}

// BuildCellBalancingResponse encodes a 3-byte configure-cell-balancing reply
func BuildCellBalancingResponse(seq uint8, returnCode uint8) []byte {
	return []byte{CmdConfigureCellBalancing, seq, returnCode}
}

// BuildCellBalancingStatus encodes s as a 71-byte get-status reply
func BuildCellBalancingStatus(s *CellBalancingStatus) []byte {
	payload := make([]byte, CellBalancingStatusSize)
	payload[cbStatusOffsetCommand] = CmdGetCellBalancingStatus
	payload[cbStatusOffsetSequence] = s.Sequence
	payload[cbStatusOffsetReturnCode] = s.ReturnCode
	copy(payload[cbStatusOffsetCells:cbStatusOffsetRemaining], s.EnabledCells[:])
	binary.BigEndian.PutUint16(payload[cbStatusOffsetRemaining:], s.RemainingDuration)
	if s.ThermalShutdown {
		payload[cbStatusOffsetThermal] = 1
	}
	return payload
}

// BuildMeasurement encodes a measurement payload. timestamp is the 24-bit
// interval timestamp; it is sent in the high 24 bits of the 32-bit field.
func BuildMeasurement(sensor SensorType, timestamp uint32, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("measurement: %w: no data", ErrShortPayload)
	}
	if len(data) > MaxMeasurementDataSize {
		return nil, fmt.Errorf("measurement: %w: %d data bytes (max %d)", ErrPayloadTooLarge, len(data), MaxMeasurementDataSize)
	}

	payload := make([]byte, MeasurementHeaderSize+len(data))
	payload[measOffsetSensor] = byte(sensor)
	binary.BigEndian.PutUint32(payload[measOffsetTimestamp:], (timestamp&0xFFFFFF)<<8)
	copy(payload[measOffsetData:], data)
	return payload, nil
}
