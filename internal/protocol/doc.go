// Package protocol implements the wBMS Safety CPU frame layer.
//
// This package handles packing, unpacking, checksumming and validation of the
// short binary frames exchanged between the host controller and remote
// Safety CPU nodes, plus the fixed sub-frame layouts carried in their
// payloads.
//
// # Frame Format
//
//	[0]     srcId          Source device id
//	[1]     dstId          Destination device id
//	[2]     seqNum         Sequence number
//	[3]     msgType        Message type
//	[4]     payloadLen     Payload length (0-75)
//	[5..]   payload        Message payload
//	[N-4..] check          32-bit frame check sequence (big-endian)
//
// Frames from the host are addressed to a node id (0-61) or to AllNodes
// (0xFF). Frames from nodes are addressed to HostControllerID (0xF0).
//
// # Message Types
//
//   - Connect (1): connect request / 51-byte connect response
//   - MeasurementStart (2), MeasurementSupplemental (3): sensor data packets
//   - SensorCommand (4): cell balancing configure / status
//   - Heartbeat (5): connected-node bitmap broadcast
//   - Fault (6): node fault report
//
// All multi-byte sub-frame fields are big-endian.
//
// # Check Sequence
//
// The check is a table-driven CRC-32 over header and payload. The table and
// seed are fixed protocol assets shared with node firmware.
//
// # Usage Example - Transmit
//
//	h := protocol.Header{Source: nodeID, Sequence: seq, MessageType: protocol.MsgTypeSensorCommand}
//	n, err := protocol.Wrap(h, protocol.BuildGetStatusRequest(), buf)
//
// # Usage Example - Receive
//
//	h, dst, payload, err := protocol.Unwrap(raw)
//	if err != nil || !protocol.ValidateIncoming(h, deviceID, dst) || !protocol.ValidateCheck(raw) {
//	    // drop and report
//	}
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package protocol
