package endpoint

import (
	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/measure"
	"github.com/muurk/wbms/internal/notify"
	"github.com/muurk/wbms/internal/protocol"
)

// DeliverFrame hands an inbound frame received from deviceID to the
// endpoint. Only a nil frame or an out-of-range device id is an error;
// frames that fail validation are reported with an SCLValidationError event
// and dropped.
func (e *Endpoint) DeliverFrame(deviceID uint8, raw []byte) error {
	if raw == nil {
		return notify.NewInvalidParameter("nil frame")
	}
	if !protocol.IsValidNode(deviceID) {
		return notify.NewInvalidParameter("invalid device id %d", deviceID)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	now := e.clock()
	e.stats.FramesReceived++
	logging.LogFrame("rx", deviceID, raw)

	if len(raw) < protocol.MinFrameSize || len(raw) > protocol.MaxFrameSize {
		e.dropFrame(deviceID, "frame length out of range")
		return nil
	}
	buf := e.rx[:copy(e.rx[:], raw)]

	h, dst, payload, err := protocol.Unwrap(buf)
	if err != nil {
		e.dropFrame(deviceID, err.Error())
		return nil
	}
	if protocol.HeaderSize+int(h.PayloadLength)+protocol.CheckSize != len(buf) {
		e.dropFrame(deviceID, "payload length mismatch")
		return nil
	}
	if !protocol.ValidateIncoming(h, deviceID, dst) {
		e.dropFrame(deviceID, "addressing mismatch")
		return nil
	}
	if !protocol.ValidateCheck(buf) {
		e.dropFrame(deviceID, "check mismatch")
		return nil
	}
	if !h.MessageType.Valid() {
		e.dropFrame(deviceID, "unknown message type")
		return nil
	}

	e.link.Received(deviceID, now)

	switch h.MessageType {
	case protocol.MsgTypeConnect:
		e.handleConnectResponse(h, payload, now)
	case protocol.MsgTypeMeasurementStart, protocol.MsgTypeMeasurementSupplemental:
		e.handleMeasurement(h, payload, now)
	case protocol.MsgTypeSensorCommand:
		e.handleSensorCommand(h, payload)
	case protocol.MsgTypeHeartbeat:
		// Liveness only.
	case protocol.MsgTypeFault:
		e.notifier.Event(notify.EventFaultReport, notify.FaultReport{
			DeviceID: deviceID,
			Data:     append([]byte(nil), payload...),
		})
	}
	return nil
}

func (e *Endpoint) dropFrame(deviceID uint8, reason string) {
	e.stats.FramesDropped++
	logging.Warn("Frame dropped",
		zap.Uint8("device_id", deviceID),
		zap.String("reason", reason),
	)
	e.notifier.Event(notify.EventSCLValidationError, notify.ValidationError{
		DeviceID: deviceID,
		Reason:   reason,
	})
}

func (e *Endpoint) handleMeasurement(h protocol.Header, payload []byte, now uint32) {
	m, err := protocol.ParseMeasurement(payload)
	if err != nil {
		e.dropFrame(h.Source, err.Error())
		return
	}

	err = e.agg.HandlePacket(now, measure.Packet{
		Sensor:    m.Sensor,
		Context:   measure.ContextSafety,
		DeviceID:  h.Source,
		Sequence:  h.Sequence,
		Timestamp: m.Timestamp,
		Start:     h.MessageType == protocol.MsgTypeMeasurementStart,
		Data:      m.Data,
	})
	if err != nil {
		logging.Debug("Measurement not stored", zap.Error(err))
	}
}

// DeliverNonSafetyMeasurement feeds a packet received on the non-safety
// path to the aggregator. Rejections are reported through events; only
// invalid packets return an error.
func (e *Endpoint) DeliverNonSafetyMeasurement(p measure.Packet) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	p.Context = measure.ContextNonSafety
	err := e.agg.HandlePacket(e.clock(), p)
	if notify.ResultOf(err) == notify.InvalidParameter {
		return err
	}
	if err != nil {
		logging.Debug("Measurement not stored", zap.Error(err))
	}
	return nil
}

func (e *Endpoint) handleSensorCommand(h protocol.Header, payload []byte) {
	cmd, err := protocol.CommandID(payload)
	if err != nil {
		e.dropFrame(h.Source, err.Error())
		return
	}

	switch cmd {
	case protocol.CmdConfigureCellBalancing:
		e.handleCellBalancingResponse(h, payload)
	case protocol.CmdGetCellBalancingStatus:
		e.handleCellBalancingStatus(h, payload)
	default:
		logging.Debug("Unknown sensor command",
			zap.Uint8("device_id", h.Source),
			zap.Uint8("command", cmd),
		)
	}
}
