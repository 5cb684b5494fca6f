package protocol

import (
	"encoding/hex"
	"fmt"
)

// Description is a decoded, human-readable view of a frame used for
// debugging and the CLI decode command.
type Description struct {
	Header      Header
	Destination uint8
	CheckValid  bool
	Inbound     bool // Destination is the host controller
	Payload     []byte
	Fields      []Field
}

// Field is one named value in a Description.
type Field struct {
	Name  string
	Value string
}

// Describe decodes raw into a Description. Structural problems that still
// leave a readable header are reported as fields rather than errors.
func Describe(raw []byte) (*Description, error) {
	h, dst, payload, err := Unwrap(raw)
	if err != nil {
		return nil, err
	}

	d := &Description{
		Header:      h,
		Destination: dst,
		CheckValid:  ValidateCheck(raw),
		Inbound:     dst == HostControllerID,
		Payload:     payload,
	}

	if want := HeaderSize + int(h.PayloadLength) + CheckSize; want != len(raw) {
		d.add("length_mismatch", fmt.Sprintf("header declares %d bytes, frame has %d", want, len(raw)))
	}

	switch h.MessageType {
	case MsgTypeConnect:
		d.describeConnect(payload)
	case MsgTypeMeasurementStart, MsgTypeMeasurementSupplemental:
		d.describeMeasurement(payload)
	case MsgTypeSensorCommand:
		d.describeSensorCommand(payload)
	case MsgTypeHeartbeat:
		if connected, err := ParseHeartbeat(payload); err == nil {
			d.add("connected", fmt.Sprintf("0x%016x", connected))
		} else {
			d.add("error", err.Error())
		}
	case MsgTypeFault:
		d.add("fault_data", hex.EncodeToString(payload))
	default:
		d.add("raw", hex.EncodeToString(payload))
	}

	return d, nil
}

func (d *Description) add(name, value string) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value})
}

func (d *Description) describeConnect(payload []byte) {
	if len(payload) == 0 {
		d.add("request", "connect")
		return
	}
	r, err := ParseConnectResponse(payload)
	if err != nil {
		d.add("error", err.Error())
		return
	}
	d.add("mac", hex.EncodeToString(r.MAC[:]))
	d.add("serial", hex.EncodeToString(r.SerialID[:]))
	d.add("app_version", fmt.Sprintf("0x%04x", r.ApplicationVersion))
	d.add("boot_version", fmt.Sprintf("0x%04x", r.BootloaderVersion))
	d.add("hw_version", fmt.Sprintf("0x%04x", r.HardwareVersion))
	d.add("protocol_version", fmt.Sprintf("0x%04x", r.ProtocolVersion))
	d.add("config_crc", fmt.Sprintf("0x%08x", r.ConfigurationCRC))
	for _, s := range SensorTypes {
		d.add(s.String()+"_interval_ms", fmt.Sprintf("%d", r.Intervals[s]))
		d.add(s.String()+"_packets", fmt.Sprintf("%d", r.MaxPackets[s]))
	}
	d.add("mode", fmt.Sprintf("%d", r.Mode))
	d.add("return_code", fmt.Sprintf("%d", r.ReturnCode))
}

func (d *Description) describeMeasurement(payload []byte) {
	m, err := ParseMeasurement(payload)
	if err != nil {
		d.add("error", err.Error())
		return
	}
	d.add("sensor", m.Sensor.String())
	d.add("timestamp", fmt.Sprintf("0x%06x", m.Timestamp))
	d.add("packet_id", fmt.Sprintf("0x%02x", m.Data[0]))
	d.add("data_len", fmt.Sprintf("%d", len(m.Data)))
}

func (d *Description) describeSensorCommand(payload []byte) {
	cmd, err := CommandID(payload)
	if err != nil {
		d.add("error", err.Error())
		return
	}

	switch {
	case cmd == CmdConfigureCellBalancing && len(payload) == CellBalancingRequestSize:
		req, _ := ParseCellBalancingRequest(payload)
		d.add("command", "configure_cell_balancing")
		d.add("duration", fmt.Sprintf("%d", req.Duration))
		d.add("threshold", fmt.Sprintf("%d", req.Threshold))
	case cmd == CmdConfigureCellBalancing:
		resp, err := ParseCellBalancingResponse(payload)
		if err != nil {
			d.add("error", err.Error())
			return
		}
		d.add("command", "configure_cell_balancing_response")
		d.add("sequence", fmt.Sprintf("%d", resp.Sequence))
		d.add("return_code", fmt.Sprintf("%d", resp.ReturnCode))
	case cmd == CmdGetCellBalancingStatus && len(payload) == GetStatusRequestSize:
		d.add("command", "get_cell_balancing_status")
	case cmd == CmdGetCellBalancingStatus:
		st, err := ParseCellBalancingStatus(payload)
		if err != nil {
			d.add("error", err.Error())
			return
		}
		d.add("command", "cell_balancing_status")
		d.add("sequence", fmt.Sprintf("%d", st.Sequence))
		d.add("return_code", fmt.Sprintf("%d", st.ReturnCode))
		d.add("enabled_cells", fmt.Sprintf("0x%016x", st.EnabledBitmap()))
		d.add("remaining", fmt.Sprintf("%d", st.RemainingDuration))
		d.add("thermal_shutdown", fmt.Sprintf("%v", st.ThermalShutdown))
	default:
		d.add("command", fmt.Sprintf("unknown(0x%02x)", cmd))
	}
}

// String returns a one-line summary of the frame
func (d *Description) String() string {
	check := "ok"
	if !d.CheckValid {
		check = "BAD"
	}
	return fmt.Sprintf("%s dst=%d check=%s payload=%d bytes", d.Header, d.Destination, check, len(d.Payload))
}
