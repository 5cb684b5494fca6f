package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/endpoint"
	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/measure"
	"github.com/muurk/wbms/internal/notify"
	"github.com/muurk/wbms/internal/protocol"
	"github.com/muurk/wbms/internal/version"
)

// Control operations accepted in text messages
const (
	OpConnect                = "connect"
	OpConfigureCellBalancing = "configure_cell_balancing"
	OpGetCellBalancingStatus = "get_cell_balancing_status"
	OpStatus                 = "status"
)

// Notification kinds sent in text messages
const (
	KindReply    = "reply"
	KindComplete = "complete"
	KindEvent    = "event"
)

// ControlRequest is a JSON control message from a peer.
type ControlRequest struct {
	Op         string `json:"op"`
	Devices    uint64 `json:"devices,omitempty"`
	DutyCycles []int  `json:"duty_cycles,omitempty"`
	Duration   uint16 `json:"duration,omitempty"`
	Threshold  uint32 `json:"threshold,omitempty"`
}

// Notification is a JSON message sent to peers.
type Notification struct {
	Kind   string `json:"kind"`
	Op     string `json:"op,omitempty"`
	API    string `json:"api,omitempty"`
	Event  string `json:"event,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Status is the endpoint snapshot served by /status and the status op.
type Status struct {
	Version   version.BuildInfo `json:"version"`
	Connected string            `json:"connected"`
	Peers     int               `json:"peers"`
	Frames    endpoint.Stats    `json:"frames"`
	Sensors   []SensorStatus    `json:"sensors"`
}

// SensorStatus is one sensor type's aggregation state.
type SensorStatus struct {
	Sensor     string        `json:"sensor"`
	Context    string        `json:"context"`
	Devices    string        `json:"devices"`
	Collecting bool          `json:"collecting"`
	Filled     int           `json:"filled"`
	Expected   int           `json:"expected"`
	Stats      measure.Stats `json:"stats"`
}

// handleControl runs one control request and replies to the sender
func (s *Server) handleControl(p *peer, data []byte) {
	var req ControlRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.reply(p, Notification{Kind: KindReply, Result: notify.InvalidParameter.String(), Error: err.Error()})
		return
	}

	if req.Op == OpStatus {
		s.reply(p, Notification{Kind: KindReply, Op: req.Op, Result: notify.Success.String(), Data: s.Snapshot()})
		return
	}

	err := s.Do(func(ep *endpoint.Endpoint) error {
		switch req.Op {
		case OpConnect:
			return ep.Connect(req.Devices)
		case OpConfigureCellBalancing:
			if len(req.DutyCycles) > protocol.NumCells {
				return notify.NewInvalidParameter("%d duty cycles (max %d)", len(req.DutyCycles), protocol.NumCells)
			}
			cb := &protocol.CellBalancingRequest{Duration: req.Duration, Threshold: req.Threshold}
			for i, duty := range req.DutyCycles {
				if duty < 0 || duty > 0xFF {
					return notify.NewInvalidParameter("duty cycle %d out of range: %d", i, duty)
				}
				cb.DutyCycles[i] = uint8(duty)
			}
			return ep.ConfigureCellBalancing(req.Devices, cb)
		case OpGetCellBalancingStatus:
			return ep.GetCellBalancingStatus()
		default:
			return notify.NewInvalidParameter("unknown op %q", req.Op)
		}
	})

	n := Notification{Kind: KindReply, Op: req.Op, Result: notify.ResultOf(err).String()}
	if err != nil {
		n.Error = err.Error()
	}
	s.reply(p, n)
}

func (s *Server) reply(p *peer, n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		logging.Error("Failed to marshal reply", zap.Error(err))
		return
	}
	p.enqueue(outbound{messageType: websocket.TextMessage, data: data})
}

func (s *Server) notifyPeers(n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		logging.Error("Failed to marshal notification",
			zap.String("kind", n.Kind),
			zap.Error(err),
		)
		return
	}
	s.broadcast(outbound{messageType: websocket.TextMessage, data: data})
}

// bridgeNotifier forwards endpoint notifications to every peer. It runs
// with s.mu held.
type bridgeNotifier struct {
	s *Server
}

func (b bridgeNotifier) APIComplete(api notify.API, result notify.Result, data any) {
	if b.s.config.Notifier != nil {
		b.s.config.Notifier.APIComplete(api, result, data)
	}
	b.s.notifyPeers(Notification{
		Kind:   KindComplete,
		API:    api.String(),
		Result: result.String(),
		Data:   notificationData(data),
	})
}

func (b bridgeNotifier) Event(event notify.Event, data any) {
	if b.s.config.Notifier != nil {
		b.s.config.Notifier.Event(event, data)
	}
	b.s.notifyPeers(Notification{
		Kind:  KindEvent,
		Event: event.String(),
		Data:  notificationData(data),
	})
}

// ensembleView is the JSON form of a measure.Ensemble
type ensembleView struct {
	Sensor    string     `json:"sensor"`
	Context   string     `json:"context"`
	Timestamp uint32     `json:"timestamp"`
	Filled    int        `json:"filled"`
	Slots     []slotView `json:"slots"`
}

type slotView struct {
	DeviceID uint8  `json:"device_id"`
	Sequence uint8  `json:"sequence"`
	Data     string `json:"data"`
}

// notificationData converts payloads that reference endpoint-owned buffers
// into self-contained JSON values.
func notificationData(data any) any {
	switch d := data.(type) {
	case measure.Ensemble:
		v := ensembleView{
			Sensor:    d.Sensor.String(),
			Context:   d.Context.String(),
			Timestamp: d.Timestamp,
			Filled:    d.Filled,
		}
		for i := range d.Slots {
			slot := &d.Slots[i]
			if slot.Length == 0 {
				continue
			}
			v.Slots = append(v.Slots, slotView{
				DeviceID: slot.DeviceID,
				Sequence: slot.Sequence,
				Data:     hex.EncodeToString(slot.Bytes()),
			})
		}
		return v
	case notify.FaultReport:
		return map[string]string{
			"device_id": fmt.Sprintf("%d", d.DeviceID),
			"data":      hex.EncodeToString(d.Data),
		}
	default:
		return data
	}
}

func (s *Server) snapshotLocked() Status {
	st := Status{
		Version:   version.Info(),
		Connected: fmt.Sprintf("0x%016x", s.ep.Connected()),
		Peers:     s.GetActiveConnections(),
		Frames:    s.ep.Stats(),
	}
	for _, sensor := range protocol.SensorTypes {
		info := s.ep.MeasurementState(sensor)
		st.Sensors = append(st.Sensors, SensorStatus{
			Sensor:     sensor.String(),
			Context:    info.Context.String(),
			Devices:    fmt.Sprintf("0x%016x", info.Devices),
			Collecting: info.Collecting,
			Filled:     info.Filled,
			Expected:   info.Expected,
			Stats:      s.ep.MeasurementStats(sensor),
		})
	}
	return st
}

// handleStatus serves the endpoint snapshot as JSON
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		logging.Error("Failed to write status", zap.Error(err))
	}
}
