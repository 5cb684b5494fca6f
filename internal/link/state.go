package link

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/notify"
	"github.com/muurk/wbms/internal/protocol"
)

// TimeoutHandler is called when a request exhausts its retry budget. The
// request has already been deactivated when it runs.
type TimeoutHandler func(api notify.API, target uint8)

// Message is a frame ready for transmission.
type Message struct {
	Target uint8  // Node id or protocol.AllNodes
	Frame  []byte // Owned by State until released
}

// RequestInfo is a read-only snapshot of the request record.
type RequestInfo struct {
	API      notify.API
	Target   uint8
	Sequence uint8
	Pending  bool
	Active   bool
	Ready    bool
	Retries  uint8
	Start    uint32
	Interval uint32
}

// request is the single outstanding request record.
type request struct {
	buf      [protocol.MaxFrameSize]byte
	n        int
	api      notify.API
	target   uint8
	pending  bool
	active   bool
	ready    bool
	start    uint32
	interval uint32
	retries  uint8
}

type heartbeat struct {
	buf   [protocol.MaxFrameSize]byte
	n     int
	on    bool
	start uint32
	seq   uint8
	ready bool
}

// State is the LinkState of one endpoint. It is not safe for concurrent use.
type State struct {
	cfg      Config
	notifier notify.Notifier

	req       request
	onTimeout TimeoutHandler

	nodeSeq      [protocol.MaxNodes]uint8
	broadcastSeq uint8

	lastRx    [protocol.MaxNodes]uint32
	lastAny   uint32
	connected uint64

	hb heartbeat
}

// New creates a LinkState. A nil notifier discards events.
func New(cfg Config, n notify.Notifier) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid link config: %w", err)
	}
	if n == nil {
		n = notify.Discard
	}
	return &State{cfg: cfg, notifier: n}, nil
}

// Config returns the timing constants in use
func (s *State) Config() Config {
	return s.cfg
}

// SetTimeoutHandler registers the handler invoked when a request times out
func (s *State) SetTimeoutHandler(h TimeoutHandler) {
	s.onTimeout = h
}

// WriteRequest frames payload into the request buffer, addressed to target
// with the target's current sequence number. The request is pending but
// its clock is not started until ActivateRequest.
func (s *State) WriteRequest(target uint8, msgType protocol.MessageType, payload []byte) error {
	if !protocol.IsValidNode(target) && target != protocol.AllNodes {
		return notify.NewInvalidParameter("invalid request target %d", target)
	}
	if s.req.pending || s.req.active {
		return notify.NewFail("request already outstanding (api=%s, target=%d)", s.req.api, s.req.target)
	}

	h := protocol.Header{
		Source:      target,
		Sequence:    s.sequenceFor(target),
		MessageType: msgType,
	}
	n, err := protocol.Wrap(h, payload, s.req.buf[:])
	if err != nil {
		return notify.WrapFail("failed to frame request", err)
	}

	s.req.n = n
	s.req.target = target
	s.req.pending = true
	return nil
}

// ActivateRequest starts the retry clock of the pending request and marks
// it ready for transmission.
func (s *State) ActivateRequest(api notify.API, retries uint8, interval uint32, now uint32) error {
	if !s.req.pending || s.req.active {
		return notify.NewInvalidParameter("no inactive pending request to activate")
	}
	if interval == 0 {
		return notify.NewInvalidParameter("retry interval must be positive")
	}

	s.req.api = api
	s.req.retries = retries
	s.req.interval = interval
	s.req.start = now
	s.req.active = true
	s.req.ready = true

	logging.Debug("Request activated",
		zap.String("api", api.String()),
		zap.Uint8("target", s.req.target),
		zap.Uint8("seq", s.req.buf[protocol.OffsetSequence]),
		zap.Uint8("retries", retries),
	)
	return nil
}

// DeactivateRequest clears the request record and advances the sequence
// counter the request was sent with.
func (s *State) DeactivateRequest() error {
	if !s.req.pending && !s.req.active {
		return notify.NewFail("no request to deactivate")
	}

	if s.req.target == protocol.AllNodes {
		s.broadcastSeq++
	} else {
		s.nodeSeq[s.req.target]++
	}

	s.req.pending = false
	s.req.active = false
	s.req.ready = false
	s.req.api = notify.APINone
	return nil
}

// DiscardRequest drops a pending request that was never activated. The
// sequence counter is left untouched since nothing went out.
func (s *State) DiscardRequest() error {
	if !s.req.pending || s.req.active {
		return notify.NewFail("no inactive pending request to discard")
	}
	s.req.pending = false
	s.req.ready = false
	return nil
}

// Request returns a snapshot of the request record
func (s *State) Request() RequestInfo {
	return RequestInfo{
		API:      s.req.api,
		Target:   s.req.target,
		Sequence: s.req.buf[protocol.OffsetSequence],
		Pending:  s.req.pending,
		Active:   s.req.active,
		Ready:    s.req.ready,
		Retries:  s.req.retries,
		Start:    s.req.start,
		Interval: s.req.interval,
	}
}

// RequestActive reports whether a request is in flight for api
func (s *State) RequestActive(api notify.API) bool {
	return s.req.active && s.req.api == api
}

// Sequence returns the sequence number the next request to target will use
func (s *State) Sequence(target uint8) uint8 {
	return s.sequenceFor(target)
}

func (s *State) sequenceFor(target uint8) uint8 {
	if target == protocol.AllNodes {
		return s.broadcastSeq
	}
	return s.nodeSeq[target]
}

// Received records a validated inbound frame from deviceID.
func (s *State) Received(deviceID uint8, now uint32) {
	if protocol.IsValidNode(deviceID) {
		s.lastRx[deviceID] = now
	}
	s.lastAny = now

	if !s.hb.on {
		s.hb.on = true
		s.hb.start = now
		logging.Debug("Heartbeat started", zap.Uint32("now", now))
	}
}

// SetConnected marks deviceID connected. A NodeConnected event is raised on
// the disconnected to connected edge only.
func (s *State) SetConnected(deviceID uint8, now uint32) error {
	if !protocol.IsValidNode(deviceID) {
		return notify.NewInvalidParameter("invalid device id %d", deviceID)
	}
	s.lastRx[deviceID] = now

	bit := uint64(1) << deviceID
	if s.connected&bit != 0 {
		return nil
	}
	s.connected |= bit

	logging.Info("Node connected", zap.Uint8("device_id", deviceID))
	s.notifier.Event(notify.EventNodeConnected, notify.NodeEvent{DeviceID: deviceID})
	return nil
}

// Connected returns the connected-node bitmap
func (s *State) Connected() uint64 {
	return s.connected
}

// IsConnected reports whether deviceID is connected
func (s *State) IsConnected(deviceID uint8) bool {
	return protocol.IsValidNode(deviceID) && s.connected&(uint64(1)<<deviceID) != 0
}

// HeartbeatOn reports whether the heartbeat timer is running
func (s *State) HeartbeatOn() bool {
	return s.hb.on
}

// HeartbeatSequence returns the sequence number the next heartbeat will use
func (s *State) HeartbeatSequence() uint8 {
	return s.hb.seq
}

// Process runs the time-based transitions: request retry and timeout,
// node disconnection and heartbeat cadence.
func (s *State) Process(now uint32) {
	s.processRequest(now)
	s.processLiveness(now)
	s.processHeartbeat(now)
}

func (s *State) processRequest(now uint32) {
	if !s.req.active || now-s.req.start <= s.req.interval {
		return
	}

	if s.req.ready {
		logging.Warn("Request expired before transmission",
			zap.String("api", s.req.api.String()),
			zap.Uint8("target", s.req.target),
		)
		s.notifier.Event(notify.EventTransmitExpired, notify.TransmitExpired{API: s.req.api, Target: s.req.target})
	}

	if s.req.retries > 0 {
		s.req.retries--
		s.req.start = now
		s.req.ready = true
		logging.Debug("Request re-armed",
			zap.String("api", s.req.api.String()),
			zap.Uint8("target", s.req.target),
			zap.Uint8("retries_left", s.req.retries),
		)
		return
	}

	api, target := s.req.api, s.req.target
	_ = s.DeactivateRequest()
	logging.Warn("Request timed out",
		zap.String("api", api.String()),
		zap.Uint8("target", target),
	)
	if s.onTimeout != nil {
		s.onTimeout(api, target)
	}
}

func (s *State) processLiveness(now uint32) {
	if s.connected == 0 {
		return
	}
	for id := uint8(0); id < protocol.MaxNodes; id++ {
		bit := uint64(1) << id
		if s.connected&bit == 0 {
			continue
		}
		if now-s.lastRx[id] > s.cfg.DisconnectTimeout {
			s.connected &^= bit
			logging.Info("Node disconnected",
				zap.Uint8("device_id", id),
				zap.Uint32("silent_ms", now-s.lastRx[id]),
			)
			s.notifier.Event(notify.EventNodeDisconnected, notify.NodeEvent{DeviceID: id})
		}
	}
}

func (s *State) processHeartbeat(now uint32) {
	if !s.hb.on {
		return
	}

	if now-s.lastAny > s.cfg.AliveTimeout {
		s.hb.on = false
		s.hb.ready = false
		logging.Info("Heartbeat stopped", zap.Uint32("silent_ms", now-s.lastAny))
		s.notifier.Event(notify.EventSafetyCPUDisconnected, nil)
		return
	}

	if now-s.hb.start < s.cfg.HeartbeatPeriod {
		return
	}
	s.hb.start = now

	var payload [protocol.HeartbeatSize]byte
	if _, err := protocol.EncodeHeartbeat(s.connected, payload[:]); err != nil {
		logging.Error("Failed to encode heartbeat", zap.Error(err))
		return
	}
	h := protocol.Header{
		Source:      protocol.AllNodes,
		Sequence:    s.hb.seq,
		MessageType: protocol.MsgTypeHeartbeat,
	}
	n, err := protocol.Wrap(h, payload[:], s.hb.buf[:])
	if err != nil {
		logging.Error("Failed to frame heartbeat", zap.Error(err))
		return
	}
	s.hb.n = n
	s.hb.seq++
	s.hb.ready = true
}

// PendingMessage returns the next frame to transmit: the request if ready,
// else the heartbeat if ready.
func (s *State) PendingMessage() (Message, bool) {
	if s.req.ready {
		return Message{Target: s.req.target, Frame: s.req.buf[:s.req.n]}, true
	}
	if s.hb.ready {
		return Message{Target: protocol.AllNodes, Frame: s.hb.buf[:s.hb.n]}, true
	}
	return Message{}, false
}

// ReleaseBuffer hands a frame obtained from PendingMessage back after
// transmission. The buffer is matched by identity.
func (s *State) ReleaseBuffer(frame []byte) error {
	if len(frame) == 0 {
		return notify.NewInvalidParameter("empty buffer")
	}

	switch &frame[0] {
	case &s.req.buf[0]:
		if !s.req.ready {
			return notify.NewFail("request buffer not pending transmission")
		}
		s.req.ready = false
	case &s.hb.buf[0]:
		if !s.hb.ready {
			return notify.NewFail("heartbeat buffer not pending transmission")
		}
		s.hb.ready = false
	default:
		return notify.NewFail("buffer does not belong to this link")
	}
	return nil
}
