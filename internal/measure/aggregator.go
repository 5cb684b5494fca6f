package measure

import (
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/notify"
	"github.com/muurk/wbms/internal/protocol"
)

// Aggregator holds the three StorageStates of one endpoint. It is not safe
// for concurrent use.
type Aggregator struct {
	cfg      Config
	notifier notify.Notifier
	states   [protocol.NumSensorTypes]storageState
}

// New creates an aggregator. A nil notifier discards events.
func New(cfg Config, n notify.Notifier) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid measurement config: %w", err)
	}
	if n == nil {
		n = notify.Discard
	}
	a := &Aggregator{cfg: cfg, notifier: n}
	for _, s := range protocol.SensorTypes {
		a.states[s].sensor = s
	}
	return a, nil
}

// Init carves the slot buffer into one range per sensor type and applies
// the initial allocations. Each range is sized for the larger of the two
// contexts. If the buffer is too small the later sensor types get what is
// left; collection then reports InsufficientBuffer.
func (a *Aggregator) Init(slots []Slot, safety, nonSafety Allocation) error {
	if len(slots) == 0 {
		return notify.NewInvalidParameter("empty slot buffer")
	}

	rest := slots
	for _, s := range protocol.SensorTypes {
		need := max(
			bits.OnesCount64(safety.Devices[s])*int(safety.PacketsPerDevice[s]),
			bits.OnesCount64(nonSafety.Devices[s])*int(nonSafety.PacketsPerDevice[s]),
		)
		if need > len(rest) {
			logging.Warn("Slot buffer too small",
				zap.String("sensor", s.String()),
				zap.Int("needed", need),
				zap.Int("available", len(rest)),
			)
			need = len(rest)
		}

		a.states[s] = storageState{sensor: s, slots: rest[:need:need]}
		rest = rest[need:]
	}

	a.SetAllocation(ContextSafety, safety)
	a.SetAllocation(ContextNonSafety, nonSafety)
	return nil
}

// SetAllocation applies alloc for ctx to every sensor type. A non-safety
// allocation with a nonzero bitmap leaves safety StorageStates untouched and
// a zero bitmap only releases a StorageState owned by ctx.
func (a *Aggregator) SetAllocation(ctx Context, alloc Allocation) {
	for _, s := range protocol.SensorTypes {
		a.states[s].setAllocation(ctx, alloc.Devices[s], alloc.PacketsPerDevice[s])
	}
}

// HandlePacket runs a packet through the state, timestamp and sequence
// checks and stores it. Invalid arguments return a *notify.Error; a packet
// that fails a check is counted, reported as an event and returned as a
// *RejectError.
func (a *Aggregator) HandlePacket(now uint32, p Packet) error {
	if !p.Sensor.Valid() {
		return notify.NewInvalidParameter("invalid sensor type %d", p.Sensor)
	}
	if !protocol.IsValidNode(p.DeviceID) {
		return notify.NewInvalidParameter("invalid device id %d", p.DeviceID)
	}
	if len(p.Data) == 0 || len(p.Data) > protocol.MaxMeasurementDataSize {
		return notify.NewInvalidParameter("measurement data length %d out of range", len(p.Data))
	}

	st := &a.states[p.Sensor]

	if r := st.checkState(&p); r != 0 {
		return a.reject(st, &p, r)
	}

	if p.Context == ContextSafety {
		switch st.checkTimestamp(p.Timestamp&timestampMask, a.cfg.TimestampTolerance) {
		case timestampLate:
			return a.reject(st, &p, ReasonLate)
		case timestampNewInterval:
			st.submit(a.notifier)
		}
	}

	seq, r := st.checkSequence(&p)
	if r != 0 {
		return a.reject(st, &p, r)
	}
	if seq.rollover {
		st.submit(a.notifier)
	}
	if seq.setOrigin {
		st.origin[p.DeviceID] = seq.newOrigin
		st.seqInit |= uint64(1) << p.DeviceID
	}

	if !st.collecting {
		if !st.activate(now, a.notifier) {
			st.stats.Dropped++
			return &RejectError{Sensor: p.Sensor, DeviceID: p.DeviceID, Sequence: p.Sequence, Reason: ReasonInsufficientBuffer}
		}
		st.timestamp = p.Timestamp & timestampMask
	}

	idx := st.slotIndex(p.DeviceID, seq.offset)
	if st.isDuplicate(&p, idx) {
		return a.reject(st, &p, ReasonDuplicate)
	}
	if st.slots[idx].Length != 0 {
		return a.reject(st, &p, ReasonSlotOccupied)
	}

	st.store(&p, idx, now)
	if st.filled == st.expected {
		st.submit(a.notifier)
	}
	return nil
}

func (a *Aggregator) reject(st *storageState, p *Packet, r Reason) error {
	event := notify.EventDroppedMeasurement
	switch r {
	case ReasonLate:
		st.stats.Late++
		event = notify.EventLateMeasurement
	case ReasonDuplicate:
		st.stats.Duplicate++
		event = notify.EventDuplicateMeasurement
	default:
		st.stats.Dropped++
	}

	logging.Debug("Measurement rejected",
		zap.String("sensor", p.Sensor.String()),
		zap.Uint8("device_id", p.DeviceID),
		zap.Uint8("seq", p.Sequence),
		zap.String("reason", r.String()),
	)
	a.notifier.Event(event, notify.MeasurementRejection{
		SensorType: p.Sensor.String(),
		DeviceID:   p.DeviceID,
		Sequence:   p.Sequence,
		Reason:     r.String(),
	})
	return &RejectError{Sensor: p.Sensor, DeviceID: p.DeviceID, Sequence: p.Sequence, Reason: r}
}

// Process submits any interval that has gone without an accepted packet for
// longer than the measurement timeout.
func (a *Aggregator) Process(now uint32) {
	for i := range a.states {
		st := &a.states[i]
		if st.collecting && now-st.lastAccepted > a.cfg.MeasurementTimeout {
			logging.Debug("Measurement interval timed out",
				zap.String("sensor", st.sensor.String()),
				zap.Int("filled", st.filled),
				zap.Int("expected", st.expected),
			)
			st.submit(a.notifier)
		}
	}
}

// State returns a read-only view of the sensor type's StorageState
func (a *Aggregator) State(s protocol.SensorType) StateInfo {
	if !s.Valid() {
		return StateInfo{Sensor: s}
	}
	return a.states[s].info()
}

// Stats returns the sensor type's counters
func (a *Aggregator) Stats(s protocol.SensorType) Stats {
	if !s.Valid() {
		return Stats{}
	}
	return a.states[s].stats
}

// Origin returns the interval origin sequence number of a device, if one
// has been recorded.
func (a *Aggregator) Origin(s protocol.SensorType, deviceID uint8) (uint8, bool) {
	if !s.Valid() || !protocol.IsValidNode(deviceID) {
		return 0, false
	}
	st := &a.states[s]
	return st.origin[deviceID], st.seqInit&(uint64(1)<<deviceID) != 0
}
