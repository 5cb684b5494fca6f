package measure

import (
	"math/bits"

	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/notify"
	"github.com/muurk/wbms/internal/protocol"
)

const (
	timestampModulus = 1 << 24
	timestampMask    = timestampModulus - 1
	historySize      = 2
)

// storageState is the collection state machine of one sensor type.
type storageState struct {
	sensor protocol.SensorType
	slots  []Slot

	initialized bool
	context     Context
	devices     uint64
	packets     uint8

	// Snapshot taken when collection of the current interval began.
	collecting   bool
	snapDevices  uint64
	snapPackets  uint8
	snapContext  Context
	filled       int
	expected     int
	contributed  uint64
	timestamp    uint32
	lastAccepted uint32

	origin  [protocol.MaxNodes]uint8
	seqInit uint64

	history  [historySize]uint32
	historyN int

	stats Stats
}

func (st *storageState) setAllocation(ctx Context, devices uint64, packets uint8) {
	if devices == 0 {
		// Releasing only applies to the owning context.
		if st.initialized && st.context == ctx {
			st.initialized = false
			st.devices = 0
			st.packets = 0
		}
		return
	}
	if ctx == ContextNonSafety && st.initialized && st.context == ContextSafety {
		logging.Debug("Non-safety allocation ignored for safety storage",
			zap.String("sensor", st.sensor.String()),
			zap.Uint64("devices", devices),
		)
		return
	}

	if st.context != ctx {
		st.seqInit = 0
		st.historyN = 0
	}
	st.context = ctx
	st.devices = devices
	st.packets = packets
	st.initialized = true
}

// packetsPerDevice returns the packet count governing the current interval
func (st *storageState) packetsPerDevice() uint8 {
	if st.collecting {
		return st.snapPackets
	}
	return st.packets
}

func (st *storageState) checkState(p *Packet) Reason {
	if !st.initialized {
		return ReasonNotInitialized
	}
	if p.Context != st.context {
		return ReasonContextMismatch
	}
	bit := uint64(1) << p.DeviceID
	if st.devices&bit == 0 {
		return ReasonUnknownDevice
	}
	if st.collecting {
		if st.snapPackets != st.packets || st.snapContext != st.context || st.snapDevices&bit == 0 {
			return ReasonAllocationChanged
		}
	}
	return 0
}

// timestampDistance returns the wrapping distance between two 24-bit
// timestamps.
func timestampDistance(a, b uint32) uint32 {
	d := (a - b) & timestampMask
	if d > timestampModulus/2 {
		d = timestampModulus - d
	}
	return d
}

type timestampResult int

const (
	timestampCurrent timestampResult = iota
	timestampLate
	timestampNewInterval
)

func (st *storageState) checkTimestamp(ts uint32, tolerance uint32) timestampResult {
	if !st.collecting || timestampDistance(ts, st.timestamp) <= tolerance {
		return timestampCurrent
	}
	for i := 0; i < st.historyN; i++ {
		if timestampDistance(ts, st.history[i]) <= tolerance {
			return timestampLate
		}
	}
	return timestampNewInterval
}

// sequenceResult is the outcome of a successful sequence check.
type sequenceResult struct {
	offset    uint8 // slot offset within the device's range
	newOrigin uint8
	setOrigin bool
	rollover  bool // submit the buffered interval first
}

func (st *storageState) checkSequence(p *Packet) (sequenceResult, Reason) {
	ppi := st.packetsPerDevice()
	if ppi == 0 || ppi > MaxPacketsPerDevice {
		return sequenceResult{}, ReasonTooManyPackets
	}

	bit := uint64(1) << p.DeviceID
	if st.seqInit&bit == 0 {
		if !p.Start {
			return sequenceResult{}, ReasonNoOrigin
		}
		return sequenceResult{newOrigin: p.Sequence, setOrigin: true}, 0
	}

	origin := st.origin[p.DeviceID]
	distance := p.Sequence - origin
	if int(distance) >= 256-2*int(ppi) {
		return sequenceResult{}, ReasonLate
	}

	canResync := !st.collecting || st.contributed&bit == 0

	if p.Start {
		switch {
		case distance == 0:
			return sequenceResult{}, 0
		case distance == ppi:
			return sequenceResult{newOrigin: p.Sequence, setOrigin: true, rollover: true}, 0
		case canResync:
			return sequenceResult{newOrigin: p.Sequence, setOrigin: true}, 0
		default:
			return sequenceResult{}, ReasonOutOfSequence
		}
	}

	offset := distance % ppi
	switch {
	case distance > 0 && distance < ppi:
		return sequenceResult{offset: distance}, 0
	case distance > ppi && distance < 2*ppi:
		return sequenceResult{offset: offset, newOrigin: origin + ppi, setOrigin: true, rollover: true}, 0
	case offset == 0 && distance != 0 && canResync:
		// Re-sync only on an interval boundary; the packet opens its interval.
		return sequenceResult{newOrigin: p.Sequence, setOrigin: true}, 0
	default:
		return sequenceResult{}, ReasonOutOfSequence
	}
}

// activate prepares the slot range for a new interval. It returns false if
// the collecting devices do not fit.
func (st *storageState) activate(now uint32, n notify.Notifier) bool {
	for i := range st.slots {
		st.slots[i] = Slot{}
	}

	st.snapDevices = st.devices
	st.snapPackets = st.packets
	st.snapContext = st.context
	st.filled = 0
	st.contributed = 0

	need := bits.OnesCount64(st.snapDevices) * int(st.snapPackets)
	if need > len(st.slots) {
		logging.Warn("Insufficient measurement buffer",
			zap.String("sensor", st.sensor.String()),
			zap.Int("needed", need),
			zap.Int("capacity", len(st.slots)),
		)
		n.Event(notify.EventInsufficientBuffer, notify.MeasurementRejection{
			SensorType: st.sensor.String(),
			Reason:     ReasonInsufficientBuffer.String(),
		})
		return false
	}

	idx := 0
	for m := st.snapDevices; m != 0; m &= m - 1 {
		id := uint8(bits.TrailingZeros64(m))
		for k := 0; k < int(st.snapPackets); k++ {
			st.slots[idx].DeviceID = id
			idx++
		}
	}

	st.expected = need
	st.lastAccepted = now
	st.collecting = true
	return true
}

func (st *storageState) slotIndex(deviceID uint8, offset uint8) int {
	ordinal := bits.OnesCount64(st.snapDevices & (uint64(1)<<deviceID - 1))
	return ordinal*int(st.snapPackets) + int(offset)
}

func (st *storageState) isDuplicate(p *Packet, idx int) bool {
	if st.snapContext == ContextSafety {
		return st.slots[idx].Length != 0
	}

	first := st.slotIndex(p.DeviceID, 0)
	for i := first; i < first+int(st.snapPackets); i++ {
		s := &st.slots[i]
		if s.Length != 0 && s.Data[0] == p.Data[0] {
			return true
		}
	}
	return false
}

func (st *storageState) store(p *Packet, idx int, now uint32) {
	s := &st.slots[idx]
	s.DeviceID = p.DeviceID
	s.Sequence = p.Sequence
	s.Length = uint8(copy(s.Data[:], p.Data))

	st.filled++
	st.contributed |= uint64(1) << p.DeviceID
	st.lastAccepted = now
	st.stats.Valid++
}

// submit hands the collected interval to the notifier and advances the
// interval origins.
func (st *storageState) submit(n notify.Notifier) {
	if !st.collecting {
		return
	}

	ens := Ensemble{
		Sensor:    st.sensor,
		Context:   st.snapContext,
		Timestamp: st.timestamp,
		Slots:     st.slots[:st.expected],
		Filled:    st.filled,
	}

	for m := st.snapDevices & st.seqInit; m != 0; m &= m - 1 {
		id := bits.TrailingZeros64(m)
		st.origin[id] += st.snapPackets
	}

	copy(st.history[1:], st.history[:historySize-1])
	st.history[0] = st.timestamp
	if st.historyN < historySize {
		st.historyN++
	}

	st.collecting = false
	st.stats.Notifications++

	logging.Debug("Ensemble submitted",
		zap.String("sensor", st.sensor.String()),
		zap.Uint32("timestamp", st.timestamp),
		zap.Int("filled", ens.Filled),
		zap.Int("expected", len(ens.Slots)),
	)
	n.Event(dataReadyEvent(st.sensor), ens)
}

func (st *storageState) info() StateInfo {
	return StateInfo{
		Sensor:           st.sensor,
		Initialized:      st.initialized,
		Context:          st.context,
		Devices:          st.devices,
		PacketsPerDevice: st.packets,
		Collecting:       st.collecting,
		Filled:           st.filled,
		Expected:         st.expected,
		Timestamp:        st.timestamp,
		SlotCapacity:     len(st.slots),
	}
}

func dataReadyEvent(s protocol.SensorType) notify.Event {
	switch s {
	case protocol.SensorPMS:
		return notify.EventPMSDataReady
	case protocol.SensorEMS:
		return notify.EventEMSDataReady
	default:
		return notify.EventBMSDataReady
	}
}
