package measure

import (
	"errors"
	"testing"

	"github.com/muurk/wbms/internal/notify"
	"github.com/muurk/wbms/internal/protocol"
)

type recorder struct {
	events    []notify.Event
	ensembles []Ensemble
}

func (r *recorder) APIComplete(notify.API, notify.Result, any) {}

func (r *recorder) Event(e notify.Event, data any) {
	r.events = append(r.events, e)
	if ens, ok := data.(Ensemble); ok {
		// Slots reference the live buffer; keep a copy.
		ens.Slots = append([]Slot(nil), ens.Slots...)
		r.ensembles = append(r.ensembles, ens)
	}
}

func (r *recorder) count(e notify.Event) int {
	n := 0
	for _, got := range r.events {
		if got == e {
			n++
		}
	}
	return n
}

func alloc(sensor protocol.SensorType, devices uint64, packets uint8) Allocation {
	var a Allocation
	a.Devices[sensor] = devices
	a.PacketsPerDevice[sensor] = packets
	return a
}

func newTestAggregator(t *testing.T, nslots int, safety, nonSafety Allocation) (*Aggregator, *recorder) {
	t.Helper()
	rec := &recorder{}
	a, err := New(DefaultConfig(), rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Init(make([]Slot, nslots), safety, nonSafety); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return a, rec
}

func safetyPacket(dev, seq uint8, ts uint32, start bool, data ...byte) Packet {
	return Packet{
		Sensor:    protocol.SensorBMS,
		Context:   ContextSafety,
		DeviceID:  dev,
		Sequence:  seq,
		Timestamp: ts,
		Start:     start,
		Data:      data,
	}
}

func nonSafetyPacket(dev, seq uint8, start bool, data ...byte) Packet {
	return Packet{
		Sensor:   protocol.SensorPMS,
		Context:  ContextNonSafety,
		DeviceID: dev,
		Sequence: seq,
		Start:    start,
		Data:     data,
	}
}

func reason(err error) Reason {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return 0
}

func TestInitCarvesSlots(t *testing.T) {
	safety := Allocation{
		Devices:          [protocol.NumSensorTypes]uint64{0b11, 0, 0b1},
		PacketsPerDevice: [protocol.NumSensorTypes]uint8{2, 0, 5},
	}
	nonSafety := alloc(protocol.SensorPMS, 0b1, 3)

	a, _ := newTestAggregator(t, 10, safety, nonSafety)

	tests := []struct {
		sensor   protocol.SensorType
		capacity int
		context  Context
		init     bool
	}{
		{protocol.SensorBMS, 4, ContextSafety, true},
		{protocol.SensorPMS, 3, ContextNonSafety, true},
		{protocol.SensorEMS, 3, ContextSafety, true}, // wanted 5, 3 left
	}
	for _, tt := range tests {
		t.Run(tt.sensor.String(), func(t *testing.T) {
			st := a.State(tt.sensor)
			if st.SlotCapacity != tt.capacity {
				t.Errorf("SlotCapacity = %d, want %d", st.SlotCapacity, tt.capacity)
			}
			if st.Context != tt.context || st.Initialized != tt.init {
				t.Errorf("context/init = %s/%v", st.Context, st.Initialized)
			}
		})
	}

	if err := a.Init(nil, safety, nonSafety); notify.ResultOf(err) != notify.InvalidParameter {
		t.Errorf("Init(nil) = %v, want INVALID_PARAMETER", err)
	}
}

func TestCompleteEnsemble(t *testing.T) {
	a, rec := newTestAggregator(t, 8, alloc(protocol.SensorBMS, 1<<1|1<<4, 2), Allocation{})

	packets := []Packet{
		safetyPacket(4, 20, 100, true, 0x40),
		safetyPacket(1, 7, 100, true, 0x10),
		safetyPacket(1, 8, 101, false, 0x11), // within tolerance
		safetyPacket(4, 21, 100, false, 0x41),
	}
	for i, p := range packets {
		if err := a.HandlePacket(uint32(i), p); err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
	}

	if len(rec.ensembles) != 1 {
		t.Fatalf("ensembles = %d, want 1", len(rec.ensembles))
	}
	ens := rec.ensembles[0]
	if ens.Filled != 4 || ens.Timestamp != 100 || ens.Sensor != protocol.SensorBMS {
		t.Errorf("ensemble = %+v", ens)
	}
	// Device 1 owns slots 0-1, device 4 owns slots 2-3.
	want := []struct{ dev, first byte }{{1, 0x10}, {1, 0x11}, {4, 0x40}, {4, 0x41}}
	for i, w := range want {
		s := ens.Slots[i]
		if s.DeviceID != w.dev || s.Length != 1 || s.Data[0] != w.first {
			t.Errorf("slot %d = dev %d len %d data 0x%02x", i, s.DeviceID, s.Length, s.Data[0])
		}
	}
	if rec.count(notify.EventBMSDataReady) != 1 {
		t.Error("expected one BMSDataReady event")
	}

	origin, ok := a.Origin(protocol.SensorBMS, 1)
	if !ok || origin != 9 {
		t.Errorf("origin of device 1 = %d, %v; want 9", origin, ok)
	}
	if st := a.Stats(protocol.SensorBMS); st.Valid != 4 || st.Notifications != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSafetyDuplicate(t *testing.T) {
	a, rec := newTestAggregator(t, 3, alloc(protocol.SensorBMS, 1<<2, 3), Allocation{})

	p := safetyPacket(2, 50, 10, true, 0x01, 0x02)
	if err := a.HandlePacket(0, p); err != nil {
		t.Fatal(err)
	}
	if err := a.HandlePacket(1, p); reason(err) != ReasonDuplicate {
		t.Fatalf("second packet = %v, want duplicate", err)
	}

	st := a.State(protocol.SensorBMS)
	if st.Filled != 1 {
		t.Errorf("filled = %d, want 1", st.Filled)
	}
	if got := a.Stats(protocol.SensorBMS).Duplicate; got != 1 {
		t.Errorf("duplicate counter = %d, want 1", got)
	}
	if got := rec.count(notify.EventDuplicateMeasurement); got != 1 {
		t.Errorf("duplicate events = %d, want 1", got)
	}
}

func TestNonSafetyDuplicateByContent(t *testing.T) {
	a, rec := newTestAggregator(t, 3, Allocation{}, alloc(protocol.SensorPMS, 1<<6, 3))

	if err := a.HandlePacket(0, nonSafetyPacket(6, 30, true, 0xAA, 1)); err != nil {
		t.Fatal(err)
	}
	// Different slot, same packet id.
	if err := a.HandlePacket(1, nonSafetyPacket(6, 31, false, 0xAA, 2)); reason(err) != ReasonDuplicate {
		t.Fatalf("same first byte = %v, want duplicate", err)
	}
	if err := a.HandlePacket(2, nonSafetyPacket(6, 31, false, 0xBB, 2)); err != nil {
		t.Fatalf("distinct packet id rejected: %v", err)
	}

	if got := a.State(protocol.SensorPMS).Filled; got != 2 {
		t.Errorf("filled = %d, want 2", got)
	}
	if got := rec.count(notify.EventDuplicateMeasurement); got != 1 {
		t.Errorf("duplicate events = %d, want 1", got)
	}
}

func TestIntervalRollover(t *testing.T) {
	tests := []struct {
		name    string
		packets []Packet
		filled  int
	}{
		{
			name: "start only",
			packets: []Packet{
				nonSafetyPacket(3, 10, true, 1),
				nonSafetyPacket(3, 13, true, 2),
			},
			filled: 1,
		},
		{
			name: "start and supplemental",
			packets: []Packet{
				nonSafetyPacket(3, 10, true, 1),
				nonSafetyPacket(3, 11, false, 2),
				nonSafetyPacket(3, 13, true, 3),
			},
			filled: 2,
		},
		{
			name: "supplemental opens next interval",
			packets: []Packet{
				nonSafetyPacket(3, 10, true, 1),
				nonSafetyPacket(3, 14, false, 2),
			},
			filled: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, rec := newTestAggregator(t, 3, Allocation{}, alloc(protocol.SensorPMS, 1<<3, 3))
			for i, p := range tt.packets {
				if err := a.HandlePacket(uint32(i), p); err != nil {
					t.Fatalf("packet %d: %v", i, err)
				}
			}

			if len(rec.ensembles) != 1 {
				t.Fatalf("ensembles = %d, want 1", len(rec.ensembles))
			}
			if rec.ensembles[0].Filled != tt.filled {
				t.Errorf("filled = %d, want %d", rec.ensembles[0].Filled, tt.filled)
			}
			st := a.State(protocol.SensorPMS)
			if !st.Collecting || st.Filled != 1 {
				t.Errorf("new interval collecting=%v filled=%d", st.Collecting, st.Filled)
			}
			if origin, _ := a.Origin(protocol.SensorPMS, 3); origin != 13 {
				t.Errorf("origin = %d, want 13", origin)
			}
		})
	}
}

func TestSequenceWraparound(t *testing.T) {
	a, rec := newTestAggregator(t, 3, Allocation{}, alloc(protocol.SensorPMS, 1, 3))

	for i, p := range []Packet{
		nonSafetyPacket(0, 254, true, 1),
		nonSafetyPacket(0, 255, false, 2),
		nonSafetyPacket(0, 0, false, 3),
		nonSafetyPacket(0, 1, true, 4),
	} {
		if err := a.HandlePacket(uint32(i), p); err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
	}

	if len(rec.ensembles) != 1 || rec.ensembles[0].Filled != 3 {
		t.Fatalf("ensembles = %+v", rec.ensembles)
	}
	if origin, _ := a.Origin(protocol.SensorPMS, 0); origin != 1 {
		t.Errorf("origin = %d, want 1", origin)
	}
}

func TestSequenceRejections(t *testing.T) {
	tests := []struct {
		name   string
		first  Packet
		second Packet
		want   Reason
		event  notify.Event
	}{
		{
			name:   "previous interval",
			first:  nonSafetyPacket(0, 10, true, 1),
			second: nonSafetyPacket(0, 9, false, 2),
			want:   ReasonLate,
			event:  notify.EventLateMeasurement,
		},
		{
			name:   "edge of late band",
			first:  nonSafetyPacket(0, 10, true, 1),
			second: nonSafetyPacket(0, 4, false, 2), // distance 250 = 256-2*3
			want:   ReasonLate,
			event:  notify.EventLateMeasurement,
		},
		{
			name:   "just inside late band",
			first:  nonSafetyPacket(0, 10, true, 1),
			second: nonSafetyPacket(0, 3, false, 2), // distance 249
			want:   ReasonOutOfSequence,
			event:  notify.EventDroppedMeasurement,
		},
		{
			name:   "supplemental boundary jump after contributing",
			first:  nonSafetyPacket(0, 10, true, 1),
			second: nonSafetyPacket(0, 16, false, 2), // distance 6
			want:   ReasonOutOfSequence,
			event:  notify.EventDroppedMeasurement,
		},
		{
			name:   "supplemental without origin",
			first:  nonSafetyPacket(1, 10, true, 1), // other device
			second: nonSafetyPacket(0, 11, false, 2),
			want:   ReasonNoOrigin,
			event:  notify.EventDroppedMeasurement,
		},
		{
			name:   "start jump after contributing",
			first:  nonSafetyPacket(0, 10, true, 1),
			second: nonSafetyPacket(0, 30, true, 2),
			want:   ReasonOutOfSequence,
			event:  notify.EventDroppedMeasurement,
		},
		{
			name:   "supplemental at start position",
			first:  nonSafetyPacket(0, 10, true, 1),
			second: nonSafetyPacket(0, 10, false, 2),
			want:   ReasonOutOfSequence,
			event:  notify.EventDroppedMeasurement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, rec := newTestAggregator(t, 6, Allocation{}, alloc(protocol.SensorPMS, 0b11, 3))
			if err := a.HandlePacket(0, tt.first); err != nil {
				t.Fatal(err)
			}
			err := a.HandlePacket(1, tt.second)
			if reason(err) != tt.want {
				t.Fatalf("HandlePacket() = %v, want %s", err, tt.want)
			}
			if rec.count(tt.event) != 1 {
				t.Errorf("%s events = %d, want 1", tt.event, rec.count(tt.event))
			}
		})
	}
}

func TestStartResync(t *testing.T) {
	a, _ := newTestAggregator(t, 6, Allocation{}, alloc(protocol.SensorPMS, 0b11, 3))

	if err := a.HandlePacket(0, nonSafetyPacket(0, 10, true, 1)); err != nil {
		t.Fatal(err)
	}
	if err := a.HandlePacket(1, nonSafetyPacket(1, 100, true, 2)); err != nil {
		t.Fatal(err)
	}
	if err := a.HandlePacket(2, nonSafetyPacket(0, 50, true, 3)); reason(err) != ReasonOutOfSequence {
		t.Fatalf("jump after contributing = %v, want out of sequence", err)
	}
	a.Process(1000) // timeout submission
	if err := a.HandlePacket(1001, nonSafetyPacket(0, 50, true, 3)); err != nil {
		t.Fatalf("re-sync while inactive rejected: %v", err)
	}
	if origin, _ := a.Origin(protocol.SensorPMS, 0); origin != 50 {
		t.Errorf("origin = %d, want 50", origin)
	}
}

func TestSupplementalResync(t *testing.T) {
	tests := []struct {
		name       string
		seq        uint8
		want       Reason
		wantOrigin uint8
	}{
		// Origin is 13 after the timeout submission.
		{name: "one interval on", seq: 19, wantOrigin: 19},
		{name: "two intervals on", seq: 22, wantOrigin: 22},
		{name: "mid interval", seq: 20, want: ReasonOutOfSequence, wantOrigin: 13},
		{name: "next interval rolls forward", seq: 17, wantOrigin: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAggregator(t, 3, Allocation{}, alloc(protocol.SensorPMS, 1, 3))
			if err := a.HandlePacket(0, nonSafetyPacket(0, 10, true, 1)); err != nil {
				t.Fatal(err)
			}
			a.Process(1000) // timeout submission, origin moves to 13

			err := a.HandlePacket(1001, nonSafetyPacket(0, tt.seq, false, 2))
			if reason(err) != tt.want {
				t.Fatalf("HandlePacket(seq %d) = %v, want %v", tt.seq, err, tt.want)
			}
			if origin, _ := a.Origin(protocol.SensorPMS, 0); origin != tt.wantOrigin {
				t.Errorf("origin = %d, want %d", origin, tt.wantOrigin)
			}
		})
	}
}

func TestTimestampHandling(t *testing.T) {
	a, rec := newTestAggregator(t, 2, alloc(protocol.SensorBMS, 1<<1, 2), Allocation{})

	steps := []struct {
		p    Packet
		want Reason
	}{
		{safetyPacket(1, 0, 100, true, 1), 0},
		{safetyPacket(1, 1, 100, false, 2), 0}, // completes interval 100
		{safetyPacket(1, 2, 200, true, 3), 0},
		{safetyPacket(1, 1, 100, false, 4), ReasonLate}, // interval 100 is history
		{safetyPacket(1, 4, 300, true, 5), 0},           // new interval submits 200
	}
	for i, s := range steps {
		if err := a.HandlePacket(uint32(i), s.p); reason(err) != s.want {
			t.Fatalf("step %d: HandlePacket() = %v, want %v", i, err, s.want)
		}
	}

	if len(rec.ensembles) != 2 {
		t.Fatalf("ensembles = %d, want 2", len(rec.ensembles))
	}
	if rec.ensembles[1].Timestamp != 200 || rec.ensembles[1].Filled != 1 {
		t.Errorf("second ensemble = ts %d filled %d", rec.ensembles[1].Timestamp, rec.ensembles[1].Filled)
	}
	if got := a.Stats(protocol.SensorBMS).Late; got != 1 {
		t.Errorf("late counter = %d, want 1", got)
	}
	if a.State(protocol.SensorBMS).Timestamp != 300 {
		t.Errorf("current interval timestamp = %d", a.State(protocol.SensorBMS).Timestamp)
	}
}

func TestTimestampDistanceWraps(t *testing.T) {
	tests := []struct {
		a, b uint32
		want uint32
	}{
		{100, 100, 0},
		{101, 100, 1},
		{0, 0xFFFFFF, 1},
		{1, 0xFFFFFE, 3},
		{0x800000, 0, 0x800000},
	}
	for _, tt := range tests {
		if got := timestampDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("timestampDistance(0x%x, 0x%x) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTimeoutSubmission(t *testing.T) {
	a, rec := newTestAggregator(t, 4, alloc(protocol.SensorBMS, 0b11, 2), Allocation{})

	if err := a.HandlePacket(1000, safetyPacket(0, 0, 5, true, 1)); err != nil {
		t.Fatal(err)
	}
	a.Process(1250)
	if len(rec.ensembles) != 0 {
		t.Fatal("submitted at exactly the timeout")
	}
	a.Process(1251)
	if len(rec.ensembles) != 1 || rec.ensembles[0].Filled != 1 || len(rec.ensembles[0].Slots) != 4 {
		t.Fatalf("ensembles = %+v", rec.ensembles)
	}
	if a.State(protocol.SensorBMS).Collecting {
		t.Error("still collecting after timeout submission")
	}
	// Both devices' origins advance; device 1 never had one.
	if origin, ok := a.Origin(protocol.SensorBMS, 0); !ok || origin != 2 {
		t.Errorf("device 0 origin = %d, %v; want 2", origin, ok)
	}
	if _, ok := a.Origin(protocol.SensorBMS, 1); ok {
		t.Error("device 1 should have no origin")
	}
}

func TestAllocationContextExclusivity(t *testing.T) {
	a, _ := newTestAggregator(t, 8, alloc(protocol.SensorBMS, 1<<1, 2), alloc(protocol.SensorPMS, 1, 2))

	a.SetAllocation(ContextNonSafety, alloc(protocol.SensorBMS, 1<<5, 4))

	st := a.State(protocol.SensorBMS)
	if st.Context != ContextSafety || st.Devices != 1<<1 || st.PacketsPerDevice != 2 {
		t.Errorf("safety state modified: %+v", st)
	}

	// A zero non-safety bitmap does not release it either, but does release
	// the non-safety PMS state.
	a.SetAllocation(ContextNonSafety, Allocation{})
	if !a.State(protocol.SensorBMS).Initialized {
		t.Error("safety state released by non-safety update")
	}
	if a.State(protocol.SensorPMS).Initialized {
		t.Error("non-safety state not released")
	}

	// Safety may take over a non-safety state, clearing sequence origins.
	a.SetAllocation(ContextNonSafety, alloc(protocol.SensorPMS, 1, 2))
	if err := a.HandlePacket(1, nonSafetyPacket(0, 1, true, 1)); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Origin(protocol.SensorPMS, 0); !ok {
		t.Fatal("origin not recorded")
	}
	a.SetAllocation(ContextSafety, alloc(protocol.SensorPMS, 1, 2))
	if st := a.State(protocol.SensorPMS); st.Context != ContextSafety {
		t.Errorf("PMS context = %s, want safety", st.Context)
	}
	if _, ok := a.Origin(protocol.SensorPMS, 0); ok {
		t.Error("origin survived context switch")
	}
}

func TestStateCheckRejections(t *testing.T) {
	a, rec := newTestAggregator(t, 8, alloc(protocol.SensorBMS, 1<<1, 2), Allocation{})

	p := safetyPacket(1, 0, 1, true, 1)
	p.Context = ContextNonSafety
	if err := a.HandlePacket(0, p); reason(err) != ReasonContextMismatch {
		t.Errorf("context mismatch = %v", err)
	}
	if err := a.HandlePacket(0, safetyPacket(2, 0, 1, true, 1)); reason(err) != ReasonUnknownDevice {
		t.Errorf("unknown device = %v", err)
	}

	// Allocation change mid-interval.
	if err := a.HandlePacket(0, safetyPacket(1, 0, 1, true, 1)); err != nil {
		t.Fatal(err)
	}
	a.SetAllocation(ContextSafety, alloc(protocol.SensorBMS, 1<<1, 3))
	if err := a.HandlePacket(1, safetyPacket(1, 1, 1, false, 2)); reason(err) != ReasonAllocationChanged {
		t.Errorf("changed allocation = %v", err)
	}

	if got := a.Stats(protocol.SensorBMS).Dropped; got != 3 {
		t.Errorf("dropped counter = %d, want 3", got)
	}
	if got := rec.count(notify.EventDroppedMeasurement); got != 3 {
		t.Errorf("dropped events = %d, want 3", got)
	}

	ems := safetyPacket(1, 0, 1, true, 1)
	ems.Sensor = protocol.SensorEMS
	if err := a.HandlePacket(2, ems); reason(err) != ReasonNotInitialized {
		t.Errorf("unallocated sensor = %v", err)
	}
	if got := a.Stats(protocol.SensorEMS).Dropped; got != 1 {
		t.Errorf("EMS dropped counter = %d, want 1", got)
	}
}

func TestInsufficientBuffer(t *testing.T) {
	a, rec := newTestAggregator(t, 4, alloc(protocol.SensorBMS, 0b11, 2), Allocation{})

	a.SetAllocation(ContextSafety, alloc(protocol.SensorBMS, 0b111, 2))
	err := a.HandlePacket(0, safetyPacket(0, 0, 1, true, 1))
	if reason(err) != ReasonInsufficientBuffer {
		t.Fatalf("HandlePacket() = %v, want insufficient buffer", err)
	}
	if rec.count(notify.EventInsufficientBuffer) != 1 {
		t.Error("expected one InsufficientBuffer event")
	}
	if a.State(protocol.SensorBMS).Collecting {
		t.Error("collecting despite insufficient buffer")
	}
}

func TestHandlePacketInvalidParameters(t *testing.T) {
	a, _ := newTestAggregator(t, 4, alloc(protocol.SensorBMS, 1, 2), Allocation{})

	tests := []struct {
		name string
		p    Packet
	}{
		{"bad sensor", Packet{Sensor: 9, Data: []byte{1}}},
		{"bad device", Packet{Sensor: protocol.SensorBMS, DeviceID: protocol.MaxNodes, Data: []byte{1}}},
		{"no data", Packet{Sensor: protocol.SensorBMS}},
		{"too much data", Packet{Sensor: protocol.SensorBMS, Data: make([]byte, protocol.MaxMeasurementDataSize+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := a.HandlePacket(0, tt.p); notify.ResultOf(err) != notify.InvalidParameter {
				t.Errorf("HandlePacket() = %v, want INVALID_PARAMETER", err)
			}
		})
	}
}
