package endpoint

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/link"
	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/measure"
	"github.com/muurk/wbms/internal/notify"
	"github.com/muurk/wbms/internal/protocol"
)

// TickSource returns a monotonic millisecond tick. It may wrap.
type TickSource func() uint32

// Stats are the endpoint's frame counters.
type Stats struct {
	FramesReceived uint32
	FramesDropped  uint32
	FramesSent     uint32
}

// Endpoint is one host communication endpoint. It is not safe for
// concurrent use.
type Endpoint struct {
	cfg      Config
	clock    TickSource
	notifier notify.Notifier
	lock     notify.Lock

	link *link.State
	agg  *measure.Aggregator

	flow  flow
	stats Stats

	busy bool
	rx   [protocol.MaxFrameSize]byte
}

// New creates an endpoint. A nil notifier discards notifications and a nil
// lock is replaced by a private notify.FlagLock.
func New(cfg Config, clock TickSource, n notify.Notifier, lock notify.Lock) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid endpoint config: %w", err)
	}
	if clock == nil {
		return nil, notify.NewInvalidParameter("nil tick source")
	}
	if n == nil {
		n = notify.Discard
	}
	if lock == nil {
		lock = &notify.FlagLock{}
	}

	e := &Endpoint{
		cfg:      cfg,
		clock:    clock,
		notifier: loggingNotifier{n},
		lock:     lock,
	}

	var err error
	e.link, err = link.New(cfg.Link, e.notifier)
	if err != nil {
		return nil, err
	}
	e.agg, err = measure.New(cfg.Measure, e.notifier)
	if err != nil {
		return nil, err
	}
	e.link.SetTimeoutHandler(e.onRequestTimeout)
	return e, nil
}

// enter marks the endpoint busy for the duration of a call.
func (e *Endpoint) enter() error {
	if e.busy {
		return notify.NewFail("endpoint re-entered from a callback")
	}
	e.busy = true
	return nil
}

func (e *Endpoint) leave() {
	e.busy = false
}

// InitMeasurementBuffer carves slots into the per-sensor ranges and applies
// the initial allocations.
func (e *Endpoint) InitMeasurementBuffer(slots []measure.Slot, safety, nonSafety measure.Allocation) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	return e.agg.Init(slots, safety, nonSafety)
}

// SetAllocation updates the allocation of one context
func (e *Endpoint) SetAllocation(ctx measure.Context, alloc measure.Allocation) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	e.agg.SetAllocation(ctx, alloc)
	return nil
}

// Process runs every time-based transition: request retries and timeouts,
// node disconnection, heartbeat cadence and measurement timeouts.
func (e *Endpoint) Process() error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	now := e.clock()
	e.link.Process(now)
	e.agg.Process(now)
	return nil
}

// PendingMessage returns the next frame to transmit. The frame stays owned
// by the endpoint until ReleaseBuffer.
func (e *Endpoint) PendingMessage() (link.Message, bool) {
	return e.link.PendingMessage()
}

// ReleaseBuffer hands a transmitted frame back to the endpoint
func (e *Endpoint) ReleaseBuffer(frame []byte) error {
	if err := e.link.ReleaseBuffer(frame); err != nil {
		return err
	}
	e.stats.FramesSent++
	if len(frame) > protocol.OffsetDestination {
		logging.LogFrame("tx", frame[protocol.OffsetDestination], frame)
	}
	return nil
}

// Connected returns the connected-node bitmap
func (e *Endpoint) Connected() uint64 {
	return e.link.Connected()
}

// MeasurementState returns a read-only view of a sensor type's StorageState
func (e *Endpoint) MeasurementState(s protocol.SensorType) measure.StateInfo {
	return e.agg.State(s)
}

// MeasurementStats returns a sensor type's counters
func (e *Endpoint) MeasurementStats(s protocol.SensorType) measure.Stats {
	return e.agg.Stats(s)
}

// Stats returns the frame counters
func (e *Endpoint) Stats() Stats {
	return e.stats
}

// loggingNotifier logs every notification before passing it on.
type loggingNotifier struct {
	next notify.Notifier
}

func (l loggingNotifier) APIComplete(api notify.API, result notify.Result, data any) {
	logging.Info("API complete",
		zap.String("api", api.String()),
		zap.String("result", result.String()),
	)
	l.next.APIComplete(api, result, data)
}

func (l loggingNotifier) Event(event notify.Event, data any) {
	logging.LogEvent(event.String(), data)
	l.next.Event(event, data)
}
