package config

import (
	"fmt"
	"time"

	"github.com/muurk/wbms/internal/endpoint"
	"github.com/muurk/wbms/internal/link"
	"github.com/muurk/wbms/internal/measure"
	"github.com/muurk/wbms/internal/protocol"
)

// CurrentVersion is the configuration file format version
const CurrentVersion = 1

// Registry represents the entire configuration file.
type Registry struct {
	Version    int         `yaml:"version"`
	Timing     *Timing     `yaml:"timing"`
	Allocation *Allocation `yaml:"allocation"`
	Bridge     *Bridge     `yaml:"bridge"`
}

// Timing holds the protocol timing constants.
type Timing struct {
	DisconnectTimeout  time.Duration `yaml:"disconnect_timeout"`  // Node silence before disconnect
	AliveTimeout       time.Duration `yaml:"alive_timeout"`       // Network silence before the heartbeat stops
	HeartbeatPeriod    time.Duration `yaml:"heartbeat_period"`    // Heartbeat cadence
	MeasurementTimeout time.Duration `yaml:"measurement_timeout"` // Forces submission of an incomplete interval
	RequestInterval    time.Duration `yaml:"request_interval"`    // Wait before a request is retried
	RequestRetries     uint8         `yaml:"request_retries"`     // Retries before a request times out
	TimestampTolerance uint32        `yaml:"timestamp_tolerance"` // Interval timestamp slack
}

// Allocation is the measurement allocation plan.
type Allocation struct {
	SlotCapacity int               `yaml:"slot_capacity"` // Total measurement slots
	Safety       ContextAllocation `yaml:"safety"`
	NonSafety    ContextAllocation `yaml:"non_safety"`
}

// ContextAllocation is the plan for one allocation context.
type ContextAllocation struct {
	BMS *SensorPlan `yaml:"bms,omitempty"`
	PMS *SensorPlan `yaml:"pms,omitempty"`
	EMS *SensorPlan `yaml:"ems,omitempty"`
}

// SensorPlan lists the devices contributing to one sensor type.
type SensorPlan struct {
	Devices          []uint8 `yaml:"devices"`
	PacketsPerDevice uint8   `yaml:"packets_per_device"`
}

// Bridge holds the transport bridge settings.
type Bridge struct {
	Listen       string        `yaml:"listen"`        // HTTP listen address
	Path         string        `yaml:"path"`          // WebSocket endpoint path
	TickPeriod   time.Duration `yaml:"tick_period"`   // Process cadence
	Advertise    bool          `yaml:"advertise"`     // Advertise the bridge over mDNS
	InstanceName string        `yaml:"instance_name"` // mDNS instance name
	CertFile     string        `yaml:"cert_file,omitempty"`
	KeyFile      string        `yaml:"key_file,omitempty"`
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:    CurrentVersion,
		Timing:     defaultTiming(),
		Allocation: defaultAllocation(),
		Bridge:     defaultBridge(),
	}
}

func defaultTiming() *Timing {
	lc := link.DefaultConfig()
	mc := measure.DefaultConfig()
	ec := endpoint.DefaultConfig()
	return &Timing{
		DisconnectTimeout:  time.Duration(lc.DisconnectTimeout) * time.Millisecond,
		AliveTimeout:       time.Duration(lc.AliveTimeout) * time.Millisecond,
		HeartbeatPeriod:    time.Duration(lc.HeartbeatPeriod) * time.Millisecond,
		MeasurementTimeout: time.Duration(mc.MeasurementTimeout) * time.Millisecond,
		RequestInterval:    time.Duration(ec.RequestInterval) * time.Millisecond,
		RequestRetries:     ec.RequestRetries,
		TimestampTolerance: mc.TimestampTolerance,
	}
}

func defaultAllocation() *Allocation {
	return &Allocation{
		SlotCapacity: 256,
		Safety: ContextAllocation{
			BMS: &SensorPlan{Devices: []uint8{0, 1}, PacketsPerDevice: 3},
		},
	}
}

func defaultBridge() *Bridge {
	return &Bridge{
		Listen:       ":8765",
		Path:         "/frames",
		TickPeriod:   10 * time.Millisecond,
		Advertise:    false,
		InstanceName: "wbms-host",
	}
}

// fillDefaults replaces missing sections with defaults
func (r *Registry) fillDefaults() {
	if r.Timing == nil {
		r.Timing = defaultTiming()
	}
	if r.Allocation == nil {
		r.Allocation = defaultAllocation()
	}
	if r.Bridge == nil {
		r.Bridge = defaultBridge()
	}
}

func millis(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}

// EndpointConfig converts the timing section into an endpoint configuration.
func (r *Registry) EndpointConfig() endpoint.Config {
	t := r.Timing
	return endpoint.Config{
		Link: link.Config{
			DisconnectTimeout: millis(t.DisconnectTimeout),
			AliveTimeout:      millis(t.AliveTimeout),
			HeartbeatPeriod:   millis(t.HeartbeatPeriod),
		},
		Measure: measure.Config{
			MeasurementTimeout: millis(t.MeasurementTimeout),
			TimestampTolerance: t.TimestampTolerance,
		},
		RequestRetries:  t.RequestRetries,
		RequestInterval: millis(t.RequestInterval),
	}
}

// Allocations converts the allocation section into the safety and
// non-safety measurement allocations.
func (r *Registry) Allocations() (measure.Allocation, measure.Allocation, error) {
	safety, err := r.Allocation.Safety.toMeasure()
	if err != nil {
		return measure.Allocation{}, measure.Allocation{}, fmt.Errorf("safety: %w", err)
	}
	nonSafety, err := r.Allocation.NonSafety.toMeasure()
	if err != nil {
		return measure.Allocation{}, measure.Allocation{}, fmt.Errorf("non_safety: %w", err)
	}
	return safety, nonSafety, nil
}

func (c *ContextAllocation) plans() [protocol.NumSensorTypes]*SensorPlan {
	return [protocol.NumSensorTypes]*SensorPlan{c.BMS, c.PMS, c.EMS}
}

func (c *ContextAllocation) toMeasure() (measure.Allocation, error) {
	var a measure.Allocation
	for i, p := range c.plans() {
		if p == nil {
			continue
		}
		sensor := protocol.SensorTypes[i]
		if p.PacketsPerDevice == 0 || p.PacketsPerDevice > measure.MaxPacketsPerDevice {
			return a, fmt.Errorf("%s: packets_per_device %d out of range 1-%d", sensor, p.PacketsPerDevice, measure.MaxPacketsPerDevice)
		}
		for _, id := range p.Devices {
			if !protocol.IsValidNode(id) {
				return a, fmt.Errorf("%s: invalid device id %d", sensor, id)
			}
			a.Devices[sensor] |= uint64(1) << id
		}
		a.PacketsPerDevice[sensor] = p.PacketsPerDevice
	}
	return a, nil
}

// Validate checks the whole configuration.
func (r *Registry) Validate() error {
	if r.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", r.Version, CurrentVersion)
	}
	if r.Timing == nil || r.Allocation == nil || r.Bridge == nil {
		return fmt.Errorf("incomplete configuration")
	}

	cfg := r.EndpointConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if r.Allocation.SlotCapacity <= 0 {
		return fmt.Errorf("allocation: slot_capacity must be positive")
	}
	if _, _, err := r.Allocations(); err != nil {
		return fmt.Errorf("allocation: %w", err)
	}
	if r.Bridge.Listen == "" {
		return fmt.Errorf("bridge: listen address is required")
	}
	if r.Bridge.TickPeriod <= 0 {
		return fmt.Errorf("bridge: tick_period must be positive")
	}
	if (r.Bridge.CertFile == "") != (r.Bridge.KeyFile == "") {
		return fmt.Errorf("bridge: cert_file and key_file must be set together")
	}
	return nil
}
