package measure

import "fmt"

// MaxPacketsPerDevice is the hard cap on packets per device per interval.
const MaxPacketsPerDevice = 16

// Config holds the aggregator's timing constants.
type Config struct {
	// MeasurementTimeout (ms) after the last accepted packet forces
	// submission of an incomplete interval.
	MeasurementTimeout uint32

	// TimestampTolerance is the largest 24-bit timestamp difference still
	// considered the same interval.
	TimestampTolerance uint32
}

// DefaultConfig returns the standard aggregator timing.
func DefaultConfig() Config {
	return Config{
		MeasurementTimeout: 250,
		TimestampTolerance: 2,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MeasurementTimeout == 0 {
		return fmt.Errorf("measurement timeout must be positive")
	}
	if c.TimestampTolerance >= timestampModulus/2 {
		return fmt.Errorf("timestamp tolerance %d out of range", c.TimestampTolerance)
	}
	return nil
}
