package link

import "fmt"

// Config holds the LinkState timing constants. All values are milliseconds.
type Config struct {
	// DisconnectTimeout is the silence after which a connected node is
	// considered disconnected.
	DisconnectTimeout uint32

	// AliveTimeout is the network-wide silence after which the heartbeat
	// stops.
	AliveTimeout uint32

	// HeartbeatPeriod is the heartbeat cadence while the heartbeat is on.
	HeartbeatPeriod uint32
}

// DefaultConfig returns the standard link timing.
func DefaultConfig() Config {
	return Config{
		DisconnectTimeout: 300,
		AliveTimeout:      600,
		HeartbeatPeriod:   100,
	}
}

// Validate checks the timing constants.
func (c *Config) Validate() error {
	if c.DisconnectTimeout == 0 {
		return fmt.Errorf("disconnect timeout must be positive")
	}
	if c.AliveTimeout == 0 {
		return fmt.Errorf("alive timeout must be positive")
	}
	if c.HeartbeatPeriod == 0 {
		return fmt.Errorf("heartbeat period must be positive")
	}
	if c.HeartbeatPeriod >= c.AliveTimeout {
		return fmt.Errorf("heartbeat period (%d ms) must be shorter than alive timeout (%d ms)",
			c.HeartbeatPeriod, c.AliveTimeout)
	}
	return nil
}
