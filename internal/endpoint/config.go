package endpoint

import (
	"fmt"

	"github.com/muurk/wbms/internal/link"
	"github.com/muurk/wbms/internal/measure"
)

// Config holds the endpoint configuration.
type Config struct {
	Link    link.Config
	Measure measure.Config

	// RequestRetries is the number of retransmissions before a command
	// times out.
	RequestRetries uint8

	// RequestInterval (ms) is the wait for responses before a retry.
	RequestInterval uint32
}

// DefaultConfig returns the standard endpoint configuration.
func DefaultConfig() Config {
	return Config{
		Link:            link.DefaultConfig(),
		Measure:         measure.DefaultConfig(),
		RequestRetries:  2,
		RequestInterval: 300,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Link.Validate(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if err := c.Measure.Validate(); err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	if c.RequestInterval == 0 {
		return fmt.Errorf("request interval must be positive")
	}
	return nil
}
