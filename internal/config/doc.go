// Package config provides configuration management for the wBMS host.
//
// This package manages a YAML configuration file holding the protocol timing
// constants, the measurement allocation plan and the transport bridge
// settings. The configuration follows OS-specific conventions for storage
// location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/wbms/config.yaml or $HOME/.config/wbms/config.yaml
//   - macOS: $HOME/.config/wbms/config.yaml
//   - Windows: %LOCALAPPDATA%\wbms\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	epCfg := registry.EndpointConfig()
//	safety, nonSafety, err := registry.Allocations()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
