// Package logging provides structured logging for the wBMS host.
//
// This package wraps a zap logger with convenience functions used by the
// protocol core and the bridge. The logger is silent until initialized, so
// library use and CLI commands produce no output by default.
//
// # Log Levels
//
//   - Debug: frame hex dumps, dropped packets, retries
//   - Info: node connect/disconnect, completed commands, bridge connections
//   - Warn: timeouts, validation failures, insufficient buffers
//   - Error: startup failures
//
// # Structured Logging
//
//	logging.Warn("Request timed out",
//	    zap.String("api", api.String()),
//	    zap.Uint8("target", target),
//	)
//
// # Specialized Logging
//
//	logging.LogFrame("rx", deviceID, raw)
//	logging.LogEvent(event.String(), data)
//	logging.LogConnection(remoteAddr, "websocket_upgraded")
//
// # Configuration
//
// Set WBMS_LOG_LEVEL or call Initialize at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
package logging
