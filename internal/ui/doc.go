// Package ui renders terminal output for the wbms-host CLI.
//
// Components follow a "run once and exit" pattern built on Lipgloss:
//
//   - Header: command banner showing operation name and parameters
//   - Result: success/failure/warning boxes with key-value details
//   - RenderFrame: a decoded protocol frame with its fields and check status
//   - RenderBridges: bridges found by mDNS discovery
//   - Confirm: a warning box followed by a typed confirmation
//
// Commands check IsTerminal and use the plain formatters (for example
// FormatFramePlain) when stdout is redirected.
//
// # Logging Integration
//
// This package expects logging to be controlled via the WBMS_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly.
package ui
