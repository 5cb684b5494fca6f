// Package notify defines the outward-facing vocabulary of the wBMS host core.
//
// Everything the core reports to its caller goes through the types in this
// package:
//   - Result: the closed completion code set (Success, InvalidParameter,
//     Fail, Timeout) carried by API completion callbacks
//   - Error: the Go error form of a Result, returned from entry points
//   - Event: asynchronous notifications (connect/disconnect, data ready,
//     duplicate/late/dropped measurements, validation failures, faults)
//   - Notifier: the collaborator that receives completions and events
//   - Lock: the cross-cutting command lock owned by the higher-level API
//
// # Usage Example
//
//	type printer struct{}
//
//	func (printer) APIComplete(api notify.API, res notify.Result, data any) {
//	    fmt.Printf("%s finished: %s\n", api, res)
//	}
//
//	func (printer) Event(ev notify.Event, data any) {
//	    fmt.Printf("event %s: %v\n", ev, data)
//	}
//
// # Thread Safety
//
// The types here are plain values. Notifier implementations are invoked
// synchronously from the goroutine that drives the endpoint and must not call
// back into it.
package notify
