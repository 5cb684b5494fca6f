// Package endpoint owns one host communication endpoint: the frame
// dispatcher, the LinkState, the measurement aggregator and the command
// flows that run on top of them.
//
// # Driving an Endpoint
//
// The caller feeds inbound frames with DeliverFrame, calls Process at its
// own cadence and polls PendingMessage for frames to transmit:
//
//	ep, err := endpoint.New(endpoint.DefaultConfig(), clock, notifier, lock)
//	...
//	_ = ep.DeliverFrame(deviceID, raw)
//	ep.Process()
//	if msg, ok := ep.PendingMessage(); ok {
//	    send(msg.Target, msg.Frame)
//	    _ = ep.ReleaseBuffer(msg.Frame)
//	}
//
// Calls must be serialized by the caller. Calls made from inside a
// Notifier callback are rejected with FAIL.
//
// # Command Flows
//
// Connect, ConfigureCellBalancing and GetCellBalancingStatus each take the
// API lock, send one request and complete through Notifier.APIComplete when
// every addressed node has answered, a node reports failure, or the retry
// budget runs out. The lock is released exactly once on every path.
package endpoint
