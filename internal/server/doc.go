// Package server bridges WebSocket clients to a wBMS host endpoint.
//
// The bridge owns one endpoint.Endpoint and is the only place in the module
// that runs goroutines. Every call into the endpoint (frame delivery, the
// periodic Process tick, control requests and status snapshots) is
// serialized behind a single mutex.
//
// # Wire Format
//
// Binary WebSocket messages carry protocol frames with a one-byte prefix:
//
//	inbound  [deviceId][frame]  frame received from node deviceId
//	outbound [targetId][frame]  frame to transmit to targetId (0xFF = all nodes)
//
// Every frame queued by the endpoint is sent to all connected peers and
// released as soon as it has been queued.
//
// Text messages carry JSON. Peers send ControlRequest values:
//
//	{"op": "connect", "devices": 3}
//	{"op": "configure_cell_balancing", "devices": 4, "duration": 60, "threshold": 3900}
//	{"op": "get_cell_balancing_status"}
//	{"op": "status"}
//
// and receive Notification values: a "reply" to each request, plus
// "complete" and "event" notifications broadcast to every peer.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    Listen:       ":8765",
//	    Path:         "/frames",
//	    TickPeriod:   10 * time.Millisecond,
//	    Endpoint:     endpoint.DefaultConfig(),
//	    SlotCapacity: 256,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until SIGINT/SIGTERM
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// A JSON snapshot of link and aggregation state is served at /status.
package server
