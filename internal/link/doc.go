// Package link implements the request, heartbeat and liveness state machine
// that sits between the frame codec and the command flows.
//
// # Request Lifecycle
//
// At most one request is in flight. A request is written (framed into the
// request buffer), activated (retry budget and clock start) and finally
// deactivated, either by the owning command flow on completion or by
// Process when the retry budget runs out:
//
//	if err := st.WriteRequest(target, protocol.MsgTypeSensorCommand, payload); err != nil {
//	    return err
//	}
//	if err := st.ActivateRequest(notify.APIGetCellBalancingStatus, 2, 300, now); err != nil {
//	    return err
//	}
//
// Deactivation advances exactly one sequence counter: the target's when the
// request was unicast, the broadcast counter when it was sent to AllNodes.
//
// # Liveness
//
// Every validated inbound frame is reported with Received. A connected node
// that stays silent for longer than DisconnectTimeout is disconnected. The
// heartbeat runs while any node has been heard within AliveTimeout.
//
// # Transmission
//
// The transport polls PendingMessage and hands the frame back with
// ReleaseBuffer once it has been sent. Requests take priority over
// heartbeats.
//
// # Time
//
// All times are uint32 millisecond ticks. Differences are computed with
// wrapping subtraction so the tick counter may roll over.
package link
