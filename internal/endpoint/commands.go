package endpoint

import (
	"math/bits"

	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/notify"
	"github.com/muurk/wbms/internal/protocol"
)

// allNodesMask covers every addressable node id.
const allNodesMask = uint64(1)<<protocol.MaxNodes - 1

// NodeInfo is the payload of EventSafetyCPUConnected.
type NodeInfo struct {
	DeviceID uint8
	Info     protocol.ConnectResponse
}

// ConnectResult is the completion data of Connect.
type ConnectResult struct {
	Nodes []NodeInfo
}

// StatusResult is the completion data of GetCellBalancingStatus. On failure
// it holds the statuses collected before the failing reply, including that
// reply.
type StatusResult struct {
	Statuses map[uint8]protocol.CellBalancingStatus
}

// flow is the state of the command flow in progress.
type flow struct {
	api       notify.API
	requested uint64 // nodes that have not replied yet
	holdsLock bool
	failed    bool

	nodes    []NodeInfo
	statuses map[uint8]protocol.CellBalancingStatus
}

// Connect sends a connect request to the nodes in deviceMap: unicast for a
// single node, broadcast otherwise. Each successful reply marks the node
// connected.
func (e *Endpoint) Connect(deviceMap uint64) error {
	if deviceMap == 0 || deviceMap&^allNodesMask != 0 {
		return notify.NewInvalidParameter("invalid device map 0x%016x", deviceMap)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	target := uint8(protocol.AllNodes)
	if bits.OnesCount64(deviceMap) == 1 {
		target = uint8(bits.TrailingZeros64(deviceMap))
	}
	return e.startFlow(notify.APIConnect, deviceMap, target, protocol.MsgTypeConnect, nil)
}

// ConfigureCellBalancing sends a configure-cell-balancing request to the
// single node in deviceMap.
func (e *Endpoint) ConfigureCellBalancing(deviceMap uint64, req *protocol.CellBalancingRequest) error {
	if req == nil {
		return notify.NewInvalidParameter("nil cell balancing request")
	}
	if bits.OnesCount64(deviceMap) != 1 {
		return notify.NewInvalidParameter("device map 0x%016x must select exactly one node", deviceMap)
	}
	target := uint8(bits.TrailingZeros64(deviceMap))
	if !protocol.IsValidNode(target) {
		return notify.NewInvalidParameter("invalid device id %d", target)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	return e.startFlow(notify.APIConfigureCellBalancing, deviceMap, target,
		protocol.MsgTypeSensorCommand, protocol.BuildCellBalancingRequest(req))
}

// GetCellBalancingStatus broadcasts a get-status request to every connected
// node.
func (e *Endpoint) GetCellBalancingStatus() error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	connected := e.link.Connected()
	if connected == 0 {
		return notify.NewFail("no connected nodes")
	}
	return e.startFlow(notify.APIGetCellBalancingStatus, connected, protocol.AllNodes,
		protocol.MsgTypeSensorCommand, protocol.BuildGetStatusRequest())
}

func (e *Endpoint) startFlow(api notify.API, requested uint64, target uint8, msgType protocol.MessageType, payload []byte) error {
	if !e.lock.Acquire() {
		return notify.NewFail("%s: API lock held", api)
	}

	if err := e.link.WriteRequest(target, msgType, payload); err != nil {
		e.lock.Release()
		return err
	}
	if err := e.link.ActivateRequest(api, e.cfg.RequestRetries, e.cfg.RequestInterval, e.clock()); err != nil {
		_ = e.link.DiscardRequest()
		e.lock.Release()
		return err
	}

	e.flow = flow{api: api, requested: requested, holdsLock: true}
	logging.Debug("Command started",
		zap.String("api", api.String()),
		zap.Uint8("target", target),
		zap.Uint64("requested", requested),
	)
	return nil
}

// expecting reports whether deviceID owes a reply to the api flow carried
// with sequence number seq.
func (e *Endpoint) expecting(api notify.API, deviceID uint8, seq uint8) bool {
	if e.flow.api != api || !e.link.RequestActive(api) {
		return false
	}
	if e.flow.requested&(uint64(1)<<deviceID) == 0 {
		return false
	}
	if want := e.link.Request().Sequence; seq != want {
		logging.Debug("Reply with stale sequence",
			zap.String("api", api.String()),
			zap.Uint8("device_id", deviceID),
			zap.Uint8("seq", seq),
			zap.Uint8("want", want),
		)
		return false
	}
	return true
}

func (e *Endpoint) handleConnectResponse(h protocol.Header, payload []byte, now uint32) {
	if !e.expecting(notify.APIConnect, h.Source, h.Sequence) {
		logging.Debug("Unsolicited connect response", zap.Uint8("device_id", h.Source))
		return
	}
	r, err := protocol.ParseConnectResponse(payload)
	if err != nil {
		e.dropFrame(h.Source, err.Error())
		return
	}

	e.flow.requested &^= uint64(1) << h.Source
	if r.ReturnCode != protocol.ReturnCodeSuccess {
		e.flow.failed = true
		logging.Warn("Connect rejected",
			zap.Uint8("device_id", h.Source),
			zap.Uint8("return_code", r.ReturnCode),
		)
	} else {
		_ = e.link.SetConnected(h.Source, now)
		info := NodeInfo{DeviceID: h.Source, Info: *r}
		e.flow.nodes = append(e.flow.nodes, info)
		e.notifier.Event(notify.EventSafetyCPUConnected, info)
	}

	if e.flow.requested == 0 {
		result := notify.Success
		if e.flow.failed {
			result = notify.Fail
		}
		e.finishRequest(result, ConnectResult{Nodes: e.flow.nodes})
	}
}

func (e *Endpoint) handleCellBalancingResponse(h protocol.Header, payload []byte) {
	resp, err := protocol.ParseCellBalancingResponse(payload)
	if err != nil {
		e.dropFrame(h.Source, err.Error())
		return
	}
	if !e.expecting(notify.APIConfigureCellBalancing, h.Source, resp.Sequence) {
		return
	}

	e.flow.requested &^= uint64(1) << h.Source
	if resp.ReturnCode != protocol.ReturnCodeSuccess {
		e.flow.failed = true
	}
	if e.flow.requested == 0 {
		result := notify.Success
		if e.flow.failed {
			result = notify.Fail
		}
		e.finishRequest(result, *resp)
	}
}

func (e *Endpoint) handleCellBalancingStatus(h protocol.Header, payload []byte) {
	st, err := protocol.ParseCellBalancingStatus(payload)
	if err != nil {
		e.dropFrame(h.Source, err.Error())
		return
	}
	if !e.expecting(notify.APIGetCellBalancingStatus, h.Source, st.Sequence) {
		return
	}

	if e.flow.statuses == nil {
		e.flow.statuses = make(map[uint8]protocol.CellBalancingStatus)
	}
	e.flow.statuses[h.Source] = *st
	e.flow.requested &^= uint64(1) << h.Source

	if st.ReturnCode != protocol.ReturnCodeSuccess {
		logging.Warn("Cell balancing status failed",
			zap.Uint8("device_id", h.Source),
			zap.Uint8("return_code", st.ReturnCode),
		)
		e.finishRequest(notify.Fail, StatusResult{Statuses: e.flow.statuses})
		return
	}
	if e.flow.requested == 0 {
		e.finishRequest(notify.Success, StatusResult{Statuses: e.flow.statuses})
	}
}

// finishRequest deactivates the request and completes the flow.
func (e *Endpoint) finishRequest(result notify.Result, data any) {
	if err := e.link.DeactivateRequest(); err != nil {
		logging.Warn("Deactivate failed", zap.Error(err))
	}
	e.complete(result, data)
}

func (e *Endpoint) onRequestTimeout(api notify.API, target uint8) {
	if e.flow.api != api {
		return
	}
	e.complete(notify.Timeout, nil)
}

// complete releases the lock and reports the flow's result.
func (e *Endpoint) complete(result notify.Result, data any) {
	api := e.flow.api
	if e.flow.holdsLock {
		e.lock.Release()
	}
	e.flow = flow{}
	e.notifier.APIComplete(api, result, data)
}
