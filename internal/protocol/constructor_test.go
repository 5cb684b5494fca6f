package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeHeartbeat(t *testing.T) {
	out := bytes.Repeat([]byte{0xEE}, HeartbeatSize)
	n, err := EncodeHeartbeat(0x0000000000000003, out)
	if err != nil {
		t.Fatalf("EncodeHeartbeat() error = %v", err)
	}
	if n != HeartbeatSize {
		t.Errorf("n = %d, want %d", n, HeartbeatSize)
	}
	want := []byte{0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0}
	if !bytes.Equal(out, want) {
		t.Errorf("heartbeat = %x, want %x", out, want)
	}

	connected, err := ParseHeartbeat(out)
	if err != nil || connected != 3 {
		t.Errorf("ParseHeartbeat() = %d, %v", connected, err)
	}

	if _, err := EncodeHeartbeat(1, make([]byte, HeartbeatSize-1)); err == nil {
		t.Error("EncodeHeartbeat() with short buffer should fail")
	}
}

func TestHeartbeatFrameBytes(t *testing.T) {
	payload := make([]byte, HeartbeatSize)
	if _, err := EncodeHeartbeat(3, payload); err != nil {
		t.Fatal(err)
	}
	frame, err := BuildFrame(Header{Source: AllNodes, Sequence: 7, MessageType: MsgTypeHeartbeat}, payload)
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}

	wantHeader := []byte{HostControllerID, AllNodes, 0x07, byte(MsgTypeHeartbeat), HeartbeatSize}
	if !bytes.Equal(frame[:HeaderSize], wantHeader) {
		t.Errorf("header = %x, want %x", frame[:HeaderSize], wantHeader)
	}
	if got := binary.BigEndian.Uint32(frame[len(frame)-CheckSize:]); got != 0xD44FD038 {
		t.Errorf("check = 0x%08X, want 0xD44FD038", got)
	}
}

func TestBuildCellBalancingRequest(t *testing.T) {
	req := &CellBalancingRequest{Duration: 0x0102, Threshold: 0x03040506}
	for i := range req.DutyCycles {
		req.DutyCycles[i] = uint8(i)
	}

	payload := BuildCellBalancingRequest(req)
	if len(payload) != CellBalancingRequestSize {
		t.Fatalf("payload length = %d, want %d", len(payload), CellBalancingRequestSize)
	}
	if payload[0] != CmdConfigureCellBalancing {
		t.Errorf("command = 0x%02x", payload[0])
	}
	if payload[1] != 0 || payload[64] != 63 {
		t.Errorf("duty table edges = %d/%d", payload[1], payload[64])
	}
	if !bytes.Equal(payload[65:71], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}) {
		t.Errorf("duration/threshold = %x", payload[65:71])
	}

	got, err := ParseCellBalancingRequest(payload)
	if err != nil {
		t.Fatalf("ParseCellBalancingRequest() error = %v", err)
	}
	if *got != *req {
		t.Errorf("round trip = %+v, want %+v", got, req)
	}
}

func TestBuildCellBalancingResponse(t *testing.T) {
	resp, err := ParseCellBalancingResponse(BuildCellBalancingResponse(9, 4))
	if err != nil {
		t.Fatalf("ParseCellBalancingResponse() error = %v", err)
	}
	if resp.Command != CmdConfigureCellBalancing || resp.Sequence != 9 || resp.ReturnCode != 4 {
		t.Errorf("response = %+v", resp)
	}
}
