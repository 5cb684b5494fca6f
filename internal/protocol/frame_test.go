package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		payload []byte
	}{
		{
			name:    "empty payload unicast",
			header:  Header{Source: 0, Sequence: 0, MessageType: MsgTypeConnect},
			payload: nil,
		},
		{
			name:    "heartbeat broadcast",
			header:  Header{Source: AllNodes, Sequence: 255, MessageType: MsgTypeHeartbeat},
			payload: bytes.Repeat([]byte{0xA5}, HeartbeatSize),
		},
		{
			name:    "maximum payload to last node",
			header:  Header{Source: MaxNodes - 1, Sequence: 17, MessageType: MsgTypeSensorCommand},
			payload: bytes.Repeat([]byte{0x5A}, MaxPayloadSize),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildFrame(tt.header, tt.payload)
			if err != nil {
				t.Fatalf("BuildFrame() error = %v", err)
			}
			if len(frame) != HeaderSize+len(tt.payload)+CheckSize {
				t.Fatalf("frame length = %d", len(frame))
			}
			if !ValidateCheck(frame) {
				t.Fatal("ValidateCheck() = false for freshly wrapped frame")
			}

			h, dst, payload, err := Unwrap(frame)
			if err != nil {
				t.Fatalf("Unwrap() error = %v", err)
			}
			// Host-to-node addressing: destination is the target, source is the host.
			if dst != tt.header.Source {
				t.Errorf("destination = %d, want %d", dst, tt.header.Source)
			}
			if h.Source != HostControllerID {
				t.Errorf("source = 0x%02x, want host controller", h.Source)
			}
			if h.Sequence != tt.header.Sequence {
				t.Errorf("sequence = %d, want %d", h.Sequence, tt.header.Sequence)
			}
			if h.MessageType != tt.header.MessageType {
				t.Errorf("message type = %s, want %s", h.MessageType, tt.header.MessageType)
			}
			if int(h.PayloadLength) != len(tt.payload) {
				t.Errorf("payload length = %d, want %d", h.PayloadLength, len(tt.payload))
			}
			if !bytes.Equal(payload, tt.payload) && len(tt.payload) > 0 {
				t.Errorf("payload = %x, want %x", payload, tt.payload)
			}
		})
	}
}

func TestSingleByteMutationBreaksCheck(t *testing.T) {
	payload := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70}
	frame, err := BuildFrame(Header{Source: 3, Sequence: 9, MessageType: MsgTypeSensorCommand}, payload)
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}

	positions := map[string]int{
		"source":             OffsetSource,
		"destination":        OffsetDestination,
		"sequence":           OffsetSequence,
		"message type":       OffsetMessageType,
		"payload length":     OffsetPayloadLength,
		"first payload byte": HeaderSize,
		"last payload byte":  HeaderSize + len(payload) - 1,
		"first check byte":   HeaderSize + len(payload),
		"last check byte":    len(frame) - 1,
	}

	for name, pos := range positions {
		t.Run(name, func(t *testing.T) {
			for _, flip := range []byte{0x01, 0x80, 0xFF} {
				mutated := append([]byte(nil), frame...)
				mutated[pos] ^= flip
				if ValidateCheck(mutated) {
					t.Errorf("ValidateCheck() = true after xor 0x%02x at offset %d", flip, pos)
				}
			}
		})
	}
}

func TestWrapRejects(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		payload []byte
		out     []byte
		wantErr error
	}{
		{
			name:    "target out of range",
			header:  Header{Source: MaxNodes},
			out:     make([]byte, MaxFrameSize),
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "host controller is not a valid target",
			header:  Header{Source: HostControllerID},
			out:     make([]byte, MaxFrameSize),
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "payload too large",
			header:  Header{Source: 1},
			payload: make([]byte, MaxPayloadSize+1),
			out:     make([]byte, MaxFrameSize+1),
			wantErr: ErrPayloadTooLarge,
		},
		{
			name:    "short output buffer",
			header:  Header{Source: 1},
			payload: make([]byte, 10),
			out:     make([]byte, 12),
			wantErr: ErrShortBuffer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Wrap(tt.header, tt.payload, tt.out)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Wrap() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnwrapShortFrame(t *testing.T) {
	_, _, _, err := Unwrap([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFrame) {
		t.Errorf("Unwrap() error = %v, want ErrShortFrame", err)
	}
}

func TestUnwrapBoundsPayloadByFrame(t *testing.T) {
	// Declared length larger than the bytes actually present.
	raw := []byte{5, HostControllerID, 0, byte(MsgTypeFault), 40, 0xAA, 0xBB}
	_, _, payload, err := Unwrap(raw)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if len(payload) != 2 {
		t.Errorf("payload length = %d, want 2", len(payload))
	}
}

func TestValidateIncoming(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		claimed uint8
		dst     uint8
		want    bool
	}{
		{"valid", Header{Source: 4, PayloadLength: 10}, 4, HostControllerID, true},
		{"payload too long", Header{Source: 4, PayloadLength: MaxPayloadSize + 1}, 4, HostControllerID, false},
		{"wrong destination", Header{Source: 4}, 4, 7, false},
		{"transport/header source mismatch", Header{Source: 4}, 5, HostControllerID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateIncoming(tt.header, tt.claimed, tt.dst); got != tt.want {
				t.Errorf("ValidateIncoming() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildInbound(t *testing.T) {
	frame, err := BuildInbound(7, 42, MsgTypeFault, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("BuildInbound() error = %v", err)
	}
	h, dst, payload, err := Unwrap(frame)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if !ValidateIncoming(h, 7, dst) {
		t.Error("ValidateIncoming() = false for simulated node frame")
	}
	if !ValidateCheck(frame) {
		t.Error("ValidateCheck() = false for simulated node frame")
	}
	if !bytes.Equal(payload, []byte{1, 2, 3}) {
		t.Errorf("payload = %x", payload)
	}
}
