package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/muurk/wbms/internal/discovery"
	"github.com/muurk/wbms/internal/protocol"
)

func heartbeatDescription(t *testing.T) *protocol.Description {
	t.Helper()
	payload := make([]byte, protocol.HeartbeatSize)
	if _, err := protocol.EncodeHeartbeat(3, payload); err != nil {
		t.Fatal(err)
	}
	frame, err := protocol.BuildFrame(protocol.Header{
		Source:      protocol.AllNodes,
		Sequence:    7,
		MessageType: protocol.MsgTypeHeartbeat,
	}, payload)
	if err != nil {
		t.Fatal(err)
	}
	d, err := protocol.Describe(frame)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestFrameRoute(t *testing.T) {
	tests := []struct {
		name string
		d    protocol.Description
		want string
	}{
		{"inbound", protocol.Description{Header: protocol.Header{Source: 4}, Inbound: true}, "node 4 → host"},
		{"broadcast", protocol.Description{Destination: protocol.AllNodes}, "host → all nodes"},
		{"unicast", protocol.Description{Destination: 9}, "host → node 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameRoute(&tt.d); got != tt.want {
				t.Errorf("FrameRoute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderFrame(t *testing.T) {
	d := heartbeatDescription(t)
	out := RenderFrame(d, 80)

	for _, want := range []string{"HEARTBEAT", "host → all nodes", "connected", "0x0000000000000003", "check ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderFrame() missing %q:\n%s", want, out)
		}
	}

	d.CheckValid = false
	if out := RenderFrame(d, 80); !strings.Contains(out, "check mismatch") {
		t.Errorf("bad check not shown:\n%s", out)
	}
}

func TestFormatFramePlain(t *testing.T) {
	out := FormatFramePlain(heartbeatDescription(t))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "Header{src=240, seq=7, type=Heartbeat, len=12} dst=255 check=ok") {
		t.Errorf("summary = %q", lines[0])
	}
	if !strings.Contains(lines[1], "connected") || !strings.HasSuffix(lines[1], "0x0000000000000003") {
		t.Errorf("field line = %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "000000000000000300000000") {
		t.Errorf("payload line = %q", lines[2])
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"typed answer", "yes\n", true},
		{"answer without newline", "yes", true},
		{"surrounding space", "  yes  \n", true},
		{"other answer", "no\n", false},
		{"empty input", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := OverwriteConfirmation(strings.NewReader(tt.input), &out, "/tmp/config.yaml")
			if got != tt.want {
				t.Errorf("OverwriteConfirmation() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "FILE EXISTS") {
				t.Error("warning box not written")
			}
		})
	}
}

func TestRenderBridges(t *testing.T) {
	if out := RenderBridges(nil); !strings.Contains(out, "No bridges found") {
		t.Errorf("empty list = %q", out)
	}

	out := RenderBridges([]*discovery.Bridge{{
		Instance: "rig-01",
		IP:       "10.0.0.2",
		Port:     8765,
		Path:     "/frames",
		Metadata: map[string]string{"version": "v1.0.0"},
	}})
	for _, want := range []string{"rig-01", "ws://10.0.0.2:8765/frames", "v1.0.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderBridges() missing %q: %s", want, out)
		}
	}
}

func TestResultRender(t *testing.T) {
	success := NewSuccessResult("Configuration written", map[string]string{"Path": "/tmp/c.yaml"}).SetWidth(80).Render()
	if !strings.Contains(success, "SUCCESS") || !strings.Contains(success, "/tmp/c.yaml") {
		t.Errorf("success box:\n%s", success)
	}

	failure := NewFailureResult("Decode failed", errors.New("frame too short"), []string{"Check the hex input"}).SetWidth(80).Render()
	for _, want := range []string{"FAILED", "frame too short", "Troubleshooting", "Check the hex input"} {
		if !strings.Contains(failure, want) {
			t.Errorf("failure box missing %q:\n%s", want, failure)
		}
	}
}

func TestWarningResult(t *testing.T) {
	out := NewWarningResult("mDNS advertisement failed", map[string]string{"Listen": ":8765"}).
		AddDetail("Error", "no multicast interface").
		SetWidth(80).
		Render()
	for _, want := range []string{"WARNING", "mDNS advertisement failed", ":8765", "no multicast interface"} {
		if !strings.Contains(out, want) {
			t.Errorf("warning box missing %q:\n%s", want, out)
		}
	}
	listen, errLine := strings.Index(out, "Listen:"), strings.Index(out, "Error:")
	if errLine < 0 || listen < 0 || errLine > listen {
		t.Errorf("details not in key order:\n%s", out)
	}

	if RenderWarning("Advertise", nil) == "" {
		t.Error("RenderWarning() returned nothing")
	}
}

func TestAddDetailOnEmptyResult(t *testing.T) {
	r := NewSuccessResult("Configuration written", nil).AddDetail("Path", "/tmp/c.yaml")
	if r.Details["Path"] != "/tmp/c.yaml" {
		t.Errorf("Details = %v", r.Details)
	}
}

func TestHeaderRenderSortsParams(t *testing.T) {
	out := NewHeader("wbms bridge", "wbms-host serve", map[string]string{"Path": "/frames", "Listen": ":8765"}).SetWidth(80).Render()

	if !strings.Contains(out, "WBMS BRIDGE") {
		t.Errorf("title missing:\n%s", out)
	}
	listen, path := strings.Index(out, "Listen:"), strings.Index(out, "Path:")
	if listen < 0 || path < 0 || listen > path {
		t.Errorf("params not in key order:\n%s", out)
	}
}
