package ui

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/wbms/internal/protocol"
)

// FrameRoute describes the direction of a decoded frame
func FrameRoute(d *protocol.Description) string {
	if d.Inbound {
		return fmt.Sprintf("node %d → host", d.Header.Source)
	}
	if d.Destination == protocol.AllNodes {
		return "host → all nodes"
	}
	return fmt.Sprintf("host → node %d", d.Destination)
}

// RenderFrame renders a decoded frame in a bordered box
func RenderFrame(d *protocol.Description, width int) string {
	width = clampWidth(width)

	check := SuccessTitleStyle.Render(SuccessMarker + " check ok")
	border := PrimaryColor
	if !d.CheckValid {
		check = ErrorTitleStyle.Render(FailureMarker + " check mismatch")
		border = ErrorColor
	}

	lines := []string{
		HeaderTitleStyle.Render(strings.ToUpper(d.Header.MessageType.String())),
		HeaderCommandStyle.Render(FrameRoute(d)),
		"",
		field("sequence", fmt.Sprintf("%d", d.Header.Sequence)),
		field("payload_length", fmt.Sprintf("%d", d.Header.PayloadLength)),
	}
	for _, f := range d.Fields {
		lines = append(lines, field(f.Name, f.Value))
	}
	lines = append(lines, "", "  "+check)
	if len(d.Payload) > 0 {
		lines = append(lines, "", HexStyle.Width(width-8).PaddingLeft(2).Render(hex.EncodeToString(d.Payload)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Width(width - 2).
		Render(strings.Join(lines, "\n"))
}

func field(name, value string) string {
	return "  " + FieldKeyStyle.Render(name) + FieldValueStyle.Render(value)
}

// FormatFramePlain renders a decoded frame as plain text lines
func FormatFramePlain(d *protocol.Description) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", d, FrameRoute(d))
	for _, f := range d.Fields {
		fmt.Fprintf(&b, "  %-22s%s\n", f.Name, f.Value)
	}
	if len(d.Payload) > 0 {
		fmt.Fprintf(&b, "  %-22s%s\n", "payload", hex.EncodeToString(d.Payload))
	}
	return b.String()
}
