package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/wbms/internal/discovery"
)

// RenderBridges renders discovered bridges, one per line
func RenderBridges(bridges []*discovery.Bridge) string {
	if len(bridges) == 0 {
		return lipgloss.NewStyle().Foreground(MutedColor).Render("  No bridges found.")
	}

	nameStyle := lipgloss.NewStyle().Foreground(TextColor).Bold(true).Width(20)
	urlStyle := lipgloss.NewStyle().Foreground(PrimaryColor)

	lines := make([]string, 0, len(bridges))
	for _, b := range bridges {
		line := "  " + nameStyle.Render(b.Instance) + urlStyle.Render(b.URL())
		if v := b.GetMetadata("version"); v != "" {
			line += HexStyle.Render(fmt.Sprintf("  (%s)", v))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
