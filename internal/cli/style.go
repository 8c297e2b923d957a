package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/cadre-oss/agentmem/internal/memory"
)

var (
	colorGreen  = lipgloss.Color("#98C379")
	colorYellow = lipgloss.Color("#E5C07B")
	colorRed    = lipgloss.Color("#E06C75")
	colorMuted  = lipgloss.Color("#636B78")

	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

func statusIcon(s memory.SizeStatus) string {
	switch s {
	case memory.StatusWarn:
		return warnStyle.Render("◐")
	case memory.StatusCritical:
		return critStyle.Render("✗")
	default:
		return okStyle.Render("●")
	}
}

func styleStatus(s memory.SizeStatus) string {
	switch s {
	case memory.StatusWarn:
		return warnStyle.Render(string(s))
	case memory.StatusCritical:
		return critStyle.Render(string(s))
	default:
		return okStyle.Render(string(s))
	}
}
