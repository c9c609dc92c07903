package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("#7C3AED")
	colorOK     = lipgloss.Color("#10B981")
	colorWarn   = lipgloss.Color("#F59E0B")
	colorBad    = lipgloss.Color("#EF4444")
	colorDim    = lipgloss.Color("#6B7280")
	colorCursor = lipgloss.Color("#3B82F6")
	colorPlain  = lipgloss.Color("#FFFFFF")
)

const (
	labelWidth   = 16
	statBoxWidth = 20
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(colorDim).Width(labelWidth)
	valueStyle  = lipgloss.NewStyle().Foreground(colorPlain)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCursor)
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(1, 2)
	statStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2).Width(statBoxWidth).Align(lipgloss.Center)
)

// stateColor maps a run state to its color.
func stateColor(state string) lipgloss.Color {
	switch state {
	case "success":
		return colorOK
	case "unknown":
		return colorWarn
	case "failed", "interrupted":
		return colorBad
	}
	return colorPlain
}

// counterColor picks a color from the wording of a counter name.
func counterColor(name string) lipgloss.Color {
	switch {
	case containsAny(name, "fail", "interrupt"):
		return colorBad
	case containsAny(name, "succe", "completed"):
		return colorOK
	}
	return colorCursor
}

// RunState names the outcome recorded for a run: success, failed or
// unknown when nothing was recorded.
func RunState(success *bool) string {
	switch {
	case success == nil:
		return "unknown"
	case *success:
		return "success"
	default:
		return "failed"
	}
}
