package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/stagekit/rundir"
)

func runCount(data any) int {
	if s, ok := data.(*rundir.Summary); ok {
		return len(s.Runs)
	}
	return 0
}

// versionRootView lists the links and runs of a version root and shows
// the timing of the run under the cursor.
func versionRootView(data any, cursor int) string {
	s, ok := data.(*rundir.Summary)
	if !ok {
		return wrongData(data)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Version Root") + "\n\n")
	b.WriteString(field("Root", s.Root))
	b.WriteString(field("Latest", orDash(s.Latest)))
	b.WriteString(field("Best", orDash(s.Best)))
	for _, p := range s.Production {
		b.WriteString(field("Production "+p.Tag, p.Run))
	}
	b.WriteString("\n")

	if len(s.Runs) == 0 {
		b.WriteString(dimStyle.Render("No runs yet."))
		return frameStyle.Render(b.String())
	}
	for i, r := range s.Runs {
		state := RunState(r.Success)
		marker := "  "
		if i == cursor {
			marker = cursorStyle.Render("> ")
		}
		line := fmt.Sprintf("%s%-16s %s", marker, r.Name,
			lipgloss.NewStyle().Foreground(stateColor(state)).Render(fmt.Sprintf("%-8s", state)))
		if len(r.Links) > 0 {
			line += " " + dimStyle.Render(strings.Join(r.Links, ", "))
		}
		b.WriteString(line + "\n")
	}

	if cursor >= 0 && cursor < len(s.Runs) {
		sel := s.Runs[cursor]
		b.WriteString("\n")
		b.WriteString(field("Start Time", orDash(sel.StartTime)))
		b.WriteString(field("Run Time", orDash(sel.RunTime)))
	}
	return frameStyle.Render(b.String())
}

// runMetadataView shows the top-level keys of one run's metadata. Nested
// sections are elided; the table output flattens them.
func runMetadataView(data any, _ int) string {
	md, ok := data.(map[string]any)
	if !ok {
		return wrongData(data)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Run Metadata") + "\n\n")
	for _, k := range slices.Sorted(maps.Keys(md)) {
		switch v := md[k].(type) {
		case bool:
			state := "failed"
			if v {
				state = "success"
			}
			b.WriteString(labelStyle.Render(k+":") + " " +
				lipgloss.NewStyle().Foreground(stateColor(state)).Render(fmt.Sprint(v)) + "\n")
		case map[string]any, []any:
			b.WriteString(field(k, "…"))
		default:
			b.WriteString(field(k, fmt.Sprint(v)))
		}
	}
	return frameStyle.Render(b.String())
}
