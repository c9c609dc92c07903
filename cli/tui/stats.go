package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/stagekit/rundir"
)

// boxesPerRow keeps the counter grid inside 80 columns.
const boxesPerRow = 4

func statBox(label string, value int64, color lipgloss.Color) string {
	num := lipgloss.NewStyle().Bold(true).Foreground(color).Render(fmt.Sprint(value))
	return statStyle.BorderForeground(color).Render(
		lipgloss.JoinVertical(lipgloss.Center, num, dimStyle.Render(label)))
}

func statsView(data any, _ int) string {
	st, ok := data.(rundir.Stats)
	if !ok {
		return wrongData(data)
	}
	boxes := lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Total", int64(st.Total), colorCursor),
		statBox("Succeeded", int64(st.Succeeded), colorOK),
		statBox("Failed", int64(st.Failed), colorBad),
		statBox("Unknown", int64(st.Unknown), colorWarn),
		statBox("Production", int64(st.Production), colorAccent),
	)
	out := titleStyle.Render("Run Statistics") + "\n\n" + boxes
	if st.LastSuccess != "" {
		out += "\n\n" + field("Last Success", st.LastSuccess)
	}
	return out
}

// countersView shows the numeric counters a run recorded as boxes and its
// nested counter groups (links moved, per-stage totals) as fields.
func countersView(data any, _ int) string {
	counters, ok := data.(map[string]any)
	if !ok {
		return wrongData(data)
	}
	names := slices.Sorted(maps.Keys(counters))

	var boxes []string
	for _, k := range names {
		if n, ok := asInt(counters[k]); ok {
			boxes = append(boxes, statBox(strings.ReplaceAll(k, "_", " "), n, counterColor(k)))
		}
	}
	var grid []string
	for row := range slices.Chunk(boxes, boxesPerRow) {
		grid = append(grid, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Run Counters") + "\n\n")
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, grid...))
	for _, k := range names {
		group, ok := counters[k].(map[string]any)
		if !ok || len(group) == 0 {
			continue
		}
		b.WriteString("\n\n" + titleStyle.Render(strings.ReplaceAll(k, "_", " ")) + "\n")
		for _, gk := range slices.Sorted(maps.Keys(group)) {
			b.WriteString(field(gk, fmt.Sprint(group[gk])))
		}
	}
	return b.String()
}

// asInt accepts the number types counters take after a JSON or YAML
// round trip.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
