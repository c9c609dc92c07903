// Package tui shows inspect and stats results in an interactive Bubble Tea
// screen.
//
// Views are read-only and show the same payloads as the table and JSON
// output. Only the version root view takes input beyond quitting: up and
// down move between runs.
package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// View types.
const (
	ViewInspectVersionRoot = "inspect_version_root"
	ViewInspectRun         = "inspect_run"
	ViewStatsVersionRoot   = "stats_version_root"
	ViewStatsRun           = "stats_run"
)

// A view renders its payload. cursor is only meaningful for views that
// list runs.
type view struct {
	render func(data any, cursor int) string
	// runs reports how many rows the cursor moves over.
	runs func(data any) int
	help string
}

const quitHelp = "q quit"

var views = map[string]view{
	ViewInspectVersionRoot: {render: versionRootView, runs: runCount, help: "↑/↓ select run • " + quitHelp},
	ViewInspectRun:         {render: runMetadataView, help: quitHelp},
	ViewStatsVersionRoot:   {render: statsView, help: quitHelp},
	ViewStatsRun:           {render: countersView, help: quitHelp},
}

// SupportedTUIViews lists the view types, sorted.
func SupportedTUIViews() []string {
	return slices.Sorted(maps.Keys(views))
}

// IsTUISupported reports whether viewType has an interactive view.
func IsTUISupported(viewType string) bool {
	_, ok := views[viewType]
	return ok
}

var keys = struct {
	Quit, Up, Down key.Binding
}{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous run")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next run")),
}

// Model is the Bubble Tea model behind every view.
type Model struct {
	view     view
	data     any
	cursor   int
	quitting bool
}

// NewModel returns the model for viewType. Lists start on their last
// (newest) row.
func NewModel(viewType string, data any) (Model, error) {
	v, ok := views[viewType]
	if !ok {
		return Model{}, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	m := Model{view: v, data: data}
	if n := m.rows(); n > 0 {
		m.cursor = n - 1
	}
	return m, nil
}

func (m Model) rows() int {
	if m.view.runs == nil {
		return 0
	}
	return m.view.runs(m.data)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(km, keys.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(km, keys.Down):
		m.cursor = min(m.cursor+1, max(m.rows()-1, 0))
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.view.render(m.data, m.cursor) + "\n" + dimStyle.MarginTop(1).Render(m.view.help)
}

// Run shows data full screen until the user quits.
func Run(viewType string, data any) error {
	m, err := NewModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// Static renders the first frame of a view as plain text.
func Static(viewType string, data any) string {
	m, err := NewModel(viewType, data)
	if err != nil {
		return err.Error()
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + valueStyle.Render(value) + "\n"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func containsAny(s string, subs ...string) bool {
	return slices.ContainsFunc(subs, func(sub string) bool { return strings.Contains(s, sub) })
}

func wrongData(data any) string {
	return fmt.Sprintf("Invalid data type %T", data)
}
