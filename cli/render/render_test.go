package render

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/stagekit/rundir"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"Table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q, err %v", tt.input, got, err, tt.want, tt.wantErr)
		}
		if err != nil && !strings.Contains(err.Error(), "json, table, or yaml") {
			t.Errorf("error should list valid formats: %v", err)
		}
	}
}

func TestNew_DefaultFormat(t *testing.T) {
	if got := New("", false, &bytes.Buffer{}).Format(); got != FormatJSON {
		t.Errorf("default format off a terminal = %q, want json", got)
	}
	if got := New(FormatYAML, false, &bytes.Buffer{}).Format(); got != FormatYAML {
		t.Errorf("explicit format = %q", got)
	}
}

func render(t *testing.T, format Format, noColor bool, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := New(format, noColor, &buf).Render(data); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func TestRender_Encoders(t *testing.T) {
	data := map[string]any{"stage": "features", "rows": 3}

	js := render(t, FormatJSON, false, data)
	if !strings.Contains(js, `"stage": "features"`) {
		t.Errorf("json = %s", js)
	}
	if js != render(t, FormatJSON, true, data) {
		t.Error("--no-color changed JSON output")
	}

	y := render(t, FormatYAML, false, data)
	if !strings.Contains(y, "stage: features") || !strings.Contains(y, "rows: 3") {
		t.Errorf("yaml = %s", y)
	}
}

type runRow struct {
	Name     string    `json:"name"`
	Links    []string  `json:"links"`
	Started  time.Time `json:"started"`
	Internal string    `json:"-"`
}

func TestRender_TableStruct(t *testing.T) {
	got := render(t, FormatTable, false, &runRow{
		Name:     "2026_02_07.01",
		Links:    []string{"latest", "best"},
		Started:  time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC),
		Internal: "secret",
	})
	for _, want := range []string{"name:", "2026_02_07.01", "links:", "latest, best", "started:", "2026-02-07"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "secret") {
		t.Errorf("table shows skipped fields:\n%s", got)
	}
}

func TestRender_TableSlice(t *testing.T) {
	got := render(t, FormatTable, false, []runRow{
		{Name: "2026_02_07.01"},
		{Name: "2026_02_07.02", Links: []string{"latest"}},
	})
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2:\n%s", len(lines), got)
	}
	if fields := strings.Fields(lines[0]); len(fields) != 3 || fields[0] != "name" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "2026_02_07.02") || !strings.Contains(lines[2], "latest") {
		t.Errorf("row = %q", lines[2])
	}

	if got := render(t, FormatTable, false, []string{}); !strings.Contains(got, noResults) {
		t.Errorf("empty slice = %q", got)
	}
}

func TestRender_TableSummary(t *testing.T) {
	ok := true
	got := render(t, FormatTable, true, &rundir.Summary{
		Root:       "/data/stage",
		Latest:     "2024_03_01.02",
		Production: []rundir.ProductionTag{{Tag: "2024_03_01", Run: "2024_03_01.01"}},
		Runs: []rundir.RunSummary{
			{Name: "2024_03_01.01", Success: &ok, RunTime: "3.00 seconds", Links: []string{"production-runs/2024_03_01"}},
			{Name: "2024_03_01.02", Links: []string{"latest"}},
		},
	})
	for _, want := range []string{
		"root: /data/stage",
		"latest: 2024_03_01.02",
		"best: -",
		"production: 2024_03_01 -> 2024_03_01.01",
		"start_time",
		"success", "unknown", "3.00 seconds",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "2024_03_01.01  ") > strings.Index(got, "2024_03_01.02  ") {
		t.Errorf("runs out of order:\n%s", got)
	}
}

func TestRender_TableMapFlattensAndSorts(t *testing.T) {
	got := render(t, FormatTable, false, map[string]any{
		"success":  true,
		"counters": map[string]any{"runs_completed": 1, "links_moved": map[string]any{"latest": 1}},
		"tags":     []any{"a", "b"},
	})
	lines := strings.Split(strings.TrimSpace(got), "\n")
	want := []string{"counters.links_moved.latest:", "counters.runs_completed:", "success:", "tags:"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), got)
	}
	for i, p := range want {
		if !strings.HasPrefix(lines[i], p) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], p)
		}
	}
	if !strings.Contains(got, "a, b") {
		t.Errorf("list value not joined: %s", got)
	}
}

func cellOf(x any) string { return cell(reflect.ValueOf(x)) }

func TestCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"scalars", []int{1, 2}, "1, 2"},
		{"nested", []map[string]int{{"a": 1}}, "[1 items]"},
		{"map", map[string]int{"a": 1, "b": 2}, "{2 keys}"},
		{"struct", struct{ A int }{1}, "{...}"},
		{"pointer", new(int), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cellOf(tt.in); got != tt.want {
				t.Errorf("cell = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderTUI_Unsupported(t *testing.T) {
	if err := New(FormatTable, false, &bytes.Buffer{}).RenderTUI("run", nil); err == nil {
		t.Error("expected error for a view without TUI support")
	}
}

func TestIsTTY_NonFile(t *testing.T) {
	if isTTY(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
