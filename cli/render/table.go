package render

import (
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/stagekit/cli/tui"
	"github.com/pithecene-io/stagekit/rundir"
)

const noResults = "(no results)"

var timeType = reflect.TypeFor[time.Time]()

// field is one named cell of a record.
type field struct {
	name  string
	value string
}

func (r *Renderer) table(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	switch d := data.(type) {
	case *rundir.Summary:
		r.summary(w, d)
	case map[string]any:
		flatten(w, "", d)
	default:
		v := indirect(reflect.ValueOf(data))
		if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			rows(w, v)
		} else {
			for _, f := range record(v) {
				fmt.Fprintf(w, "%s:\t%s\n", f.name, f.value)
			}
		}
	}
	return w.Flush()
}

// rows prints one line per element under a header taken from the first.
func rows(w io.Writer, v reflect.Value) {
	if v.Len() == 0 {
		fmt.Fprintln(w, noResults)
		return
	}
	header := record(indirect(v.Index(0)))
	names := make([]string, len(header))
	for i, f := range header {
		names[i] = f.name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	for i := range v.Len() {
		byName := make(map[string]string, len(names))
		for _, f := range record(indirect(v.Index(i))) {
			byName[f.name] = f.value
		}
		cells := make([]string, len(names))
		for j, n := range names {
			cells[j] = byName[n]
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

// record lists the cells of a struct (exported fields, json names) or a
// map (sorted keys). Anything else is a single "value" cell.
func record(v reflect.Value) []field {
	switch v.Kind() {
	case reflect.Struct:
		if v.Type() == timeType {
			break
		}
		var out []field
		for i := range v.NumField() {
			sf := v.Type().Field(i)
			if !sf.IsExported() {
				continue
			}
			if name, skip := jsonName(sf); !skip {
				out = append(out, field{name, cell(v.Field(i))})
			}
		}
		return out
	case reflect.Map:
		keys := v.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		})
		out := make([]field, len(keys))
		for i, k := range keys {
			out[i] = field{fmt.Sprint(k.Interface()), cell(v.MapIndex(k))}
		}
		return out
	}
	return []field{{"value", cell(v)}}
}

func jsonName(sf reflect.StructField) (name string, skip bool) {
	tag, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	switch tag {
	case "-":
		return "", true
	case "":
		return strings.ToLower(sf.Name), false
	}
	return tag, false
}

// cell formats one value. Scalar lists are joined; anything deeper is
// summarized by size.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, v.Len())
		for i := range v.Len() {
			e := indirect(v.Index(i))
			switch e.Kind() {
			case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
				return fmt.Sprintf("[%d items]", v.Len())
			}
			parts = append(parts, fmt.Sprint(e.Interface()))
		}
		return strings.Join(parts, ", ")
	case reflect.Map:
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if v.Type() != timeType {
			return "{...}"
		}
	}
	return fmt.Sprint(v.Interface())
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// summary prints the links of a version root, then one row per run.
func (r *Renderer) summary(w io.Writer, s *rundir.Summary) {
	bold := lipgloss.NewStyle().Bold(!r.noColor)
	links := []field{{"root", s.Root}, {"latest", dash(s.Latest)}, {"best", dash(s.Best)}}
	for _, p := range s.Production {
		links = append(links, field{"production", p.Tag + " -> " + p.Run})
	}
	for _, l := range links {
		fmt.Fprintf(r.out, "%s %s\n", bold.Render(l.name+":"), l.value)
	}
	fmt.Fprintln(r.out)

	if len(s.Runs) == 0 {
		fmt.Fprintln(w, noResults)
		return
	}
	fmt.Fprintln(w, "run\tstatus\tstart_time\trun_time\tlinks")
	for _, run := range s.Runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", run.Name, tui.RunState(run.Success),
			dash(run.StartTime), dash(run.RunTime), strings.Join(run.Links, ","))
	}
}

// flatten prints a generic map such as run metadata with sorted keys.
// Nested maps become dotted keys.
func flatten(w io.Writer, prefix string, m map[string]any) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := m[k].(map[string]any); ok {
			flatten(w, key, nested)
			continue
		}
		fmt.Fprintf(w, "%s:\t%s\n", key, cell(reflect.ValueOf(m[k])))
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
