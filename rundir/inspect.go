package rundir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/stagekit/metadata"
	"github.com/pithecene-io/stagekit/types"
)

var runDirPattern = regexp.MustCompile(`^\d{4}_\d{2}_\d{2}\.\d+$`)

// ProductionTag is one dated entry under production-runs.
type ProductionTag struct {
	Tag string `json:"tag" yaml:"tag"`
	Run string `json:"run" yaml:"run"`
}

// RunSummary describes a single run directory.
type RunSummary struct {
	Name string `json:"name" yaml:"name"`
	// Success is nil when the run never dumped its metadata or did not
	// record an outcome.
	Success   *bool    `json:"success,omitempty" yaml:"success,omitempty"`
	StartTime string   `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	RunTime   string   `json:"run_time,omitempty" yaml:"run_time,omitempty"`
	Links     []string `json:"links,omitempty" yaml:"links,omitempty"`
}

// Summary is a read-only view of a version root.
type Summary struct {
	Root       string          `json:"root" yaml:"root"`
	Latest     string          `json:"latest,omitempty" yaml:"latest,omitempty"`
	Best       string          `json:"best,omitempty" yaml:"best,omitempty"`
	Production []ProductionTag `json:"production,omitempty" yaml:"production,omitempty"`
	Runs       []RunSummary    `json:"runs" yaml:"runs"`
}

// Stats are aggregate run counts for a version root.
type Stats struct {
	Total       int    `json:"total" yaml:"total"`
	Succeeded   int    `json:"succeeded" yaml:"succeeded"`
	Failed      int    `json:"failed" yaml:"failed"`
	Unknown     int    `json:"unknown" yaml:"unknown"`
	Production  int    `json:"production" yaml:"production"`
	LastSuccess string `json:"last_success,omitempty" yaml:"last_success,omitempty"`
}

// Stats counts runs by outcome.
func (s *Summary) Stats() Stats {
	st := Stats{Total: len(s.Runs), Production: len(s.Production)}
	for _, r := range s.Runs {
		switch {
		case r.Success == nil:
			st.Unknown++
		case *r.Success:
			st.Succeeded++
			st.LastSuccess = r.Name
		default:
			st.Failed++
		}
	}
	return st
}

// Run returns the summary of the named run.
func (s *Summary) Run(name string) (RunSummary, bool) {
	for _, r := range s.Runs {
		if r.Name == name {
			return r, true
		}
	}
	return RunSummary{}, false
}

// Inspect summarizes the version root at root: its run directories in name
// order, the runs that best and latest point at, and the production tags.
// Nothing is modified.
func Inspect(root string) (*Summary, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewError(types.ErrNotFound, "inspect", abs, err)
		}
		return nil, err
	}

	s := &Summary{Root: abs, Runs: []RunSummary{}}
	s.Latest = linkTarget(filepath.Join(abs, types.LatestLink))
	s.Best = linkTarget(filepath.Join(abs, types.BestLink))
	s.Production, err = productionTags(filepath.Join(abs, types.ProductionRuns))
	if err != nil {
		return nil, err
	}

	links := map[string][]string{}
	if s.Latest != "" {
		links[s.Latest] = append(links[s.Latest], types.LatestLink)
	}
	if s.Best != "" {
		links[s.Best] = append(links[s.Best], types.BestLink)
	}
	for _, p := range s.Production {
		links[p.Run] = append(links[p.Run], types.ProductionRuns+"/"+p.Tag)
	}

	for _, e := range entries {
		if !e.IsDir() || !runDirPattern.MatchString(e.Name()) {
			continue
		}
		run, err := summarizeRun(filepath.Join(abs, e.Name()))
		if err != nil {
			return nil, err
		}
		run.Links = links[run.Name]
		s.Runs = append(s.Runs, run)
	}
	slices.SortFunc(s.Runs, func(a, b RunSummary) int { return compareRunNames(a.Name, b.Name) })
	return s, nil
}

func summarizeRun(dir string) (RunSummary, error) {
	run := RunSummary{Name: filepath.Base(dir)}
	md, err := metadata.Load(filepath.Join(dir, types.MetadataFileName))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return run, nil
		}
		return run, err
	}
	if v, ok := md[metadata.KeySuccess].(bool); ok {
		run.Success = &v
	}
	run.StartTime = scalarString(md[metadata.KeyStartTime])
	run.RunTime = scalarString(md[metadata.KeyRunTime])
	return run, nil
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(types.TimestampLayout)
	default:
		return fmt.Sprint(x)
	}
}

// linkTarget returns the base name of the directory a link resolves to, or
// "" when the link is missing, dangling, or still a placeholder directory.
func linkTarget(path string) string {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	return filepath.Base(resolved)
}

func productionTags(dir string) ([]ProductionTag, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var tags []ProductionTag
	for _, e := range entries {
		if _, perr := time.Parse(types.DayLayout, e.Name()); perr != nil {
			continue
		}
		run := linkTarget(filepath.Join(dir, e.Name()))
		if run == "" {
			continue
		}
		tags = append(tags, ProductionTag{Tag: e.Name(), Run: run})
	}
	return tags, nil
}

// compareRunNames orders YYYY_MM_DD.NN names by date, then numerically by
// sequence so that .10 follows .9.
func compareRunNames(a, b string) int {
	da, sa := splitRunName(a)
	db, sb := splitRunName(b)
	if da != db {
		if da < db {
			return -1
		}
		return 1
	}
	return sa - sb
}

func splitRunName(name string) (string, int) {
	date, seq, _ := strings.Cut(name, ".")
	n, _ := strconv.Atoi(seq)
	return date, n
}
