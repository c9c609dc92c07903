package rundir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/pithecene-io/stagekit/types"
)

// ErrNoPreviousVersion is returned when no run earlier than the current one
// exists next to it. The first run of a stage hits this.
var ErrNoPreviousVersion = fmt.Errorf("no previous version: %w", types.ErrLookup)

var runNamePattern = regexp.MustCompile(`^\d{4}`)

// CurrentAndPreviousVersion returns the names of the current run and of the
// run before it.
//
// current may be a link such as best or latest; it is resolved to find the
// date of the concrete run. With resolvedName the resolved name is returned,
// otherwise the literal base name of current. When previous is non-empty its
// base name is returned as is. Otherwise the previous version is the
// greatest sibling name that starts with four digits and sorts before the
// current run's date, which means runs from the same day never qualify.
func CurrentAndPreviousVersion(current, previous string, resolvedName bool) (string, string, error) {
	abs, err := filepath.Abs(current)
	if err != nil {
		return "", "", err
	}
	resolved, err := resolve(abs)
	if err != nil {
		return "", "", err
	}
	resolvedBase := filepath.Base(resolved)
	currentName := filepath.Base(abs)
	if resolvedName {
		currentName = resolvedBase
	}

	if previous != "" {
		return currentName, filepath.Base(previous), nil
	}

	date, _, _ := strings.Cut(resolvedBase, ".")
	entries, err := os.ReadDir(filepath.Dir(abs))
	if err != nil {
		return "", "", err
	}
	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if runNamePattern.MatchString(name) && name < date {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", "", types.NewError(ErrNoPreviousVersion, "previous version", abs, nil)
	}
	return currentName, slices.Max(candidates), nil
}

// LastStageDirectory returns the directory holding a previous pipeline
// stage's results. An absolute version is returned unchanged. A relative
// version is joined onto root. The result must be absolute, so a relative
// version without an absolute root fails with types.ErrValidation.
func LastStageDirectory(version, root string) (string, error) {
	dir := version
	if !filepath.IsAbs(version) && root != "" {
		dir = filepath.Join(root, version)
	}
	if !filepath.IsAbs(dir) {
		return "", types.Errorf(types.ErrValidation, "last stage directory", dir, "invalid version path")
	}
	return dir, nil
}

// LatestProduction returns the run directory tagged by the newest dated link
// under versionRoot/production-runs.
func LatestProduction(versionRoot string) (tag, runDir string, err error) {
	prodDir := filepath.Join(versionRoot, types.ProductionRuns)
	entries, err := os.ReadDir(prodDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", types.NewError(types.ErrNotFound, "latest production", prodDir, err)
		}
		return "", "", err
	}
	var tags []string
	for _, e := range entries {
		if _, perr := time.Parse(types.DayLayout, e.Name()); perr == nil {
			tags = append(tags, e.Name())
		}
	}
	if len(tags) == 0 {
		return "", "", types.Errorf(types.ErrLookup, "latest production", prodDir, "no production runs tagged")
	}
	tag = slices.Max(tags)
	runDir, err = resolve(filepath.Join(prodDir, tag))
	if err != nil {
		return "", "", err
	}
	return tag, runDir, nil
}
