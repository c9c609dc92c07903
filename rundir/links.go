package rundir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pithecene-io/stagekit/iox"
	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/types"
)

// MarkExplicit points versionRoot/linkName at runDir. Both paths are
// resolved to their canonical absolute form first. The link is replaced
// according to iox.ReplaceSymlink while the version root lock is held.
func MarkExplicit(runDir, versionRoot, linkName string) error {
	target, err := resolve(runDir)
	if err != nil {
		return err
	}
	root, err := resolve(versionRoot)
	if err != nil {
		return err
	}
	return withLock(root, func() error {
		return iox.ReplaceSymlink(filepath.Join(root, linkName), target)
	})
}

// MarkLatestExplicit points versionRoot/latest at runDir.
func MarkLatestExplicit(runDir, versionRoot string) error {
	return MarkExplicit(runDir, versionRoot, types.LatestLink)
}

// MarkBestExplicit points versionRoot/best at runDir.
func MarkBestExplicit(runDir, versionRoot string) error {
	return MarkExplicit(runDir, versionRoot, types.BestLink)
}

// MarkProductionExplicit points versionRoot/<date> at runDir. An empty date
// means today. A date not in YYYY_MM_DD form fails with types.ErrValidation
// before anything is touched.
func MarkProductionExplicit(runDir, versionRoot, date string) error {
	tag, err := productionTag(date)
	if err != nil {
		return err
	}
	if err := iox.MakeDirTree(versionRoot); err != nil {
		return err
	}
	return MarkExplicit(runDir, versionRoot, tag)
}

// MarkLatest points the latest link of runDir's version root at runDir.
func MarkLatest(runDir string) error {
	dir, err := resolve(runDir)
	if err != nil {
		return err
	}
	return MarkLatestExplicit(dir, filepath.Dir(dir))
}

// MarkBest points the best link of runDir's version root at runDir.
func MarkBest(runDir string) error {
	dir, err := resolve(runDir)
	if err != nil {
		return err
	}
	return MarkBestExplicit(dir, filepath.Dir(dir))
}

// MarkProduction tags runDir as the production run for date (today when
// empty) under the production-runs directory of its version root.
func MarkProduction(runDir, date string) error {
	dir, err := resolve(runDir)
	if err != nil {
		return err
	}
	return MarkProductionExplicit(dir, filepath.Join(filepath.Dir(dir), types.ProductionRuns), date)
}

func productionTag(date string) (string, error) {
	if date == "" {
		return today(), nil
	}
	if _, err := time.Parse(types.DayLayout, date); err != nil {
		return "", types.NewError(types.ErrValidation, "production tag", "",
			fmt.Errorf("%q is not in YYYY_MM_DD format", date))
	}
	return date, nil
}

// ValidateProductionTag reports whether date is an acceptable production
// tag. The empty string is accepted and means today.
func ValidateProductionTag(date string) error {
	_, err := productionTag(date)
	return err
}

// LinkOptions selects which promotion links a finished run receives.
type LinkOptions struct {
	// MarkBest also points best at the run.
	MarkBest bool
	// ProductionTag, when set together with MarkBest, tags the run for
	// production on that date.
	ProductionTag string
	// Incomplete marks a partial run (e.g. a quick debugging pass); it is
	// never promoted.
	Incomplete bool
}

// Promotion records which links MakeLinks actually moved.
type Promotion struct {
	Latest     bool   `json:"latest" yaml:"latest"`
	Best       bool   `json:"best" yaml:"best"`
	Production string `json:"production,omitempty" yaml:"production,omitempty"`
}

// Any reports whether any link was moved.
func (p Promotion) Any() bool {
	return p.Latest || p.Best || p.Production != ""
}

// ValidateBestAndProductionTags rejects marking an incomplete run (a quick
// or trial pass) as best or for production.
func ValidateBestAndProductionTags(opts LinkOptions) error {
	if opts.Incomplete && (opts.MarkBest || opts.ProductionTag != "") {
		return types.Errorf(types.ErrValidation, "link options", "",
			"cannot mark an incomplete run as best or for production")
	}
	return nil
}

// MakeLinks promotes a finished run. Nothing happens unless the run
// succeeded and is complete. latest always moves; best moves with
// MarkBest; a production tag is applied after best. A malformed production
// tag is logged and skipped since the run itself already completed.
// Link errors (a name occupied by a regular file) are returned.
func MakeLinks(success bool, runDir string, opts LinkOptions, logger *log.Logger) (Promotion, error) {
	var p Promotion
	if !success || opts.Incomplete {
		return p, nil
	}
	logger = log.OrNop(logger)

	if err := MarkLatest(runDir); err != nil {
		return p, fmt.Errorf("mark latest: %w", err)
	}
	p.Latest = true

	if !opts.MarkBest {
		return p, nil
	}
	if err := MarkBest(runDir); err != nil {
		return p, fmt.Errorf("mark best: %w", err)
	}
	p.Best = true

	if opts.ProductionTag == "" {
		return p, nil
	}
	if err := ValidateProductionTag(opts.ProductionTag); err != nil {
		logger.Warn("invalid production tag, run not marked for production", map[string]any{
			"production_tag": opts.ProductionTag,
			"expected":       "YYYY_MM_DD",
		})
		return p, nil
	}
	if err := MarkProduction(runDir, opts.ProductionTag); err != nil {
		return p, fmt.Errorf("mark production: %w", err)
	}
	p.Production = opts.ProductionTag
	return p, nil
}

// SetupVersionRoot creates root (and parents) and the best and latest
// placeholder directories when nothing occupies those names yet. With
// withProduction the production-runs directory is created too. Existing
// entries are never touched.
func SetupVersionRoot(root string, withProduction bool) error {
	if err := iox.MakeDirTree(root); err != nil {
		return err
	}
	dir, err := resolve(root)
	if err != nil {
		return err
	}
	for _, name := range []string{types.BestLink, types.LatestLink} {
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return err
		}
		if err := iox.Mkdir(path, types.DirPerm, iox.MkdirOptions{}); err != nil {
			return err
		}
	}
	if withProduction {
		return iox.Mkdir(filepath.Join(dir, types.ProductionRuns), types.DirPerm, iox.MkdirOptions{ExistOK: true})
	}
	return nil
}
