// Package rundir manages versioned run directories and the promotion links
// that point at them.
//
// A version root looks like:
//
//	<root>/
//	  2024_03_01.01/
//	  2024_03_01.02/
//	  best -> 2024_03_01.01
//	  latest -> 2024_03_01.02
//	  production-runs/
//	    2024_03_01 -> ../2024_03_01.01
//
// Run directories are named YYYY_MM_DD.NN with NN unique per day. They are
// never renamed or removed here.
package rundir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/stagekit/iox"
	"github.com/pithecene-io/stagekit/types"
)

// Clock returns the current time. Tests replace it to pin the date.
var Clock = time.Now

func today() string {
	return Clock().Format(types.DayLayout)
}

// resolve returns the absolute, symlink-free spelling of path.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", types.NewError(types.ErrNotFound, "resolve", abs, err)
		}
		return "", err
	}
	return resolved, nil
}

// Next returns the path of the next unused run directory for today under
// root. The directory is not created.
func Next(root string) (string, error) {
	dir, err := resolve(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", types.Errorf(types.ErrNotFound, "allocate", dir, "not a directory")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	date := today()
	next := nextSequence(date, entries)
	return filepath.Join(dir, fmt.Sprintf("%s.%02d", date, next)), nil
}

// nextSequence returns one past the highest numeric suffix among entries
// named "<date>.<n>". Names with a non-numeric suffix are ignored.
func nextSequence(date string, entries []os.DirEntry) int {
	prefix := date + "."
	highest := 0
	for _, e := range entries {
		suffix, ok := strings.CutPrefix(e.Name(), prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 0 {
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1
}

// Make allocates the next run directory under root and creates it with
// types.DirPerm. The root lock is held across allocation and creation.
func Make(root string) (string, error) {
	dir, err := resolve(root)
	if err != nil {
		return "", err
	}
	var runDir string
	err = withLock(dir, func() error {
		next, err := Next(dir)
		if err != nil {
			return err
		}
		if err := iox.Mkdir(next, types.DirPerm, iox.MkdirOptions{}); err != nil {
			return fmt.Errorf("create run directory: %w", err)
		}
		runDir = next
		return nil
	})
	if err != nil {
		return "", err
	}
	return runDir, nil
}
