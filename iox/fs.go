// Package iox holds the filesystem primitives run directories are built
// from: exact-mode directories, atomic writes and symlink swaps.
package iox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pithecene-io/stagekit/types"
)

// MkdirOptions controls Mkdir behavior.
type MkdirOptions struct {
	// ExistOK suppresses the error when path already exists as a directory.
	// The mode of an existing directory is never changed.
	ExistOK bool
	// Parents creates missing ancestors, each with the requested mode.
	Parents bool
}

// Mkdir creates a directory with exactly the given mode.
//
// The process umask is sidestepped by applying mode with an explicit chmod
// after creation. With Parents set, every ancestor created along the way
// gets the same mode, unlike os.MkdirAll which leaves parents at the
// umask default.
func Mkdir(path string, mode os.FileMode, opts MkdirOptions) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("mkdir %s: %w", path, fs.ErrExist)
		}
		if opts.ExistOK {
			return nil
		}
		return fmt.Errorf("mkdir %s: %w", path, fs.ErrExist)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	toCreate := []string{path}
	if opts.Parents {
		for p := filepath.Dir(path); ; p = filepath.Dir(p) {
			if _, err := os.Stat(p); err == nil {
				break
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			toCreate = append(toCreate, p)
			if p == filepath.Dir(p) {
				break
			}
		}
	}

	// Create outermost first.
	for i := len(toCreate) - 1; i >= 0; i-- {
		dir := toCreate[i]
		if err := os.Mkdir(dir, mode); err != nil {
			if errors.Is(err, fs.ErrExist) && (i > 0 || opts.ExistOK) {
				continue
			}
			return err
		}
		if err := os.Chmod(dir, mode); err != nil {
			return err
		}
	}
	return nil
}

// MakeDirTree creates path and any missing parents with types.DirPerm.
func MakeDirTree(path string) error {
	return Mkdir(path, types.DirPerm, MkdirOptions{ExistOK: true, Parents: true})
}

// RecursiveSetPermissions normalizes a tree to the permission contract:
// directories get types.DirPerm, everything else types.FilePerm.
// Symlinks are neither followed nor changed.
func RecursiveSetPermissions(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return os.Chmod(path, types.DirPerm)
		}
		return os.Chmod(path, types.FilePerm)
	})
}

// WriteFile writes data to path with types.FilePerm regardless of umask.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, types.FilePerm); err != nil {
		return err
	}
	return os.Chmod(path, types.FilePerm)
}

// ReplaceSymlink points linkPath at target.
//
// An existing symlink is swapped atomically: a new link is created under a
// temporary sibling name and renamed over the old one, so readers never see
// the name missing. An existing directory is the bootstrap placeholder and
// is removed first (it must be empty). Anything else occupying the name is
// left untouched and reported as a types.ErrConflict.
func ReplaceSymlink(linkPath, target string) error {
	info, err := os.Lstat(linkPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return os.Symlink(target, linkPath)
	case err != nil:
		return err
	case info.Mode()&fs.ModeSymlink != 0:
		return swapSymlink(linkPath, target)
	case info.IsDir():
		if err := os.Remove(linkPath); err != nil {
			return err
		}
		return os.Symlink(target, linkPath)
	default:
		return types.NewError(types.ErrConflict, "replace link", linkPath,
			errors.New("not a symlink or a directory"))
	}
}

func swapSymlink(linkPath, target string) error {
	tmp := filepath.Join(filepath.Dir(linkPath),
		"."+filepath.Base(linkPath)+".tmp"+strconv.FormatInt(time.Now().UnixNano(), 36))
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// DiscardClose closes c and drops the error, for deferred closes of
// readers and log files where nothing useful can be done about it.
func DiscardClose(c io.Closer) { _ = c.Close() }
