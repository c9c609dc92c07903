package rundir

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pithecene-io/stagekit/types"
)

// Lock is an exclusive advisory lock on a version root, held through
// flock(2) on the root's .stagekit.lock file. Allocation and promotion take
// it so concurrent stages writing to the same root are serialized.
type Lock struct {
	file *os.File
}

// Acquire blocks until the lock on root is held.
func Acquire(root string) (*Lock, error) {
	lockPath := filepath.Join(root, types.LockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, types.FilePerm)
	if err != nil {
		return nil, fmt.Errorf("rundir lock: open: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rundir lock: flock: %w", err)
	}
	return &Lock{file: f}, nil
}

// Release drops the lock. Safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}

// withLock runs fn while holding the lock on root.
func withLock(root string, fn func() error) (err error) {
	lock, err := Acquire(root)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}
