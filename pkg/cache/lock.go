// Package cache writes files exactly once, even when several installs (or
// several pix processes) target the same path.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	lockSuffix   = ".lock"
	pollInterval = 50 * time.Millisecond
)

// Lock takes an exclusive lock on target by creating target.lock with the
// owner's pid. A lock left behind by a dead process is removed. While another
// live process holds the lock, Lock polls until it is released or ctx is
// done. The returned function releases the lock.
func Lock(ctx context.Context, target string) (func() error, error) {
	lockFile := target + lockSuffix

	if err := os.MkdirAll(filepath.Dir(lockFile), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	for {
		unlock, err := tryLock(lockFile)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock %s: %w", lockFile, err)
		}

		if stale(lockFile) {
			os.Remove(lockFile)
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func tryLock(lockFile string) (func() error, error) {
	f, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	_, werr := fmt.Fprintf(f, "%d %s", os.Getpid(), time.Now().Format(time.RFC3339))
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(lockFile)
		return nil, fmt.Errorf("write lock %s: %w", lockFile, err)
	}
	return func() error { return os.Remove(lockFile) }, nil
}

// stale reports whether lockFile is unreadable garbage or names a dead
// process. A lock that vanished in the meantime is not stale.
func stale(lockFile string) bool {
	content, err := os.ReadFile(lockFile)
	if err != nil {
		return false
	}
	fields := strings.Fields(string(content))
	if len(fields) == 0 {
		return true
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return true
	}
	return !alive(pid)
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return false
	}
	// EPERM: exists, owned by someone else.
	return true
}
