package cache

import (
	"context"
	"fmt"
	"os"
)

const partSuffix = ".part"

// Ensure makes sure target exists. If it does not, write is called under the
// target's lock with a temporary path next to target; on success the
// temporary file is renamed into place, so target is never seen half
// written. created reports whether this call produced the file.
func Ensure(ctx context.Context, target string, write func(tmp string) error) (created bool, err error) {
	if exists(target) {
		return false, nil
	}

	unlock, err := Lock(ctx, target)
	if err != nil {
		return false, err
	}
	defer unlock()

	// Someone else may have finished while we waited.
	if exists(target) {
		return false, nil
	}

	tmp := target + partSuffix
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("rename %s: %w", tmp, err)
	}
	return true, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
