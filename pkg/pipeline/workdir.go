package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrWorkdirBusy is returned when another pipeline holds the working directory lock.
var ErrWorkdirBusy = errors.New("working directory is in use")

const lockSuffix = ".lock"

// Workdir is a private working directory owned by one file's pipeline. A lock
// file next to it marks it as in use.
type Workdir struct {
	Path string
	lock *flock.Flock
	keep bool
}

// AcquireWorkdir creates <root>/<name>, cleared and locked. The caller must Release it.
func AcquireWorkdir(root, name string, keep bool) (*Workdir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work root: %w", err)
	}

	path := filepath.Join(root, name)
	lock := flock.New(path + lockSuffix)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock working directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkdirBusy, path)
	}

	if err := os.RemoveAll(path); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to clear working directory: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	return &Workdir{Path: path, lock: lock, keep: keep}, nil
}

// Release removes the directory and its lock file, unless the directory is kept.
func (w *Workdir) Release() error {
	var errs []error
	if !w.keep {
		if err := os.RemoveAll(w.Path); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove working directory: %w", err))
		}
	}
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("failed to unlock working directory: %w", err))
	}
	if !w.keep {
		if err := os.Remove(w.lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove lock file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// CleanStale removes working directories under root whose lock is not held,
// together with orphaned lock files. It returns the removed paths.
func CleanStale(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read work root: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(root, name)

		if !entry.IsDir() {
			// Lock files whose directory is gone
			if strings.HasSuffix(name, lockSuffix) {
				dir := strings.TrimSuffix(path, lockSuffix)
				if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
					if ok, _ := tryRemoveLock(path); ok {
						removed = append(removed, path)
					}
				}
			}
			continue
		}

		lock := flock.New(path + lockSuffix)
		ok, err := lock.TryLock()
		if err != nil {
			return removed, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if !ok {
			continue
		}

		err = os.RemoveAll(path)
		lock.Unlock()
		os.Remove(lock.Path())
		if err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

func tryRemoveLock(path string) (bool, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil || !ok {
		return false, err
	}
	lock.Unlock()
	return true, os.Remove(path)
}

// copyFile copies src into a new file at dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
