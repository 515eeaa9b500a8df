package sweep

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrOutputBusy is returned when another sweep holds the output directory.
var ErrOutputBusy = errors.New("output directory is locked by another sweep")

const lockFileName = ".cutscan.lock"

// DirLock is an exclusive advisory lock on a runner output directory.
type DirLock struct {
	file *os.File
}

// TryLockDir locks <dir>/.cutscan.lock without blocking.
func TryLockDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", dir, ErrOutputBusy)
		}
		return nil, fmt.Errorf("lock %s: %w", lockFileName, err)
	}
	return &DirLock{file: file}, nil
}

// Release releases the lock.
func (l *DirLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
