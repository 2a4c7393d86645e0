// Package scan walks identity reward history against the daemon and keeps
// per-identity scans mutually exclusive.
package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/logging"
)

// LockInfo is the JSON body of the process lock file
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// ProcessLock is a filesystem singleton guard for the background worker.
// Only one worker per lock path may run at a time; a lock left behind by a
// dead process is detected and cleared.
type ProcessLock struct {
	path string
	info LockInfo
}

// AcquireLock claims the lock file at path. If the file already exists and
// its owner is still alive, an error is returned. A stale lock (owner dead)
// is removed and acquisition retried once.
func AcquireLock(path string) (*ProcessLock, error) {
	hostname, _ := os.Hostname()
	lock := &ProcessLock{
		path: path,
		info: LockInfo{
			PID:       os.Getpid(),
			Hostname:  hostname,
			StartedAt: time.Now().UTC(),
		},
	}

	if err := lock.tryCreate(); err == nil {
		return lock, nil
	} else if !os.IsExist(err) {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	existing, err := readLockInfo(path)
	if err != nil {
		// Unreadable lock file, treat as stale.
		logging.GetGlobalLogger().WithField("path", path).
			Warn("removing unreadable lock file")
	} else if processAlive(existing.PID) {
		return nil, fmt.Errorf("worker already running (pid %d on %s since %s)",
			existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
	} else {
		logging.GetGlobalLogger().
			WithField("path", path).
			WithField("stale_pid", existing.PID).
			Warn("clearing stale lock file")
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale lock file: %w", err)
	}
	if err := lock.tryCreate(); err != nil {
		return nil, fmt.Errorf("failed to re-create lock file: %w", err)
	}
	return lock, nil
}

// Release removes the lock file, but only if this process still owns it
func (l *ProcessLock) Release() error {
	existing, err := readLockInfo(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read lock file on release: %w", err)
	}
	if existing.PID != l.info.PID {
		return fmt.Errorf("lock file owned by pid %d, refusing to remove", existing.PID)
	}
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Info returns the lock owner metadata
func (l *ProcessLock) Info() LockInfo {
	return l.info
}

func (l *ProcessLock) tryCreate() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(l.info); err != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	return nil
}

func readLockInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &info, nil
}

// processAlive probes a pid with signal 0
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
