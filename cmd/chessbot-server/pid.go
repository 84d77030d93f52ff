package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// pidFile is the daemon's PID file, optionally flock'ed so a second
// instance started against the same file refuses to run
type pidFile struct {
	path   string
	file   *os.File
	locked bool
}

func writePIDFile(path string, lock bool) (*pidFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		if lock {
			if err := liveOwner(path); err != nil {
				return nil, err
			}
		}
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}

	p := &pidFile{path: path, file: f}
	if lock {
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return nil, errors.New("another instance holds the PID file lock")
			}
			return nil, fmt.Errorf("lock PID file: %w", err)
		}
		p.locked = true
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		p.Close()
		return nil, fmt.Errorf("write PID: %w", err)
	}
	if err := f.Sync(); err != nil {
		p.Close()
		return nil, fmt.Errorf("sync PID file: %w", err)
	}
	return p, nil
}

// Close unlocks and removes the file
func (p *pidFile) Close() {
	if p.locked {
		syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN)
	}
	p.file.Close()
	os.Remove(p.path)
}

// liveOwner fails unless the PID recorded in path belongs to a dead process.
// A live process that does not hold the lock is still treated as an owner.
func liveOwner(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("corrupted PID file (contains %q)", data)
	}

	proc, _ := os.FindProcess(pid) // never fails on Unix
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return fmt.Errorf("process %d is running but not holding the lock", pid)
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return nil
	default:
		return fmt.Errorf("process %d exists but cannot be signalled: %w", pid, err)
	}
}
