package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// ErrAlreadyRunning is returned by Acquire when a live daemon holds the file.
var ErrAlreadyRunning = errors.New("daemon already running")

// DaemonInfo is what the running daemon advertises about itself.
type DaemonInfo struct {
	PID        int    `json:"pid"`
	Listen     string `json:"listen"`
	AppVersion string `json:"app_version,omitempty"`
	StartedAt  int64  `json:"started_at"`
}

// PIDFile records the running daemon for `webmon status` and `webmon start`.
type PIDFile struct {
	path      string
	processes domain.ProcessChecker
}

// NewPIDFile creates a pid file handle.
func NewPIDFile(path string, pc domain.ProcessChecker) *PIDFile {
	return &PIDFile{path: path, processes: pc}
}

// Path returns the pid file location.
func (f *PIDFile) Path() string {
	return f.path
}

// Acquire registers info unless another live daemon is registered.
func (f *PIDFile) Acquire(info DaemonInfo) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}

	// Lock so two daemons starting together cannot both win
	lockFile, err := os.OpenFile(f.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	existing, _ := f.Read()
	if existing != nil && existing.PID != info.PID && f.processes.IsRunning(existing.PID) {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, existing.PID)
	}

	if info.StartedAt == 0 {
		info.StartedAt = time.Now().Unix()
	}
	return f.atomicWrite(info)
}

// Read returns the registered daemon, or nil if none.
func (f *PIDFile) Read() (*DaemonInfo, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var info DaemonInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Alive returns the registered daemon if its process is running.
func (f *PIDFile) Alive() (*DaemonInfo, bool) {
	info, err := f.Read()
	if err != nil || info == nil {
		return nil, false
	}
	return info, f.processes.IsRunning(info.PID)
}

// Release removes the file if it still belongs to pid.
func (f *PIDFile) Release(pid int) error {
	info, err := f.Read()
	if err != nil || info == nil || info.PID != pid {
		return err
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes the file atomically (write + rename).
func (f *PIDFile) atomicWrite(info DaemonInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", f.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
