package infra

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// ProcessCheckerImpl implements domain.ProcessChecker using gopsutil.
type ProcessCheckerImpl struct{}

// NewProcessChecker creates a new process checker.
func NewProcessChecker() domain.ProcessChecker {
	return &ProcessCheckerImpl{}
}

// IsRunning checks if a PID exists and is not a zombie.
func (pc *ProcessCheckerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// GetCurrentPID returns the current process PID.
func (pc *ProcessCheckerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessCheckerImpl implements domain.ProcessChecker.
var _ domain.ProcessChecker = (*ProcessCheckerImpl)(nil)
