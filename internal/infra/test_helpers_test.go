package infra

import (
	"os"
	"sync"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// mockProcessChecker is a test double for domain.ProcessChecker
type mockProcessChecker struct {
	mu          sync.Mutex
	runningPIDs map[int]bool
}

func newMockProcessChecker() *mockProcessChecker {
	return &mockProcessChecker{runningPIDs: make(map[int]bool)}
}

func (m *mockProcessChecker) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningPIDs[pid]
}

func (m *mockProcessChecker) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessChecker) SetRunning(pid int, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningPIDs[pid] = running
}

// Ensure mockProcessChecker implements domain.ProcessChecker
var _ domain.ProcessChecker = (*mockProcessChecker)(nil)
