package infra

import (
	"context"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// DefaultTabQueueSize caps pending tab commands.
const DefaultTabQueueSize = 256

// TabCommandQueue implements domain.TabNavigator by queueing commands for the
// browser extension, which drains them via GET /api/tabs/commands. Only the
// latest command per tab is kept; a newer one supersedes what the tab has not
// yet applied.
type TabCommandQueue struct {
	mu      sync.Mutex
	pending []domain.TabCommand
	max     int
	notify  chan struct{}
	now     func() time.Time
}

// NewTabCommandQueue creates a queue holding at most max commands.
func NewTabCommandQueue(max int) *TabCommandQueue {
	if max <= 0 {
		max = DefaultTabQueueSize
	}
	return &TabCommandQueue{
		max:    max,
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Redirect queues a redirect of tabID to target.
func (q *TabCommandQueue) Redirect(ctx context.Context, tabID int, target string) error {
	q.push(domain.TabCommand{TabID: tabID, Kind: domain.TabRedirect, URL: target})
	return nil
}

// Resume queues a navigation of tabID back to url.
func (q *TabCommandQueue) Resume(ctx context.Context, tabID int, url string) error {
	q.push(domain.TabCommand{TabID: tabID, Kind: domain.TabResume, URL: url})
	return nil
}

func (q *TabCommandQueue) push(cmd domain.TabCommand) {
	cmd.At = q.now()

	q.mu.Lock()
	kept := q.pending[:0]
	for _, p := range q.pending {
		if p.TabID != cmd.TabID {
			kept = append(kept, p)
		}
	}
	q.pending = append(kept, cmd)
	if len(q.pending) > q.max {
		q.pending = q.pending[len(q.pending)-q.max:]
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain returns and clears pending commands in arrival order.
func (q *TabCommandQueue) Drain() []domain.TabCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Wait drains, blocking until at least one command is pending or ctx ends.
func (q *TabCommandQueue) Wait(ctx context.Context) []domain.TabCommand {
	for {
		if cmds := q.Drain(); len(cmds) > 0 {
			return cmds
		}
		select {
		case <-ctx.Done():
			return nil
		case <-q.notify:
		}
	}
}

// Ensure TabCommandQueue implements domain.TabNavigator.
var _ domain.TabNavigator = (*TabCommandQueue)(nil)
