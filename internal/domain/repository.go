package domain

import (
	"context"
	"time"
)

// ClassifyRequest is the payload sent to the Classifier Service.
type ClassifyRequest struct {
	URL     string
	Domain  string // Session focus domain, not the destination
	Context map[string]string
}

// Classifier returns a productivity verdict for a destination.
// Implementation: HTTP client for POST /analyze.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (productive bool, err error)
}

// QuestionService supplies contextualization questions for a focus domain.
type QuestionService interface {
	// GetQuestions returns the full question list. A 403 maps to ErrForbidden.
	GetQuestions(ctx context.Context, domain string) ([]string, error)

	// NextQuestion returns the next question, or done=true when enough context exists.
	NextQuestion(ctx context.Context, domain string, answers map[string]string) (question string, done bool, err error)

	// Contextualize submits the collected answers.
	Contextualize(ctx context.Context, domain string, answers map[string]string) error
}

// StateStore is the durable key-value store for sessionData and blockData.
// Implementation: SQLCipher encrypted database.
type StateStore interface {
	// Get returns the raw record. found is false when the record does not exist.
	Get(name string) (value []byte, found bool, err error)

	// Put creates or replaces a record.
	Put(name string, value []byte) error

	// Delete removes records; missing names are ignored.
	Delete(names ...string) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// RuleRuntime is the packet-filtering layer that enforces redirect rules.
type RuleRuntime interface {
	// UpdateRules removes then adds in one atomic step. On error nothing changes.
	UpdateRules(ctx context.Context, removeIDs []int, add []RedirectRule) error

	// Rules returns the currently installed rules.
	Rules(ctx context.Context) ([]RedirectRule, error)
}

// TabNavigator moves browser tabs. Implemented by the UI bridge.
type TabNavigator interface {
	// Redirect sends the tab to target (usually the interstitial).
	Redirect(ctx context.Context, tabID int, target string) error

	// Resume lets the tab continue to its original destination.
	Resume(ctx context.Context, tabID int, url string) error
}

// Clock abstracts time for the sweeper and session manager.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ProcessChecker reports whether a pid is alive.
// Implementation: uses gopsutil for cross-platform support.
type ProcessChecker interface {
	IsRunning(pid int) bool
	GetCurrentPID() int
}

// DomainCatalog lists the focus domains a session may be started for.
type DomainCatalog interface {
	GetAll() []FocusDomain
	GetByID(id string) (*FocusDomain, error)
	List() []string
}
