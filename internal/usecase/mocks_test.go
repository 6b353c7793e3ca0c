package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// mockStore implements domain.StateStore for testing
type mockStore struct {
	mu      sync.Mutex
	records map[string][]byte
	putErr  error
	getErr  error
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string][]byte)}
}

func (m *mockStore) Get(name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.records[name]
	return v, ok, nil
}

func (m *mockStore) Put(name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.records[name] = append([]byte(nil), value...)
	return nil
}

func (m *mockStore) Delete(names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		delete(m.records, n)
	}
	return nil
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[name]
	return ok
}

// mockRuntime implements domain.RuleRuntime for testing
type mockRuntime struct {
	mu      sync.Mutex
	rules   map[int]domain.RedirectRule
	updates int
	failOn  func(add []domain.RedirectRule) error
}

func newMockRuntime() *mockRuntime {
	return &mockRuntime{rules: make(map[int]domain.RedirectRule)}
}

func (m *mockRuntime) UpdateRules(ctx context.Context, removeIDs []int, add []domain.RedirectRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		if err := m.failOn(add); err != nil {
			return err
		}
	}
	m.updates++
	for _, id := range removeIDs {
		delete(m.rules, id)
	}
	for _, r := range add {
		m.rules[r.ID] = r
	}
	return nil
}

func (m *mockRuntime) Rules(ctx context.Context) ([]domain.RedirectRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RedirectRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRuntime) rule() (domain.RedirectRule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[BlockRuleID]
	return r, ok
}

// mockClock implements domain.Clock for testing
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockClassifier implements domain.Classifier for testing
type mockClassifier struct {
	mu       sync.Mutex
	fn       func(ctx context.Context, req domain.ClassifyRequest) (bool, error)
	requests []domain.ClassifyRequest
}

func (m *mockClassifier) Classify(ctx context.Context, req domain.ClassifyRequest) (bool, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return true, nil
	}
	return fn(ctx, req)
}

func (m *mockClassifier) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mockTabs implements domain.TabNavigator for testing
type mockTabs struct {
	mu       sync.Mutex
	commands []domain.TabCommand
}

func (m *mockTabs) Redirect(ctx context.Context, tabID int, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, domain.TabCommand{TabID: tabID, Kind: domain.TabRedirect, URL: target})
	return nil
}

func (m *mockTabs) Resume(ctx context.Context, tabID int, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, domain.TabCommand{TabID: tabID, Kind: domain.TabResume, URL: url})
	return nil
}

func (m *mockTabs) all() []domain.TabCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TabCommand(nil), m.commands...)
}

// mockQuestions implements domain.QuestionService for testing
type mockQuestions struct {
	mu            sync.Mutex
	questionsErr  []error // Consumed one per GetQuestions call
	questions     []string
	getCalls      int
	contextErr    error
	contextualize []map[string]string
}

func (m *mockQuestions) GetQuestions(ctx context.Context, focusDomain string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if len(m.questionsErr) > 0 {
		err := m.questionsErr[0]
		m.questionsErr = m.questionsErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.questions, nil
}

func (m *mockQuestions) NextQuestion(ctx context.Context, focusDomain string, answers map[string]string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.questions {
		if _, ok := answers[q]; !ok {
			return q, false, nil
		}
	}
	return "", true, nil
}

func (m *mockQuestions) Contextualize(ctx context.Context, focusDomain string, answers map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contextErr != nil {
		return m.contextErr
	}
	m.contextualize = append(m.contextualize, answers)
	return nil
}

// mockCatalog implements domain.DomainCatalog for testing
type mockCatalog struct {
	domains []domain.FocusDomain
}

func newMockCatalog(ids ...string) *mockCatalog {
	c := &mockCatalog{}
	for _, id := range ids {
		c.domains = append(c.domains, domain.FocusDomain{ID: id, Name: id, DefaultDuration: 30 * time.Minute})
	}
	return c
}

func (m *mockCatalog) GetAll() []domain.FocusDomain { return m.domains }

func (m *mockCatalog) GetByID(id string) (*domain.FocusDomain, error) {
	for _, d := range m.domains {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDomain, id)
}

func (m *mockCatalog) List() []string {
	ids := make([]string, len(m.domains))
	for i, d := range m.domains {
		ids[i] = d.ID
	}
	return ids
}

var errRuntimeRejected = errors.New("runtime rejected rule")

const testInterstitial = "http://127.0.0.1:8787/interstitial"

// harness wires real usecase components over the mocks.
type harness struct {
	store      *mockStore
	runtime    *mockRuntime
	clock      *mockClock
	classifier *mockClassifier
	tabs       *mockTabs
	questions  *mockQuestions
	cache      *ClassificationCache
	rules      *RuleSynchronizer
	sessions   *SessionManager
	dispatcher *NavigationDispatcher
}

func newHarness() *harness {
	h := &harness{
		store:      newMockStore(),
		runtime:    newMockRuntime(),
		clock:      newMockClock(),
		classifier: &mockClassifier{},
		tabs:       &mockTabs{},
		questions:  &mockQuestions{},
		cache:      NewClassificationCache(),
	}
	logger := zap.NewNop()
	h.rules = NewRuleSynchronizer(SynchronizerConfig{
		InterstitialURL: testInterstitial,
		Exclusions:      []string{"127.0.0.1:8787"},
	}, h.runtime, h.store, logger)
	h.sessions = NewSessionManager(h.cache, h.rules, h.store, newMockCatalog("work", "school"), h.clock, logger)
	h.dispatcher = NewNavigationDispatcher(DispatcherConfig{
		InterstitialURL: testInterstitial,
		SelfOrigins:     []string{"http://localhost:5000"},
		ClassifyTimeout: time.Second,
	}, h.sessions, h.cache, h.classifier, h.tabs, logger)
	return h
}

// activate boots and opens a window for the work domain.
func (h *harness) activate(ctx context.Context, duration time.Duration) error {
	if err := h.sessions.Boot(ctx, false); err != nil {
		return err
	}
	if err := h.sessions.SetDomain(ctx, "work"); err != nil {
		return err
	}
	return h.sessions.CompleteContextualization(ctx, map[string]string{"task": "report"}, duration)
}
