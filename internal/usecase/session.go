package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// SessionManager owns session, window and cache state. Every transition runs
// under mu, and every rule publish is issued while mu is held, so a rule is
// never computed from state older than the last committed transition.
type SessionManager struct {
	mu      sync.Mutex
	state   domain.SessionState
	session domain.Session
	window  *domain.BlockWindow
	lastErr string

	cache   *ClassificationCache
	rules   *RuleSynchronizer
	store   domain.StateStore
	catalog domain.DomainCatalog
	clock   domain.Clock
	logger  *zap.Logger
	newID   func() string
}

// NewSessionManager creates a manager in NoSession. Call Boot before use.
func NewSessionManager(
	cache *ClassificationCache,
	rules *RuleSynchronizer,
	store domain.StateStore,
	catalog domain.DomainCatalog,
	clock domain.Clock,
	logger *zap.Logger,
) *SessionManager {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &SessionManager{
		state:   domain.StateNoSession,
		cache:   cache,
		rules:   rules,
		store:   store,
		catalog: catalog,
		clock:   clock,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Boot installs the catch-all and reads persisted records. With resume set and
// an unexpired stored window the ActiveWindow is restored; otherwise stored
// records are discarded.
func (m *SessionManager) Boot(ctx context.Context, resume bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rules.ApplyDefaultBlock(ctx); err != nil {
		return fmt.Errorf("apply default block: %w", err)
	}

	sess, block, err := m.readRecords()
	if err != nil {
		m.logger.Warn("failed to read persisted session", zap.Error(err))
	}

	now := m.clock.Now()
	if resume && sess != nil && sess.Active && block != nil && now.Before(time.UnixMilli(block.EndTime)) {
		m.session = domain.Session{
			ID:        m.newID(),
			Domain:    sess.Domain,
			StartedAt: time.UnixMilli(sess.StartTime),
			Active:    true,
		}
		m.window = &domain.BlockWindow{
			EndTime:             time.UnixMilli(block.EndTime),
			BlockedDestinations: domain.NewDomainSet(block.BlockedDomains...),
		}
		m.state = domain.StateActiveWindow
		// Verdicts are not persisted; restored domains get their false entries back.
		m.cache.Clear()
		for d := range m.window.BlockedDestinations {
			m.cache.Record(d, m.session.Domain, false)
		}
		if err := m.publishWindowLocked(ctx); err != nil {
			m.resetLocked(ctx, "resume failed")
			return err
		}
		m.persistSessionLocked()
		m.logger.Info("resumed session window",
			zap.String("domain", m.session.Domain),
			zap.Time("end_time", m.window.EndTime),
			zap.Int("blocked", len(m.window.BlockedDestinations)))
		return nil
	}

	if sess != nil || block != nil {
		m.logger.Info("discarding persisted session on boot")
		if err := m.store.Delete(domain.RecordSessionData, domain.RecordBlockData); err != nil {
			m.logger.Warn("failed to remove persisted session", zap.Error(err))
		}
	}
	return nil
}

// SetDomain starts contextualization for a focus domain. Access stays fully
// blocked until CompleteContextualization.
func (m *SessionManager) SetDomain(ctx context.Context, focusDomain string) error {
	if m.catalog != nil {
		if _, err := m.catalog.GetByID(focusDomain); err != nil {
			return fmt.Errorf("%w: %s", domain.ErrUnknownDomain, focusDomain)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.StateActiveWindow {
		return fmt.Errorf("%w: session window already active", domain.ErrInvalidTransition)
	}

	m.cache.Clear()
	m.window = nil
	m.lastErr = ""
	m.session = domain.Session{
		ID:        m.newID(),
		Domain:    focusDomain,
		StartedAt: m.clock.Now(),
		Active:    true,
	}
	m.state = domain.StateContextualizing

	if err := m.rules.ApplyDefaultBlock(ctx); err != nil {
		// The previous rule (catch-all outside a window) is still in place.
		m.logger.Error("failed to reapply default block", zap.Error(err))
	}
	m.persistSessionLocked()

	m.logger.Info("focus domain chosen",
		zap.String("domain", focusDomain),
		zap.String("session_id", m.session.ID))
	return nil
}

// CompleteContextualization opens the block window for duration.
func (m *SessionManager) CompleteContextualization(ctx context.Context, answers map[string]string, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", domain.ErrInvalidTransition)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateContextualizing {
		return fmt.Errorf("%w: no session is contextualizing", domain.ErrInvalidTransition)
	}

	m.session.Context = copyAnswers(answers)
	m.window = &domain.BlockWindow{
		EndTime:             m.clock.Now().Add(duration),
		BlockedDestinations: domain.NewDomainSet(),
	}

	if err := m.publishWindowLocked(ctx); err != nil {
		// Catch-all is still installed; stay in Contextualizing.
		m.window = nil
		m.lastErr = err.Error()
		return err
	}

	m.state = domain.StateActiveWindow
	m.lastErr = ""
	m.persistSessionLocked()

	m.logger.Info("session window opened",
		zap.String("domain", m.session.Domain),
		zap.Duration("duration", duration),
		zap.Time("end_time", m.window.EndTime))
	return nil
}

// End tears the session down on user request.
func (m *SessionManager) End(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.StateNoSession {
		return nil
	}
	m.resetLocked(ctx, "ended")
	return nil
}

// Expire tears down the window when now has reached its end time. It reports
// whether a teardown happened. Only the sweeper calls this.
func (m *SessionManager) Expire(ctx context.Context, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateActiveWindow || m.window == nil {
		return false, nil
	}
	if now.Before(m.window.EndTime) {
		return false, nil
	}
	m.resetLocked(ctx, "expired")
	return true, nil
}

// ApplyVerdict folds a classification result into the session. Results for a
// session other than the current one are discarded (applied=false). The first
// recorded verdict for a destination wins, so a later conflicting result
// follows the cache. A destination the runtime rejects is taken back out of
// the window and the previous rule is restored.
func (m *SessionManager) ApplyVerdict(ctx context.Context, sessionID, destination string, productive bool) (applied bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateActiveWindow || m.session.ID != sessionID || m.window == nil {
		m.logger.Debug("discarding stale verdict",
			zap.String("destination", destination),
			zap.String("session_id", sessionID))
		return false, nil
	}

	if !m.cache.Record(destination, m.session.Domain, productive) {
		if recorded, ok := m.cache.Lookup(destination, m.session.Domain); ok {
			productive = recorded
		}
	}
	if productive {
		return true, nil
	}

	if !m.window.BlockedDestinations.Add(destination) {
		return true, nil
	}

	if err := m.publishWindowLocked(ctx); err != nil {
		delete(m.window.BlockedDestinations, destination)
		m.logger.Error("runtime rejected blocked destination, restoring previous rule",
			zap.String("destination", destination),
			zap.Error(err))
		if restoreErr := m.publishWindowLocked(ctx); restoreErr != nil {
			m.logger.Error("failed to restore window rule", zap.Error(restoreErr))
		}
		return true, err
	}

	m.logger.Info("destination blocked",
		zap.String("destination", destination),
		zap.String("domain", m.session.Domain))
	return true, nil
}

// NoteContextError records a recoverable contextualization failure for the UI.
func (m *SessionManager) NoteContextError(sessionID string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateContextualizing || m.session.ID != sessionID {
		return
	}
	m.lastErr = cause.Error()
}

// CheckBlock reports whether the catch-all block applies right now.
func (m *SessionManager) CheckBlock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != domain.StateActiveWindow
}

// Snapshot returns a consistent copy of the state.
func (m *SessionManager) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := domain.Snapshot{
		State:     m.state,
		LastError: m.lastErr,
	}
	if m.state == domain.StateNoSession {
		return snap
	}
	snap.SessionID = m.session.ID
	snap.Domain = m.session.Domain
	snap.StartedAt = m.session.StartedAt
	snap.Context = copyAnswers(m.session.Context)
	if m.window != nil {
		snap.EndTime = m.window.EndTime
		snap.BlockedDestinations = m.window.BlockedDestinations.Sorted()
	}
	return snap
}

func (m *SessionManager) publishWindowLocked(ctx context.Context) error {
	return m.rules.Publish(ctx, domain.BlockState{
		Shape:   domain.DomainSetShape(m.window.BlockedDestinations.Sorted()),
		EndTime: m.window.EndTime,
	})
}

// resetLocked returns to NoSession and re-applies the catch-all.
func (m *SessionManager) resetLocked(ctx context.Context, cause string) {
	domainName := m.session.Domain
	m.state = domain.StateNoSession
	m.session = domain.Session{}
	m.window = nil
	m.lastErr = ""
	m.cache.Clear()

	if err := m.rules.ApplyDefaultBlock(ctx); err != nil {
		m.logger.Error("failed to restore default block", zap.Error(err))
	}
	if err := m.store.Delete(domain.RecordSessionData, domain.RecordBlockData); err != nil {
		m.logger.Warn("failed to remove persisted session", zap.Error(err))
	}

	m.logger.Info("session reset",
		zap.String("domain", domainName),
		zap.String("cause", cause))
}

func (m *SessionManager) persistSessionLocked() {
	record := domain.SessionRecord{
		Active:    m.session.Active,
		Domain:    m.session.Domain,
		StartTime: m.session.StartedAt.UnixMilli(),
		SessionID: m.session.ID,
	}
	data, err := json.Marshal(record)
	if err != nil {
		m.logger.Warn("failed to encode sessionData", zap.Error(err))
		return
	}
	if err := m.store.Put(domain.RecordSessionData, data); err != nil {
		m.logger.Warn("failed to persist sessionData", zap.Error(err))
	}
}

func (m *SessionManager) readRecords() (*domain.SessionRecord, *domain.BlockRecord, error) {
	var sess *domain.SessionRecord
	var block *domain.BlockRecord

	data, found, err := m.store.Get(domain.RecordSessionData)
	if err != nil {
		return nil, nil, err
	}
	if found {
		sess = &domain.SessionRecord{}
		if err := json.Unmarshal(data, sess); err != nil {
			return nil, nil, fmt.Errorf("decode sessionData: %w", err)
		}
	}

	data, found, err = m.store.Get(domain.RecordBlockData)
	if err != nil {
		return sess, nil, err
	}
	if found {
		block = &domain.BlockRecord{}
		if err := json.Unmarshal(data, block); err != nil {
			return sess, nil, fmt.Errorf("decode blockData: %w", err)
		}
	}
	return sess, block, nil
}

func copyAnswers(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
