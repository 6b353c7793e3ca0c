package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	// BlockRuleID is the single rule slot owned by the synchronizer.
	BlockRuleID = 1

	// BlockRulePriority is the priority of the slot.
	BlockRulePriority = 1
)

// SynchronizerConfig holds rule construction settings.
type SynchronizerConfig struct {
	InterstitialURL string   // Base URL of the interstitial page
	Exclusions      []string // Hosts never redirected (loopback, self, services)
}

// RuleSynchronizer owns the single active redirect rule and mirrors it to
// durable storage.
type RuleSynchronizer struct {
	mu      sync.Mutex
	config  SynchronizerConfig
	runtime domain.RuleRuntime
	store   domain.StateStore
	current *domain.BlockState
	logger  *zap.Logger
}

// NewRuleSynchronizer creates a synchronizer for the given runtime.
func NewRuleSynchronizer(
	config SynchronizerConfig,
	runtime domain.RuleRuntime,
	store domain.StateStore,
	logger *zap.Logger,
) *RuleSynchronizer {
	return &RuleSynchronizer{
		config:  config,
		runtime: runtime,
		store:   store,
		logger:  logger,
	}
}

// InterstitialURL builds the interstitial address for a reason code.
func InterstitialURL(base string, reason domain.Reason) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?reason=" + url.QueryEscape(string(reason))
	}
	q := u.Query()
	q.Set("reason", string(reason))
	u.RawQuery = q.Encode()
	return u.String()
}

// BuildRule derives the rule for a shape. An empty DomainSet yields no rule.
func (s *RuleSynchronizer) BuildRule(shape domain.RuleShape) (domain.RedirectRule, bool) {
	rule := domain.RedirectRule{
		ID:              BlockRuleID,
		Priority:        BlockRulePriority,
		Kind:            shape.Kind,
		ExcludedDomains: append([]string(nil), s.config.Exclusions...),
	}
	switch shape.Kind {
	case domain.RuleCatchAll:
		rule.RedirectURL = InterstitialURL(s.config.InterstitialURL, domain.ReasonNoSession)
	case domain.RuleDomainSet:
		if len(shape.Domains) == 0 {
			return domain.RedirectRule{}, false
		}
		rule.Domains = append([]string(nil), shape.Domains...)
		rule.RedirectURL = InterstitialURL(s.config.InterstitialURL, domain.ReasonBlocked)
	}
	return rule, true
}

// Publish replaces the rule slot with the rule derived from state
// (remove-then-add in one runtime update). On rejection the previous rule
// stays; if the slot would be left empty the catch-all is installed instead.
func (s *RuleSynchronizer) Publish(ctx context.Context, state domain.BlockState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishLocked(ctx, state)
}

// ApplyDefaultBlock installs the catch-all redirect.
func (s *RuleSynchronizer) ApplyDefaultBlock(ctx context.Context) error {
	return s.Publish(ctx, domain.BlockState{Shape: domain.CatchAllShape()})
}

// ClearDefaultBlock removes the catch-all without opening a window. It is a
// no-op when the slot holds a domain-set rule. Opening a window does not need
// it: publishing the window's empty DomainSet clears the slot and also records
// the window end in blockData.
func (s *RuleSynchronizer) ClearDefaultBlock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Shape.Kind != domain.RuleCatchAll {
		return nil
	}
	if err := s.runtime.UpdateRules(ctx, []int{BlockRuleID}, nil); err != nil {
		s.logger.Error("failed to clear default block, keeping catch-all", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrRuleSync, err)
	}
	s.current = &domain.BlockState{Shape: domain.DomainSetShape(nil)}
	s.persistLocked(*s.current)
	return nil
}

// Current returns the last successfully published state.
func (s *RuleSynchronizer) Current() (domain.BlockState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.BlockState{}, false
	}
	return *s.current, true
}

func (s *RuleSynchronizer) publishLocked(ctx context.Context, state domain.BlockState) error {
	var add []domain.RedirectRule
	if rule, ok := s.BuildRule(state.Shape); ok {
		add = append(add, rule)
	}

	if err := s.runtime.UpdateRules(ctx, []int{BlockRuleID}, add); err != nil {
		s.logger.Error("runtime rejected rule update",
			zap.String("kind", string(state.Shape.Kind)),
			zap.Strings("domains", state.Shape.Domains),
			zap.Error(err))
		s.fallbackLocked(ctx)
		return fmt.Errorf("%w: %v", domain.ErrRuleSync, err)
	}

	published := state
	published.Shape.Domains = append([]string(nil), state.Shape.Domains...)
	s.current = &published

	s.logger.Debug("rule published",
		zap.String("kind", string(state.Shape.Kind)),
		zap.Int("domains", len(state.Shape.Domains)))

	s.persistLocked(state)
	return nil
}

// fallbackLocked installs the catch-all when the slot ended up empty.
func (s *RuleSynchronizer) fallbackLocked(ctx context.Context) {
	rules, err := s.runtime.Rules(ctx)
	if err == nil {
		for _, r := range rules {
			if r.ID == BlockRuleID {
				return
			}
		}
	}

	catchAll, _ := s.BuildRule(domain.CatchAllShape())
	if err := s.runtime.UpdateRules(ctx, []int{BlockRuleID}, []domain.RedirectRule{catchAll}); err != nil {
		s.logger.Error("catch-all fallback failed", zap.Error(err))
		return
	}
	s.current = &domain.BlockState{Shape: domain.CatchAllShape()}
	s.logger.Warn("installed catch-all after failed rule update")
}

// persistLocked mirrors the block state into blockData. States without a
// window end (catch-all, cleared slot) remove the record.
func (s *RuleSynchronizer) persistLocked(state domain.BlockState) {
	if s.store == nil {
		return
	}

	if state.Shape.Kind == domain.RuleCatchAll || state.EndTime.IsZero() {
		if err := s.store.Delete(domain.RecordBlockData); err != nil {
			s.logger.Warn("failed to remove blockData", zap.Error(err))
		}
		return
	}

	record := domain.BlockRecord{
		EndTime:        state.EndTime.UnixMilli(),
		BlockedDomains: append([]string{}, state.Shape.Domains...),
	}
	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("failed to encode blockData", zap.Error(err))
		return
	}
	if err := s.store.Put(domain.RecordBlockData, data); err != nil {
		s.logger.Warn("failed to persist blockData", zap.Error(err))
	}
}
