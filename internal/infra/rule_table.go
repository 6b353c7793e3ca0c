package infra

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// RuleTable is the in-process packet-filter model. It holds the dynamic
// redirect rules the browser extension mirrors from GET /api/rules, and can
// evaluate them itself for proxies and tests.
type RuleTable struct {
	mu       sync.RWMutex
	rules    map[int]domain.RedirectRule
	revision uint64
}

// NewRuleTable creates an empty table.
func NewRuleTable() *RuleTable {
	return &RuleTable{rules: make(map[int]domain.RedirectRule)}
}

// UpdateRules removes removeIDs then adds add, atomically. Any invalid rule
// rejects the whole update and leaves the table untouched.
func (t *RuleTable) UpdateRules(ctx context.Context, removeIDs []int, add []domain.RedirectRule) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[int]domain.RedirectRule, len(t.rules)+len(add))
	for id, r := range t.rules {
		next[id] = r
	}
	for _, id := range removeIDs {
		delete(next, id)
	}
	for _, r := range add {
		if err := validateRule(r); err != nil {
			return err
		}
		if _, exists := next[r.ID]; exists {
			return fmt.Errorf("rule %d: id already in use", r.ID)
		}
		next[r.ID] = r
	}

	t.rules = next
	t.revision++
	return nil
}

// Rules returns installed rules ordered by id.
func (t *RuleTable) Rules(ctx context.Context) ([]domain.RedirectRule, error) {
	rules, _ := t.Snapshot()
	return rules, nil
}

// Snapshot returns the rules and the revision they belong to.
func (t *RuleTable) Snapshot() ([]domain.RedirectRule, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.RedirectRule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, t.revision
}

// Match returns the highest priority rule redirecting rawURL.
func (t *RuleTable) Match(rawURL string) (domain.RedirectRule, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.RedirectRule{}, false
	}
	host := strings.ToLower(u.Hostname())
	if isLoopback(host) {
		return domain.RedirectRule{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var best domain.RedirectRule
	found := false
	for _, r := range t.rules {
		if !ruleMatches(r, host) {
			continue
		}
		if !found || r.Priority > best.Priority || (r.Priority == best.Priority && r.ID < best.ID) {
			best = r
			found = true
		}
	}
	return best, found
}

func ruleMatches(r domain.RedirectRule, host string) bool {
	for _, ex := range r.ExcludedDomains {
		if hostMatches(host, ex) {
			return false
		}
	}
	switch r.Kind {
	case domain.RuleCatchAll:
		return true
	case domain.RuleDomainSet:
		for _, d := range r.Domains {
			if hostMatches(host, d) {
				return true
			}
		}
	}
	return false
}

// hostMatches reports whether host is pattern or a subdomain of it. Patterns
// may carry a port ("localhost:8787"), which is ignored.
func hostMatches(host, pattern string) bool {
	pattern = strings.ToLower(pattern)
	if h, _, err := net.SplitHostPort(pattern); err == nil {
		pattern = h
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validateRule(r domain.RedirectRule) error {
	if r.ID <= 0 {
		return fmt.Errorf("rule %d: id must be positive", r.ID)
	}
	if r.Priority < 1 {
		return fmt.Errorf("rule %d: priority must be at least 1", r.ID)
	}
	target, err := url.Parse(r.RedirectURL)
	if err != nil || !target.IsAbs() {
		return fmt.Errorf("rule %d: redirect target %q is not an absolute url", r.ID, r.RedirectURL)
	}
	switch r.Kind {
	case domain.RuleCatchAll:
		if len(r.Domains) > 0 {
			return fmt.Errorf("rule %d: catch-all rule must not list domains", r.ID)
		}
	case domain.RuleDomainSet:
		if len(r.Domains) == 0 {
			return fmt.Errorf("rule %d: domain set is empty", r.ID)
		}
		for _, d := range r.Domains {
			if !validDomain(d) {
				return fmt.Errorf("rule %d: malformed domain %q", r.ID, d)
			}
		}
	default:
		return fmt.Errorf("rule %d: unknown kind %q", r.ID, r.Kind)
	}
	return nil
}

func validDomain(d string) bool {
	if d == "" || len(d) > 253 || strings.HasPrefix(d, ".") || strings.HasSuffix(d, ".") {
		return false
	}
	for _, c := range d {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

// Ensure RuleTable implements domain.RuleRuntime.
var _ domain.RuleRuntime = (*RuleTable)(nil)
