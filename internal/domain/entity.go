// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"sort"
	"time"
)

// SessionState is the lifecycle position of the single focus session.
type SessionState string

const (
	StateNoSession       SessionState = "no_session"
	StateContextualizing SessionState = "contextualizing"
	StateActiveWindow    SessionState = "active_window"
)

// Reason is the code carried by the interstitial URL.
type Reason string

const (
	ReasonAnalyzing Reason = "analyzing"
	ReasonBlocked   Reason = "blocked"
	ReasonNoSession Reason = "no-session"
)

// Session is the active productivity context.
type Session struct {
	ID        string // Generation token, changes on every setDomain
	Domain    string
	StartedAt time.Time
	Active    bool
	Context   map[string]string // Answers collected during contextualization
}

// DomainSet is a set of destination domains.
type DomainSet map[string]struct{}

// NewDomainSet builds a set from a list, skipping empty entries.
func NewDomainSet(domains ...string) DomainSet {
	s := make(DomainSet, len(domains))
	for _, d := range domains {
		if d != "" {
			s[d] = struct{}{}
		}
	}
	return s
}

// Add inserts d and reports whether the set grew.
func (s DomainSet) Add(d string) bool {
	if _, ok := s[d]; ok {
		return false
	}
	s[d] = struct{}{}
	return true
}

// Has reports membership.
func (s DomainSet) Has(d string) bool {
	_, ok := s[d]
	return ok
}

// Sorted returns the members in lexical order.
func (s DomainSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// BlockWindow is the time-bounded period of destination-level blocking.
// BlockedDestinations only grows while the window lives.
type BlockWindow struct {
	EndTime             time.Time
	BlockedDestinations DomainSet
}

// RuleKind tags the two shapes of the redirect rule.
type RuleKind string

const (
	RuleCatchAll  RuleKind = "catch_all"
	RuleDomainSet RuleKind = "domain_set"
)

// RuleShape is what the synchronizer publishes: CatchAll, or DomainSet(domains).
type RuleShape struct {
	Kind    RuleKind
	Domains []string
}

// CatchAllShape is the default-deny shape used whenever no window is active.
func CatchAllShape() RuleShape {
	return RuleShape{Kind: RuleCatchAll}
}

// DomainSetShape blocks exactly the given domains.
func DomainSetShape(domains []string) RuleShape {
	return RuleShape{Kind: RuleDomainSet, Domains: NewDomainSet(domains...).Sorted()}
}

// BlockState is the full input of one publish: the shape plus the window end.
type BlockState struct {
	Shape   RuleShape
	EndTime time.Time // Zero for CatchAll
}

// RedirectRule is the single rule description installed into the runtime's
// packet filter.
type RedirectRule struct {
	ID              int      `json:"id"`
	Priority        int      `json:"priority"`
	Kind            RuleKind `json:"kind"`
	Domains         []string `json:"domains,omitempty"` // Empty for catch_all
	RedirectURL     string   `json:"redirect_url"`
	ExcludedDomains []string `json:"excluded_domains,omitempty"`
}

// NavAction is what the dispatcher decided for a navigation.
type NavAction string

const (
	NavAllow    NavAction = "allow"
	NavRedirect NavAction = "redirect"
	NavIgnore   NavAction = "ignore"
)

// NavigationDecision is the outcome of one OnNavigate call.
type NavigationDecision struct {
	TabID       int
	URL         string
	Domain      string
	Action      NavAction
	Reason      Reason
	RedirectURL string
	Cached      bool
	Err         error // Set when the decision came from a failure path
}

// Snapshot is a consistent read of the session manager state.
type Snapshot struct {
	State               SessionState      `json:"state"`
	SessionID           string            `json:"session_id,omitempty"`
	Domain              string            `json:"domain,omitempty"`
	StartedAt           time.Time         `json:"started_at,omitempty"`
	EndTime             time.Time         `json:"end_time,omitempty"`
	BlockedDestinations []string          `json:"blocked_destinations,omitempty"`
	Context             map[string]string `json:"context,omitempty"`
	LastError           string            `json:"last_error,omitempty"`
}

// Persisted record names.
const (
	RecordSessionData = "sessionData"
	RecordBlockData   = "blockData"
)

// SessionRecord is the persisted sessionData layout.
type SessionRecord struct {
	Active    bool   `json:"active"`
	Domain    string `json:"domain"`
	StartTime int64  `json:"startTime"` // Unix millis
	SessionID string `json:"sessionId,omitempty"`
}

// BlockRecord is the persisted blockData layout.
type BlockRecord struct {
	EndTime        int64    `json:"endTime"` // Unix millis
	BlockedDomains []string `json:"blockedDomains"`
}

// TabCommandKind says what the UI layer should do with a tab.
type TabCommandKind string

const (
	TabRedirect TabCommandKind = "redirect"
	TabResume   TabCommandKind = "resume"
)

// TabCommand is queued for the browser extension to apply.
type TabCommand struct {
	TabID int            `json:"tab_id"`
	Kind  TabCommandKind `json:"kind"`
	URL   string         `json:"url"`
	At    time.Time      `json:"at"`
}

// FocusDomain is a selectable session context (work, school, ...).
type FocusDomain struct {
	ID              string
	Name            string
	Description     string
	DefaultDuration time.Duration
}
