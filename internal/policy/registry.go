package policy

import (
	"fmt"
	"sort"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Registry holds all selectable focus domains.
type Registry struct {
	policies map[string]FocusPolicy
}

// NewRegistry creates a registry with the default domains.
func NewRegistry() *Registry {
	return NewRegistryWithPolicies(WorkPolicy{}, SchoolPolicy{}, PersonalPolicy{})
}

// NewRegistryWithPolicies creates a registry with custom policies.
func NewRegistryWithPolicies(policies ...FocusPolicy) *Registry {
	r := &Registry{
		policies: make(map[string]FocusPolicy),
	}
	for _, p := range policies {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a policy.
func (r *Registry) Register(p FocusPolicy) {
	r.policies[p.ID()] = p
}

// Get returns a policy by ID.
func (r *Registry) Get(id string) (FocusPolicy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// GetAll returns all policies ordered by ID.
func (r *Registry) GetAll() []FocusPolicy {
	result := make([]FocusPolicy, 0, len(r.policies))
	for _, p := range r.policies {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// List returns all policy IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegistryCatalog adapts Registry to implement domain.DomainCatalog.
type RegistryCatalog struct {
	registry *Registry
}

// NewCatalog creates a DomainCatalog backed by the registry.
func NewCatalog(registry *Registry) domain.DomainCatalog {
	return &RegistryCatalog{registry: registry}
}

func (c *RegistryCatalog) GetAll() []domain.FocusDomain {
	policies := c.registry.GetAll()
	result := make([]domain.FocusDomain, len(policies))
	for i, p := range policies {
		result[i] = ToFocusDomain(p)
	}
	return result
}

func (c *RegistryCatalog) GetByID(id string) (*domain.FocusDomain, error) {
	p, ok := c.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDomain, id)
	}
	fd := ToFocusDomain(p)
	return &fd, nil
}

func (c *RegistryCatalog) List() []string {
	return c.registry.List()
}

// Ensure RegistryCatalog implements domain.DomainCatalog.
var _ domain.DomainCatalog = (*RegistryCatalog)(nil)
