// Package policy implements the Strategy pattern for focus domains.
// Each domain (work, school, personal) defines how a session for it starts.
package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// DefaultSessionDuration is used when the UI does not ask for a duration.
const DefaultSessionDuration = 30 * time.Minute

// FocusPolicy defines a selectable focus domain.
type FocusPolicy interface {
	// ID returns unique identifier (e.g., "work", "school").
	ID() string

	// Name returns human-readable name for display.
	Name() string

	// Description explains what counts as productive, shown in the popup.
	Description() string

	// DefaultDuration returns the window length offered by default.
	DefaultDuration() time.Duration
}

// ToFocusDomain converts a FocusPolicy to a domain.FocusDomain entity.
func ToFocusDomain(p FocusPolicy) domain.FocusDomain {
	return domain.FocusDomain{
		ID:              p.ID(),
		Name:            p.Name(),
		Description:     p.Description(),
		DefaultDuration: p.DefaultDuration(),
	}
}
