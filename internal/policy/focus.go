package policy

import "time"

// WorkPolicy is the professional work domain.
type WorkPolicy struct{}

func (WorkPolicy) ID() string   { return "work" }
func (WorkPolicy) Name() string { return "Work" }
func (WorkPolicy) Description() string {
	return "Job tasks: documentation, code hosting, issue trackers, work email."
}
func (WorkPolicy) DefaultDuration() time.Duration { return 50 * time.Minute }

// SchoolPolicy is the study domain.
type SchoolPolicy struct{}

func (SchoolPolicy) ID() string   { return "school" }
func (SchoolPolicy) Name() string { return "School" }
func (SchoolPolicy) Description() string {
	return "Coursework and research: references, course portals, papers."
}
func (SchoolPolicy) DefaultDuration() time.Duration { return 45 * time.Minute }

// PersonalPolicy is for personal projects and errands.
type PersonalPolicy struct{}

func (PersonalPolicy) ID() string   { return "personal" }
func (PersonalPolicy) Name() string { return "Personal" }
func (PersonalPolicy) Description() string {
	return "Personal projects and errands you chose to focus on."
}
func (PersonalPolicy) DefaultDuration() time.Duration { return DefaultSessionDuration }

// ConfiguredPolicy is a focus domain declared in config.yaml.
type ConfiguredPolicy struct {
	id          string
	name        string
	description string
	duration    time.Duration
}

// NewConfiguredPolicy creates a policy from config values. A zero duration
// falls back to DefaultSessionDuration and an empty name to the id.
func NewConfiguredPolicy(id, name, description string, duration time.Duration) *ConfiguredPolicy {
	if name == "" {
		name = id
	}
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &ConfiguredPolicy{id: id, name: name, description: description, duration: duration}
}

func (p *ConfiguredPolicy) ID() string                     { return p.id }
func (p *ConfiguredPolicy) Name() string                   { return p.name }
func (p *ConfiguredPolicy) Description() string            { return p.description }
func (p *ConfiguredPolicy) DefaultDuration() time.Duration { return p.duration }

// Ensure the policies implement FocusPolicy.
var (
	_ FocusPolicy = WorkPolicy{}
	_ FocusPolicy = SchoolPolicy{}
	_ FocusPolicy = PersonalPolicy{}
	_ FocusPolicy = (*ConfiguredPolicy)(nil)
)
