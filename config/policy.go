package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyDoc is the environment/operation safety policy: confirmation
// rules, capacity guardrails, blackout windows and operating-mode verb
// sets. Read-only after load.
type PolicyDoc struct {
	Environments   map[string]EnvironmentPolicy `yaml:"environments,omitempty"`
	Operations     map[string]Fragment          `yaml:"operations,omitempty"`
	Guardrails     GuardrailLimits              `yaml:"guardrails,omitempty"`
	Confirmations  ConfirmationConfig           `yaml:"confirmations,omitempty"`
	OperationModes map[string]ModePolicy        `yaml:"operation_modes,omitempty"`
}

// Fragment holds the policy fields that exist at both operation and
// environment scope and are merged per request. Pointer fields
// distinguish "unset" from an explicit zero so merging can honor
// precedence.
type Fragment struct {
	ConfirmationsRequired *bool `yaml:"confirmations_required,omitempty"`

	// ConfirmAllOperations makes the "confirmations_required with an
	// empty operation list" case explicit. When unset, an empty list is
	// interpreted the legacy way: every verb requires confirmation.
	ConfirmAllOperations   *bool    `yaml:"confirm_all_operations,omitempty"`
	ConfirmationOperations []string `yaml:"confirmation_operations,omitempty"`
	MaxScaleSize           *int     `yaml:"max_scale_size,omitempty"`
	AllowedOperations      *VerbSet `yaml:"allowed_operations,omitempty"`
}

// Merge overlays env on top of op. Environment wins on key collision;
// this precedence is deliberate and pinned by tests.
func Merge(op, env Fragment) Fragment {
	out := op
	if env.ConfirmationsRequired != nil {
		out.ConfirmationsRequired = env.ConfirmationsRequired
	}
	if env.ConfirmAllOperations != nil {
		out.ConfirmAllOperations = env.ConfirmAllOperations
	}
	if len(env.ConfirmationOperations) > 0 {
		out.ConfirmationOperations = env.ConfirmationOperations
	}
	if env.MaxScaleSize != nil {
		out.MaxScaleSize = env.MaxScaleSize
	}
	if env.AllowedOperations != nil {
		out.AllowedOperations = env.AllowedOperations
	}
	return out
}

// EnvironmentPolicy is the per-environment rule set.
type EnvironmentPolicy struct {
	Fragment               `yaml:",inline"`
	DeploymentRestrictions DeploymentRestrictions `yaml:"deployment_restrictions,omitempty"`
}

// DeploymentRestrictions gates deploys in an environment.
type DeploymentRestrictions struct {
	ApprovalRequired bool             `yaml:"approval_required,omitempty"`
	BlackoutWindows  []BlackoutWindow `yaml:"blackout_windows,omitempty"`
}

// BlackoutWindow is a recurring weekly time range during which deploys
// are hard-denied. Days are weekday names; Start/End are HH:MM in local
// time. An End before Start wraps past midnight. Empty Start and End
// blacks out the whole day.
type BlackoutWindow struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start,omitempty"`
	End   string   `yaml:"end,omitempty"`
}

// Contains reports whether t falls inside the window.
func (w BlackoutWindow) Contains(t time.Time) bool {
	if !w.matchesDay(t.Weekday()) {
		return false
	}
	if w.Start == "" && w.End == "" {
		return true
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if end < start {
		// Overnight window, e.g. 22:00-06:00.
		return now >= start || now < end
	}
	return now >= start && now < end
}

func (w BlackoutWindow) matchesDay(day time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	name := strings.ToLower(day.String())
	for _, d := range w.Days {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == name || (len(d) >= 3 && strings.HasPrefix(name, d[:3])) {
			return true
		}
	}
	return false
}

func (w BlackoutWindow) validate() error {
	for _, d := range w.Days {
		if !validWeekday(d) {
			return fmt.Errorf("unknown weekday %q", d)
		}
	}
	if (w.Start == "") != (w.End == "") {
		return fmt.Errorf("start and end must both be set or both be empty")
	}
	if w.Start != "" {
		if _, err := parseClock(w.Start); err != nil {
			return fmt.Errorf("bad start time %q: %w", w.Start, err)
		}
		if _, err := parseClock(w.End); err != nil {
			return fmt.Errorf("bad end time %q: %w", w.End, err)
		}
	}
	return nil
}

func validWeekday(d string) bool {
	d = strings.ToLower(strings.TrimSpace(d))
	if len(d) < 3 {
		return false
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.HasPrefix(strings.ToLower(wd.String()), d[:3]) {
			return true
		}
	}
	return false
}

// parseClock converts HH:MM to minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// GuardrailLimits are the global operation limits.
type GuardrailLimits struct {
	Scaling  ScalingLimits  `yaml:"scaling,omitempty"`
	Security SecurityLimits `yaml:"security,omitempty"`
}

// ScalingLimits bound scale operations. Each bound has a default plus
// per-environment overrides.
type ScalingLimits struct {
	MaxInstances InstanceBound `yaml:"max_instances,omitempty"`
	MinInstances InstanceBound `yaml:"min_instances,omitempty"`
}

// InstanceBound is a capacity bound: a default value and any number of
// environment-keyed overrides, e.g.
//
//	max_instances:
//	  default: 100
//	  prod: 50
type InstanceBound struct {
	Default       int            `yaml:"default,omitempty"`
	ByEnvironment map[string]int `yaml:",inline"`
}

// For returns the bound for an environment, falling back to the default
// then to fallback.
func (b InstanceBound) For(environment string, fallback int) int {
	if v, ok := b.ByEnvironment[environment]; ok {
		return v
	}
	if b.Default != 0 {
		return b.Default
	}
	return fallback
}

// SecurityLimits bound security operations.
type SecurityLimits struct {
	MaxEndpointsIsolate int `yaml:"max_endpoints_isolate,omitempty"`
}

// ConfirmationConfig selects the confirmation token format.
type ConfirmationConfig struct {
	Token TokenConfig `yaml:"token,omitempty"`
}

// TokenConfig: Type is "alphanumeric" (default) or "word-based"; Length
// applies to alphanumeric tokens.
type TokenConfig struct {
	Type   string `yaml:"type,omitempty"`
	Length int    `yaml:"length,omitempty"`
}

// ModePolicy is an operating mode's verb gate. Explicit denial wins over
// allowance.
type ModePolicy struct {
	AllowedVerbs VerbSet  `yaml:"allowed_verbs,omitempty"`
	DeniedVerbs  []string `yaml:"denied_verbs,omitempty"`
}

// VerbSet is either the "all" sentinel or an explicit verb list. In yaml
// it is written as the scalar "all" or as a sequence.
type VerbSet struct {
	All   bool
	Verbs []string
}

// UnmarshalYAML accepts both forms.
func (s *VerbSet) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var str string
		if err := value.Decode(&str); err != nil {
			return err
		}
		if str != "all" {
			return fmt.Errorf("verb set must be %q or a list, got %q", "all", str)
		}
		s.All = true
		s.Verbs = nil
		return nil
	}
	s.All = false
	return value.Decode(&s.Verbs)
}

// MarshalYAML emits the compact scalar form for "all".
func (s VerbSet) MarshalYAML() (interface{}, error) {
	if s.All {
		return "all", nil
	}
	return s.Verbs, nil
}

// Contains reports whether the set admits verb.
func (s VerbSet) Contains(verb string) bool {
	if s.All {
		return true
	}
	for _, v := range s.Verbs {
		if v == verb {
			return true
		}
	}
	return false
}

// Validate fails fast on structurally invalid or ambiguous policy.
func (p *PolicyDoc) Validate() error {
	for env, ep := range p.Environments {
		if err := ep.validate(); err != nil {
			return fmt.Errorf("environment %q: %w", env, err)
		}
	}
	if t := p.Confirmations.Token.Type; t != "" && t != "alphanumeric" && t != "word-based" {
		return fmt.Errorf("confirmations.token.type must be alphanumeric or word-based, got %q", t)
	}
	return nil
}

func (ep EnvironmentPolicy) validate() error {
	// Confirmations required with no operation list and no explicit
	// confirm_all_operations is ambiguous authoring: the legacy reading
	// is "everything requires confirmation", which may equally be a
	// forgotten list. Force the author to say which.
	if ep.ConfirmationsRequired != nil && *ep.ConfirmationsRequired &&
		len(ep.ConfirmationOperations) == 0 && ep.ConfirmAllOperations == nil {
		return fmt.Errorf("confirmations_required is set with no confirmation_operations; set confirm_all_operations explicitly")
	}
	for i, w := range ep.DeploymentRestrictions.BlackoutWindows {
		if err := w.validate(); err != nil {
			return fmt.Errorf("blackout window %d: %w", i, err)
		}
	}
	return nil
}
