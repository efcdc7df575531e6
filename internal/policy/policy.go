package policy

import (
	"fmt"
	"sync"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// ConfigError reports a malformed policy or a failing rule predicate.
// It is returned at construction/load time for structural problems and
// from Evaluate when a predicate errors mid-call.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy configuration error: %s: %v", e.Msg, e.Err)
	}
	return "policy configuration error: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Predicate is a custom condition evaluated against the full call context.
// A non-nil error from a predicate is a configuration failure, not a deny.
type Predicate func(call *model.ToolCallContext) (bool, error)

// PredicateRegistry maps names to pre-compiled predicates so that rules can
// reference custom conditions from the wire format.
type PredicateRegistry struct {
	mu    sync.RWMutex
	preds map[string]Predicate
}

// NewPredicateRegistry returns an empty registry.
func NewPredicateRegistry() *PredicateRegistry {
	return &PredicateRegistry{preds: make(map[string]Predicate)}
}

// Register adds a named predicate. Registering an existing name replaces it.
func (r *PredicateRegistry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preds[name] = p
}

// Lookup returns the predicate registered under name, if any.
func (r *PredicateRegistry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.preds[name]
	return p, ok
}

// RuleMatch is the match-spec of a rule. Every field is optional and
// implicitly matches anything when absent; present fields AND together.
type RuleMatch struct {
	Tool        string           `yaml:"tool,omitempty" json:"tool,omitempty"`
	Action      string           `yaml:"action,omitempty" json:"action,omitempty"`
	MinSeverity model.Severity   `yaml:"min_severity,omitempty" json:"min_severity,omitempty"`
	CallerKind  model.CallerKind `yaml:"caller_kind,omitempty" json:"caller_kind,omitempty"`
	Predicate   string           `yaml:"predicate,omitempty" json:"predicate,omitempty"`
}

// Rule is one ordered policy rule (first match wins).
type Rule struct {
	ID          string       `yaml:"id" json:"id"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Match       RuleMatch    `yaml:"match" json:"match"`
	Effect      model.Effect `yaml:"effect" json:"effect"`
	Reason      string       `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Policy is an ordered rule list plus the default applied when nothing
// matches. Policies are replaced atomically, never patched in place.
type Policy struct {
	Rules         []Rule       `yaml:"rules" json:"rules"`
	DefaultEffect model.Effect `yaml:"default_effect" json:"default_effect"`
	DefaultReason string       `yaml:"default_reason,omitempty" json:"default_reason,omitempty"`
}

// Validate checks the policy for structural problems: missing or unknown
// effects, unparsable globs, and predicate names with no registration.
// Enum fields are canonicalized in place to their parsed lowercase values,
// so matching and effect branching never see a case variant that only the
// case-insensitive parsers would accept.
func (p *Policy) Validate(reg *PredicateRegistry) error {
	if p.DefaultEffect == "" {
		return &ConfigError{Msg: "policy has no default effect"}
	}
	defEffect, ok := model.ParseEffect(string(p.DefaultEffect))
	if !ok {
		return &ConfigError{Msg: fmt.Sprintf("unknown default effect %q", p.DefaultEffect)}
	}
	p.DefaultEffect = defEffect
	for i := range p.Rules {
		rule := &p.Rules[i]
		id := rule.ID
		if id == "" {
			id = fmt.Sprintf("#%d", i)
		}
		effect, ok := model.ParseEffect(string(rule.Effect))
		if !ok {
			return &ConfigError{Msg: fmt.Sprintf("rule %s: unknown effect %q", id, rule.Effect)}
		}
		rule.Effect = effect
		if rule.Match.MinSeverity != "" {
			sev, ok := model.ParseSeverity(string(rule.Match.MinSeverity))
			if !ok {
				return &ConfigError{Msg: fmt.Sprintf("rule %s: unknown severity %q", id, rule.Match.MinSeverity)}
			}
			rule.Match.MinSeverity = sev
		}
		if rule.Match.CallerKind != "" {
			kind, ok := model.ParseCallerKind(string(rule.Match.CallerKind))
			if !ok {
				return &ConfigError{Msg: fmt.Sprintf("rule %s: unknown caller kind %q", id, rule.Match.CallerKind)}
			}
			rule.Match.CallerKind = kind
		}
		if _, err := compilePattern(rule.Match.Tool); err != nil {
			return &ConfigError{Msg: fmt.Sprintf("rule %s: tool pattern", id), Err: err}
		}
		if _, err := compilePattern(rule.Match.Action); err != nil {
			return &ConfigError{Msg: fmt.Sprintf("rule %s: action pattern", id), Err: err}
		}
		if rule.Match.Predicate != "" {
			if reg == nil {
				return &ConfigError{Msg: fmt.Sprintf("rule %s: predicate %q referenced but no registry configured", id, rule.Match.Predicate)}
			}
			if _, ok := reg.Lookup(rule.Match.Predicate); !ok {
				return &ConfigError{Msg: fmt.Sprintf("rule %s: unknown predicate %q", id, rule.Match.Predicate)}
			}
		}
	}
	return nil
}
