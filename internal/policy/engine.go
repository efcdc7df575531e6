package policy

import (
	"fmt"
	"sync"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// compiledRule pairs a rule with its pre-compiled matchers so that Evaluate
// never pays pattern compilation per call.
type compiledRule struct {
	rule   Rule
	tool   matcher
	action matcher
	pred   Predicate
}

// snapshot is one immutable compiled policy generation. Concurrent
// evaluations see either the old or the new snapshot in full, never a mix.
type snapshot struct {
	policy   *Policy
	compiled []compiledRule
}

// Engine evaluates tool-call contexts against the active policy.
type Engine struct {
	mu       sync.RWMutex
	current  *snapshot
	registry *PredicateRegistry
}

// Option configures an Engine.
type Option func(*Engine)

// WithPredicates supplies the registry rules resolve predicate names against.
func WithPredicates(reg *PredicateRegistry) Option {
	return func(e *Engine) { e.registry = reg }
}

// NewEngine validates and compiles the policy. A malformed policy is a
// construction-time error, not a per-call failure.
func NewEngine(p *Policy, opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	snap, err := e.compile(p)
	if err != nil {
		return nil, err
	}
	e.current = snap
	return e, nil
}

// UpdateConfig validates the new policy and swaps it in as a single atomic
// replacement.
func (e *Engine) UpdateConfig(p *Policy) error {
	snap, err := e.compile(p)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.current = snap
	e.mu.Unlock()
	return nil
}

// GetConfig returns the active policy for inspection.
func (e *Engine) GetConfig() *Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current.policy
}

// Evaluate scans rules in list order and returns the decision of the first
// rule whose match-spec is fully satisfied, or the policy default when none
// match. A Review decision carries a freshly generated approval token;
// Allow and Deny decisions never do.
func (e *Engine) Evaluate(call *model.ToolCallContext) (*model.Decision, error) {
	e.mu.RLock()
	snap := e.current
	e.mu.RUnlock()

	for _, cr := range snap.compiled {
		ok, err := cr.matches(call)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		reason := cr.rule.Reason
		if reason == "" {
			reason = fmt.Sprintf("%s by rule %s", cr.rule.Effect, cr.rule.ID)
		}
		return newDecision(cr.rule.Effect, reason, cr.rule.ID), nil
	}

	reason := snap.policy.DefaultReason
	if reason == "" {
		reason = fmt.Sprintf("no rule matched; default effect %s", snap.policy.DefaultEffect)
	}
	return newDecision(snap.policy.DefaultEffect, reason, ""), nil
}

// matches tests every present match field against the context (AND); absent
// fields are wildcards.
func (cr *compiledRule) matches(call *model.ToolCallContext) (bool, error) {
	if !cr.tool(call.Tool) {
		return false, nil
	}
	if !cr.action(call.Action) {
		return false, nil
	}
	if min := cr.rule.Match.MinSeverity; min != "" && !call.Severity.AtLeast(min) {
		return false, nil
	}
	if kind := cr.rule.Match.CallerKind; kind != "" && call.Caller.Kind != kind {
		return false, nil
	}
	if cr.pred != nil {
		ok, err := cr.pred(call)
		if err != nil {
			return false, &ConfigError{
				Msg: fmt.Sprintf("rule %s: predicate %q failed", cr.rule.ID, cr.rule.Match.Predicate),
				Err: err,
			}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func newDecision(effect model.Effect, reason, ruleID string) *model.Decision {
	d := &model.Decision{
		Effect: effect,
		Reason: reason,
		RuleID: ruleID,
	}
	if effect == model.Review {
		d.ApprovalToken = model.NewApprovalToken()
	}
	return d
}

func (e *Engine) compile(p *Policy) (*snapshot, error) {
	if p == nil {
		return nil, &ConfigError{Msg: "nil policy"}
	}
	if err := p.Validate(e.registry); err != nil {
		return nil, err
	}

	compiled := make([]compiledRule, len(p.Rules))
	for i, rule := range p.Rules {
		tool, err := compilePattern(rule.Match.Tool)
		if err != nil {
			return nil, &ConfigError{Msg: fmt.Sprintf("rule %s: tool pattern", rule.ID), Err: err}
		}
		action, err := compilePattern(rule.Match.Action)
		if err != nil {
			return nil, &ConfigError{Msg: fmt.Sprintf("rule %s: action pattern", rule.ID), Err: err}
		}
		var pred Predicate
		if rule.Match.Predicate != "" {
			pred, _ = e.registry.Lookup(rule.Match.Predicate)
		}
		compiled[i] = compiledRule{rule: rule, tool: tool, action: action, pred: pred}
	}

	return &snapshot{policy: p, compiled: compiled}, nil
}
