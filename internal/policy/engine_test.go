package policy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

func testCall(tool, action string, severity model.Severity) *model.ToolCallContext {
	return model.NewToolCallContext(tool, action, severity,
		model.CallerIdentity{ID: "agent-1", Name: "agent-1", Kind: model.CallerAgent}, nil, nil)
}

func newTestEngine(t *testing.T, p *Policy, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(p, opts...)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return e
}

func TestFirstMatchWins(t *testing.T) {
	// Narrow exception placed before the broad restriction
	p := &Policy{
		Rules: []Rule{
			{ID: "allow-staging", Match: RuleMatch{Tool: "kubectl", Action: "delete_staging_*"}, Effect: model.Allow},
			{ID: "deny-deletes", Match: RuleMatch{Action: "delete_*"}, Effect: model.Deny},
		},
		DefaultEffect: model.Allow,
	}
	e := newTestEngine(t, p)

	d, err := e.Evaluate(testCall("kubectl", "delete_staging_pod", model.SeverityLow))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Effect != model.Allow {
		t.Errorf("expected allow from the narrow exception, got %s", d.Effect)
	}
	if d.RuleID != "allow-staging" {
		t.Errorf("expected rule allow-staging, got %q", d.RuleID)
	}

	d, err = e.Evaluate(testCall("kubectl", "delete_prod_pod", model.SeverityLow))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Effect != model.Deny {
		t.Errorf("expected deny from the broad rule, got %s", d.Effect)
	}
	if d.RuleID != "deny-deletes" {
		t.Errorf("expected rule deny-deletes, got %q", d.RuleID)
	}
}

func TestDefaultEffectWhenNoRuleMatches(t *testing.T) {
	p := &Policy{
		Rules:         []Rule{{ID: "r1", Match: RuleMatch{Tool: "jira"}, Effect: model.Deny}},
		DefaultEffect: model.Allow,
		DefaultReason: "unrestricted by policy",
	}
	e := newTestEngine(t, p)

	d, err := e.Evaluate(testCall("github", "create_pr", model.SeverityLow))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Effect != model.Allow {
		t.Errorf("expected default allow, got %s", d.Effect)
	}
	if d.Reason != "unrestricted by policy" {
		t.Errorf("expected default reason verbatim, got %q", d.Reason)
	}
	if d.RuleID != "" {
		t.Errorf("default decision must not carry a rule id, got %q", d.RuleID)
	}
}

func TestMinSeverityIsOrdinal(t *testing.T) {
	p := &Policy{
		Rules: []Rule{
			{ID: "deny-critical-deletes", Match: RuleMatch{Action: "delete_*", MinSeverity: model.SeverityCritical}, Effect: model.Deny},
		},
		DefaultEffect: model.Allow,
	}
	e := newTestEngine(t, p)

	d, _ := e.Evaluate(testCall("db", "delete_db", model.SeverityCritical))
	if d.Effect != model.Deny {
		t.Errorf("critical delete should be denied, got %s", d.Effect)
	}

	// Same call at high severity falls through: minSeverity fails
	d, _ = e.Evaluate(testCall("db", "delete_db", model.SeverityHigh))
	if d.Effect != model.Allow {
		t.Errorf("high-severity delete should fall through to default allow, got %s", d.Effect)
	}
}

func TestCallerKindExactMatch(t *testing.T) {
	p := &Policy{
		Rules: []Rule{
			{ID: "review-agents", Match: RuleMatch{CallerKind: model.CallerAgent}, Effect: model.Review},
		},
		DefaultEffect: model.Allow,
	}
	e := newTestEngine(t, p)

	d, _ := e.Evaluate(testCall("jira", "comment", model.SeveritySafe))
	if d.Effect != model.Review {
		t.Errorf("agent call should hit review rule, got %s", d.Effect)
	}

	human := model.NewToolCallContext("jira", "comment", model.SeveritySafe,
		model.CallerIdentity{ID: "alice", Kind: model.CallerHuman}, nil, nil)
	d, _ = e.Evaluate(human)
	if d.Effect != model.Allow {
		t.Errorf("human call should fall through, got %s", d.Effect)
	}
}

func TestEnumSpellingsCanonicalizedOnValidate(t *testing.T) {
	// Uppercase spellings pass the case-insensitive parsers; validation must
	// rewrite them to the canonical values so ordinal severity comparison and
	// effect branching behave the same as with lowercase input.
	p := &Policy{
		Rules: []Rule{
			{ID: "deny-high", Match: RuleMatch{MinSeverity: "HIGH", CallerKind: "AGENT"}, Effect: "DENY"},
		},
		DefaultEffect: "ALLOW",
	}
	e := newTestEngine(t, p)

	d, err := e.Evaluate(testCall("db", "read_record", model.SeveritySafe))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Effect != model.Allow {
		t.Errorf("safe call must fall through a min_severity HIGH rule, got %s", d.Effect)
	}

	d, _ = e.Evaluate(testCall("db", "read_record", model.SeverityHigh))
	if d.Effect != model.Deny {
		t.Errorf("high call should hit the rule, got %s", d.Effect)
	}
}

func TestUppercaseReviewEffectCarriesToken(t *testing.T) {
	p := &Policy{
		Rules:         []Rule{{ID: "review-all", Effect: "REVIEW"}},
		DefaultEffect: model.Allow,
	}
	e := newTestEngine(t, p)

	d, err := e.Evaluate(testCall("db", "read_record", model.SeveritySafe))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Effect != model.Review {
		t.Fatalf("expected canonical review effect, got %q", d.Effect)
	}
	if d.ApprovalToken == "" {
		t.Fatal("review decision must carry a token regardless of config spelling")
	}
}

func TestReviewDecisionCarriesFreshToken(t *testing.T) {
	// Empty rule list with default review: every call suspends
	p := &Policy{DefaultEffect: model.Review}
	e := newTestEngine(t, p)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		d, err := e.Evaluate(testCall("anything", "anything", model.SeveritySafe))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Effect != model.Review {
			t.Fatalf("expected review, got %s", d.Effect)
		}
		if d.ApprovalToken == "" {
			t.Fatal("review decision must carry a token")
		}
		if seen[d.ApprovalToken] {
			t.Fatalf("token %s issued twice", d.ApprovalToken)
		}
		seen[d.ApprovalToken] = true
	}
}

func TestAllowAndDenyNeverCarryTokens(t *testing.T) {
	p := &Policy{
		Rules: []Rule{
			{ID: "deny-db", Match: RuleMatch{Tool: "db"}, Effect: model.Deny},
		},
		DefaultEffect: model.Allow,
	}
	e := newTestEngine(t, p)

	d, _ := e.Evaluate(testCall("db", "drop", model.SeverityLow))
	if d.ApprovalToken != "" {
		t.Errorf("deny decision carried token %q", d.ApprovalToken)
	}
	d, _ = e.Evaluate(testCall("jira", "comment", model.SeverityLow))
	if d.ApprovalToken != "" {
		t.Errorf("allow decision carried token %q", d.ApprovalToken)
	}
}

func TestReasonSynthesizedFromRuleID(t *testing.T) {
	p := &Policy{
		Rules:         []Rule{{ID: "deny-db", Match: RuleMatch{Tool: "db"}, Effect: model.Deny}},
		DefaultEffect: model.Allow,
	}
	e := newTestEngine(t, p)

	d, _ := e.Evaluate(testCall("db", "drop", model.SeverityLow))
	if d.Reason != "deny by rule deny-db" {
		t.Errorf("expected synthesized reason, got %q", d.Reason)
	}
}

func TestExplicitReasonUsedVerbatim(t *testing.T) {
	p := &Policy{
		Rules: []Rule{
			{ID: "deny-db", Match: RuleMatch{Tool: "db"}, Effect: model.Deny, Reason: "databases are off limits"},
		},
		DefaultEffect: model.Allow,
	}
	e := newTestEngine(t, p)

	d, _ := e.Evaluate(testCall("db", "drop", model.SeverityLow))
	if d.Reason != "databases are off limits" {
		t.Errorf("expected explicit reason verbatim, got %q", d.Reason)
	}
}

func TestPredicateMatch(t *testing.T) {
	reg := NewPredicateRegistry()
	reg.Register("has_dry_run", func(call *model.ToolCallContext) (bool, error) {
		v, ok := call.Args["dry_run"].(bool)
		return ok && v, nil
	})

	p := &Policy{
		Rules: []Rule{
			{ID: "allow-dry-runs", Match: RuleMatch{Predicate: "has_dry_run"}, Effect: model.Allow},
			{ID: "review-rest", Match: RuleMatch{}, Effect: model.Review},
		},
		DefaultEffect: model.Deny,
	}
	e := newTestEngine(t, p, WithPredicates(reg))

	dry := model.NewToolCallContext("kubectl", "apply", model.SeverityMedium,
		model.CallerIdentity{ID: "a1", Kind: model.CallerAgent},
		map[string]any{"dry_run": true}, nil)
	d, err := e.Evaluate(dry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Effect != model.Allow {
		t.Errorf("dry run should be allowed, got %s", d.Effect)
	}

	wet := model.NewToolCallContext("kubectl", "apply", model.SeverityMedium,
		model.CallerIdentity{ID: "a1", Kind: model.CallerAgent}, nil, nil)
	d, _ = e.Evaluate(wet)
	if d.Effect != model.Review {
		t.Errorf("non-dry-run should go to review, got %s", d.Effect)
	}
}

func TestPredicateErrorIsConfigError(t *testing.T) {
	reg := NewPredicateRegistry()
	reg.Register("broken", func(call *model.ToolCallContext) (bool, error) {
		return false, fmt.Errorf("lookup unavailable")
	})

	p := &Policy{
		Rules:         []Rule{{ID: "r1", Match: RuleMatch{Predicate: "broken"}, Effect: model.Allow}},
		DefaultEffect: model.Allow,
	}
	e := newTestEngine(t, p, WithPredicates(reg))

	_, err := e.Evaluate(testCall("jira", "comment", model.SeverityLow))
	if err == nil {
		t.Fatal("expected error from failing predicate")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestUpdateConfigSwapsWholePolicy(t *testing.T) {
	e := newTestEngine(t, &Policy{DefaultEffect: model.Allow})

	d, _ := e.Evaluate(testCall("db", "drop", model.SeverityLow))
	if d.Effect != model.Allow {
		t.Fatalf("expected allow before swap, got %s", d.Effect)
	}

	next := &Policy{
		Rules:         []Rule{{ID: "deny-db", Match: RuleMatch{Tool: "db"}, Effect: model.Deny}},
		DefaultEffect: model.Allow,
	}
	if err := e.UpdateConfig(next); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	d, _ = e.Evaluate(testCall("db", "drop", model.SeverityLow))
	if d.Effect != model.Deny {
		t.Errorf("expected deny after swap, got %s", d.Effect)
	}
	if e.GetConfig() != next {
		t.Error("GetConfig should return the swapped-in policy")
	}
}

func TestUpdateConfigRejectsMalformedPolicy(t *testing.T) {
	e := newTestEngine(t, &Policy{DefaultEffect: model.Allow})

	err := e.UpdateConfig(&Policy{})
	if err == nil {
		t.Fatal("expected error for policy without default effect")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}

	// Previous policy still in force
	d, _ := e.Evaluate(testCall("jira", "comment", model.SeverityLow))
	if d.Effect != model.Allow {
		t.Errorf("old policy should survive a failed update, got %s", d.Effect)
	}
}

func TestNewEngineValidatesAtConstruction(t *testing.T) {
	cases := []struct {
		name   string
		policy *Policy
	}{
		{"no default effect", &Policy{}},
		{"unknown default effect", &Policy{DefaultEffect: "maybe"}},
		{"unknown rule effect", &Policy{
			Rules:         []Rule{{ID: "r1", Effect: "shrug"}},
			DefaultEffect: model.Allow,
		}},
		{"unknown severity", &Policy{
			Rules:         []Rule{{ID: "r1", Match: RuleMatch{MinSeverity: "extreme"}, Effect: model.Deny}},
			DefaultEffect: model.Allow,
		}},
		{"unknown predicate", &Policy{
			Rules:         []Rule{{ID: "r1", Match: RuleMatch{Predicate: "ghost"}, Effect: model.Deny}},
			DefaultEffect: model.Allow,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewEngine(tc.policy); err == nil {
				t.Errorf("expected construction error for %s", tc.name)
			}
		})
	}
}
