package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity classifies the declared risk tier of a tool action.
type Severity string

const (
	SeveritySafe     Severity = "safe"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank maps severity to a comparable integer for ordinal matching.
// Comparisons are always ordinal, never lexical.
var SeverityRank = map[Severity]int{
	SeveritySafe:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity maps a string to a Severity, case-insensitive.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(s))
	_, ok := SeverityRank[sev]
	return sev, ok
}

// AtLeast reports whether s is at or above min on the ordinal scale.
func (s Severity) AtLeast(min Severity) bool {
	return SeverityRank[s] >= SeverityRank[min]
}

// CallerKind identifies what sort of principal is making a tool call.
type CallerKind string

const (
	CallerHuman   CallerKind = "human"
	CallerAgent   CallerKind = "agent"
	CallerService CallerKind = "service"
)

// ParseCallerKind maps a string to a CallerKind, case-insensitive.
func ParseCallerKind(s string) (CallerKind, bool) {
	switch CallerKind(strings.ToLower(s)) {
	case CallerHuman:
		return CallerHuman, true
	case CallerAgent:
		return CallerAgent, true
	case CallerService:
		return CallerService, true
	}
	return "", false
}

// CallerIdentity describes who is making a tool call.
// Immutable once attached to a context.
type CallerIdentity struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Kind     CallerKind     `json:"kind"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolCallContext is the immutable record describing one tool-call attempt.
// Created exactly once per evaluation; never mutated afterward.
type ToolCallContext struct {
	CallID    string         `json:"call_id"`
	Tool      string         `json:"tool"`
	Action    string         `json:"action"`
	Severity  Severity       `json:"severity"`
	Caller    CallerIdentity `json:"caller"`
	Args      map[string]any `json:"args,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewToolCallContext builds a fresh context with a unique call id and the
// current UTC timestamp.
func NewToolCallContext(tool, action string, severity Severity, caller CallerIdentity, args, metadata map[string]any) *ToolCallContext {
	return &ToolCallContext{
		CallID:    NewCallID(),
		Tool:      tool,
		Action:    action,
		Severity:  severity,
		Caller:    caller,
		Args:      args,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// Effect is the policy verdict on a tool call.
type Effect string

const (
	Allow  Effect = "allow"
	Deny   Effect = "deny"
	Review Effect = "review"
)

// ParseEffect maps a string to an Effect, case-insensitive.
func ParseEffect(s string) (Effect, bool) {
	switch Effect(strings.ToLower(s)) {
	case Allow:
		return Allow, true
	case Deny:
		return Deny, true
	case Review:
		return Review, true
	}
	return "", false
}

// Decision is the decision engine's verdict on a context.
// ApprovalToken is present iff Effect is Review.
type Decision struct {
	Effect        Effect `json:"effect"`
	Reason        string `json:"reason"`
	RuleID        string `json:"rule_id,omitempty"`
	ApprovalToken string `json:"approval_token,omitempty"`
}

// ExecResult captures the outcome of running a caller-supplied executor.
type ExecResult struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CallResult is what the orchestrator hands back for an evaluated call.
type CallResult struct {
	Allowed       bool             `json:"allowed"`
	Decision      *Decision        `json:"decision"`
	Context       *ToolCallContext `json:"context"`
	ApprovalToken string           `json:"approval_token,omitempty"`
	Exec          *ExecResult      `json:"result,omitempty"`
}

// NewCallID generates a unique call identifier.
func NewCallID() string {
	return "call-" + uuid.NewString()
}

// NewApprovalToken generates a token unique across the process lifetime.
func NewApprovalToken() string {
	return "apr-" + uuid.NewString()
}
