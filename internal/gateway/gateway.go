// Package gateway sequences decision → audit → suspend/execute → audit for
// every mediated tool call.
package gateway

import (
	"context"
	"fmt"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/approval"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/audit"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/policy"
)

// Executor is the caller-supplied function that actually performs the tool
// action once permitted. The gateway treats its result opaquely and only
// distinguishes success from failure. No timeout is imposed here; a
// never-returning executor hangs the call.
type Executor func(ctx context.Context) (any, error)

// Gateway composes the decision engine, the approval store, and the audit
// sink. Policy outcomes (deny, review) and executor failures come back as
// data in the CallResult; only approval-token misuse on Grant/Deny surfaces
// as an error, since that indicates a caller bug rather than an expected
// business state.
type Gateway struct {
	engine    *policy.Engine
	approvals *approval.Store
	sink      audit.Sink
}

// New wires the three collaborators together.
func New(engine *policy.Engine, approvals *approval.Store, sink audit.Sink) *Gateway {
	return &Gateway{
		engine:    engine,
		approvals: approvals,
		sink:      sink,
	}
}

// EvaluateCall builds a fresh context for the described call, runs the
// decision engine, notifies the audit sink, and either returns the verdict
// or registers a pending approval for a review decision. Audit failures
// propagate: a call whose trail cannot be recorded does not proceed.
func (g *Gateway) EvaluateCall(ctx context.Context, tool, action string, severity model.Severity, caller model.CallerIdentity, args, metadata map[string]any) (*model.CallResult, error) {
	call := model.NewToolCallContext(tool, action, severity, caller, args, metadata)

	decision, err := g.engine.Evaluate(call)
	if err != nil {
		return nil, err
	}

	if err := g.sink.ToolCall(ctx, call, decision); err != nil {
		return nil, fmt.Errorf("audit notification failed: %w", err)
	}

	switch decision.Effect {
	case model.Allow:
		return &model.CallResult{Allowed: true, Decision: decision, Context: call}, nil

	case model.Deny:
		return &model.CallResult{Allowed: false, Decision: decision, Context: call}, nil

	case model.Review:
		if _, err := g.approvals.Create(call, decision); err != nil {
			return nil, fmt.Errorf("failed to register approval: %w", err)
		}
		return &model.CallResult{
			Allowed:       false,
			Decision:      decision,
			Context:       call,
			ApprovalToken: decision.ApprovalToken,
		}, nil

	default:
		// Unreachable given the closed effect set.
		return nil, &policy.ConfigError{Msg: fmt.Sprintf("unknown decision effect %q", decision.Effect)}
	}
}

// ExecuteCall evaluates and, when allowed, runs the executor. A call that is
// not allowed comes back unchanged and the executor is never invoked.
// Executor failures are captured into the result, never re-raised.
func (g *Gateway) ExecuteCall(ctx context.Context, tool, action string, severity model.Severity, caller model.CallerIdentity, executor Executor, args, metadata map[string]any) (*model.CallResult, error) {
	result, err := g.EvaluateCall(ctx, tool, action, severity, caller, args, metadata)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, nil
	}
	return g.runExecutor(ctx, result, executor)
}

// GrantAndExecute resolves a pending approval and runs the executor.
// A failed grant (unknown token, already processed, expired) is caller
// misuse and surfaces as an error; the executor is never invoked.
// On success the result's Allowed is always true; the approval step
// already gated entry.
func (g *Gateway) GrantAndExecute(ctx context.Context, token, approver string, executor Executor) (*model.CallResult, error) {
	pa, err := g.approvals.Grant(token, approver)
	if err != nil {
		return nil, fmt.Errorf("failed to grant approval: %w", err)
	}

	if err := g.sink.ApprovalGranted(ctx, pa.Context, approver); err != nil {
		return nil, fmt.Errorf("audit notification failed: %w", err)
	}

	result := &model.CallResult{
		Allowed:       true,
		Decision:      pa.Decision,
		Context:       pa.Context,
		ApprovalToken: token,
	}
	return g.runExecutor(ctx, result, executor)
}

// DenyCall resolves a pending approval as denied. No executor ever runs for
// a denial.
func (g *Gateway) DenyCall(ctx context.Context, token, denier string) error {
	pa, err := g.approvals.Deny(token, denier)
	if err != nil {
		return fmt.Errorf("failed to deny approval: %w", err)
	}
	return g.sink.ApprovalDenied(ctx, pa.Context, denier)
}

// ListPendingApprovals returns the approvals currently awaiting a decision.
func (g *Gateway) ListPendingApprovals() []*approval.PendingApproval {
	return g.approvals.ListPending()
}

// Engine returns the decision engine for collaborating layers.
func (g *Gateway) Engine() *policy.Engine { return g.engine }

// Approvals returns the approval store for collaborating layers.
func (g *Gateway) Approvals() *approval.Store { return g.approvals }

// runExecutor invokes the executor and folds its outcome into the result.
// The matching execution audit event is sent before returning so that log
// order matches causal order.
func (g *Gateway) runExecutor(ctx context.Context, result *model.CallResult, executor Executor) (*model.CallResult, error) {
	output, err := executor(ctx)
	if err != nil {
		result.Exec = &model.ExecResult{Success: false, Error: err.Error()}
		if aerr := g.sink.ExecutionFailure(ctx, result.Context, err.Error()); aerr != nil {
			return nil, fmt.Errorf("audit notification failed: %w", aerr)
		}
		return result, nil
	}

	result.Exec = &model.ExecResult{Success: true, Output: output}
	if aerr := g.sink.ExecutionSuccess(ctx, result.Context, output); aerr != nil {
		return nil, fmt.Errorf("audit notification failed: %w", aerr)
	}
	return result, nil
}
