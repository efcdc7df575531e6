// Package audit records every decision, approval, and execution event the
// gateway produces. Sink failures are not swallowed: the orchestrator treats
// a broken audit trail as a hard failure of the whole operation.
package audit

import (
	"context"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// Event names recorded by the sinks.
const (
	EventToolCall         = "tool_call"
	EventApprovalGranted  = "approval_granted"
	EventApprovalDenied   = "approval_denied"
	EventExecutionSuccess = "execution_success"
	EventExecutionFailure = "execution_failure"
)

// Sink receives notifications of every decision/approval/execution event.
// Implementations may fail; callers must propagate those failures.
type Sink interface {
	ToolCall(ctx context.Context, call *model.ToolCallContext, decision *model.Decision) error
	ApprovalGranted(ctx context.Context, call *model.ToolCallContext, approver string) error
	ApprovalDenied(ctx context.Context, call *model.ToolCallContext, denier string) error
	ExecutionSuccess(ctx context.Context, call *model.ToolCallContext, output any) error
	ExecutionFailure(ctx context.Context, call *model.ToolCallContext, errMsg string) error
}
