package audit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// Console is a human-readable Sink writing one line per event.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console sink on the given writer.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) write(call *model.ToolCallContext, format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := time.Now().UTC().Format("15:04:05")
	callID := ""
	if call != nil {
		callID = call.CallID
	}
	_, err := fmt.Fprintf(c.w, "%s %s %s\n", ts, callID, fmt.Sprintf(format, args...))
	if err != nil {
		return fmt.Errorf("audit: console write: %w", err)
	}
	return nil
}

func (c *Console) ToolCall(_ context.Context, call *model.ToolCallContext, decision *model.Decision) error {
	effect, reason := "", ""
	if decision != nil {
		effect = string(decision.Effect)
		reason = decision.Reason
	}
	tool, action, severity := "", "", model.Severity("")
	if call != nil {
		tool, action, severity = call.Tool, call.Action, call.Severity
	}
	return c.write(call, "%s %s.%s [%s] → %s: %s",
		EventToolCall, tool, action, severity, effect, reason)
}

func (c *Console) ApprovalGranted(_ context.Context, call *model.ToolCallContext, approver string) error {
	return c.write(call, "%s by %s", EventApprovalGranted, approver)
}

func (c *Console) ApprovalDenied(_ context.Context, call *model.ToolCallContext, denier string) error {
	return c.write(call, "%s by %s", EventApprovalDenied, denier)
}

func (c *Console) ExecutionSuccess(_ context.Context, call *model.ToolCallContext, output any) error {
	return c.write(call, "%s", EventExecutionSuccess)
}

func (c *Console) ExecutionFailure(_ context.Context, call *model.ToolCallContext, errMsg string) error {
	return c.write(call, "%s: %s", EventExecutionFailure, errMsg)
}
