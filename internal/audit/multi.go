package audit

import (
	"context"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// multi fans each event out to several sinks in order; the first failure
// aborts the fan-out and propagates.
type multi struct {
	sinks []Sink
}

// Multi combines sinks into one. With a single sink it is returned as-is.
func Multi(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &multi{sinks: sinks}
}

func (m *multi) ToolCall(ctx context.Context, call *model.ToolCallContext, decision *model.Decision) error {
	for _, s := range m.sinks {
		if err := s.ToolCall(ctx, call, decision); err != nil {
			return err
		}
	}
	return nil
}

func (m *multi) ApprovalGranted(ctx context.Context, call *model.ToolCallContext, approver string) error {
	for _, s := range m.sinks {
		if err := s.ApprovalGranted(ctx, call, approver); err != nil {
			return err
		}
	}
	return nil
}

func (m *multi) ApprovalDenied(ctx context.Context, call *model.ToolCallContext, denier string) error {
	for _, s := range m.sinks {
		if err := s.ApprovalDenied(ctx, call, denier); err != nil {
			return err
		}
	}
	return nil
}

func (m *multi) ExecutionSuccess(ctx context.Context, call *model.ToolCallContext, output any) error {
	for _, s := range m.sinks {
		if err := s.ExecutionSuccess(ctx, call, output); err != nil {
			return err
		}
	}
	return nil
}

func (m *multi) ExecutionFailure(ctx context.Context, call *model.ToolCallContext, errMsg string) error {
	for _, s := range m.sinks {
		if err := s.ExecutionFailure(ctx, call, errMsg); err != nil {
			return err
		}
	}
	return nil
}
