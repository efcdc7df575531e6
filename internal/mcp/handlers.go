package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/gateway"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// --- Input/Output types ---

// EvaluateInput defines parameters for the gateway_evaluate tool.
type EvaluateInput struct {
	Tool     string         `json:"tool" jsonschema:"tool being invoked"`
	Action   string         `json:"action" jsonschema:"action on the tool"`
	Severity string         `json:"severity,omitempty" jsonschema:"declared risk tier (safe/low/medium/high/critical)"`
	Args     map[string]any `json:"args,omitempty" jsonschema:"call arguments"`
}

// EvaluateOutput contains the policy decision.
type EvaluateOutput struct {
	CallID        string `json:"call_id"`
	Allowed       bool   `json:"allowed"`
	Decision      string `json:"decision"`
	Reason        string `json:"reason"`
	RuleID        string `json:"rule_id,omitempty"`
	ApprovalToken string `json:"approval_token,omitempty"`
}

// HTTPInput defines parameters for the gateway_http tool.
type HTTPInput struct {
	Method  string            `json:"method" jsonschema:"HTTP method (GET/POST/PUT/DELETE)"`
	URL     string            `json:"url" jsonschema:"request URL"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"request headers"`
	Body    string            `json:"body,omitempty" jsonschema:"request body"`
}

// HTTPOutput contains the HTTP response or block details.
type HTTPOutput struct {
	Status        int    `json:"status,omitempty"`
	Body          string `json:"body,omitempty"`
	Blocked       bool   `json:"blocked,omitempty"`
	Decision      string `json:"decision,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ApprovalToken string `json:"approval_token,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ApproveInput defines parameters for the gateway_approve tool.
type ApproveInput struct {
	Token    string `json:"token" jsonschema:"approval token from a review decision"`
	Approver string `json:"approver,omitempty" jsonschema:"who is approving"`
}

// ApproveOutput confirms the grant and reports the re-entered execution.
type ApproveOutput struct {
	Token   string `json:"token"`
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DenyInput defines parameters for the gateway_deny tool.
type DenyInput struct {
	Token  string `json:"token" jsonschema:"approval token from a review decision"`
	Denier string `json:"denier,omitempty" jsonschema:"who is denying"`
}

// DenyOutput confirms the denial.
type DenyOutput struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

// PendingInput is empty; the tool takes no parameters.
type PendingInput struct{}

// PendingOutput lists all pending approvals.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes a single pending approval.
type PendingItem struct {
	Token     string `json:"token"`
	Tool      string `json:"tool"`
	Action    string `json:"action"`
	Severity  string `json:"severity"`
	Caller    string `json:"caller"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// --- Handlers ---

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	severity := model.SeverityMedium
	if input.Severity != "" {
		sev, ok := model.ParseSeverity(input.Severity)
		if !ok {
			return nil, EvaluateOutput{}, fmt.Errorf("unknown severity %q", input.Severity)
		}
		severity = sev
	}

	result, err := s.gw.EvaluateCall(ctx, input.Tool, input.Action, severity, s.caller, input.Args, nil)
	if err != nil {
		return nil, EvaluateOutput{}, err
	}

	return nil, EvaluateOutput{
		CallID:        result.Context.CallID,
		Allowed:       result.Allowed,
		Decision:      string(result.Decision.Effect),
		Reason:        result.Decision.Reason,
		RuleID:        result.Decision.RuleID,
		ApprovalToken: result.ApprovalToken,
	}, nil
}

func (s *Server) handleHTTP(ctx context.Context, req *mcpsdk.CallToolRequest, input HTTPInput) (*mcpsdk.CallToolResult, HTTPOutput, error) {
	if input.Method == "" {
		input.Method = "GET"
	}

	args := map[string]any{
		"method": strings.ToUpper(input.Method),
		"url":    input.URL,
		"body":   input.Body,
	}
	if len(input.Headers) > 0 {
		headers := make(map[string]any, len(input.Headers))
		for k, v := range input.Headers {
			headers[k] = v
		}
		args["headers"] = headers
	}

	severity := classifyURLSeverity(input.URL, input.Method)

	result, err := s.gw.ExecuteCall(ctx, "http", strings.ToLower(input.Method), severity, s.caller,
		httpExecutor(args), args, nil)
	if err != nil {
		return nil, HTTPOutput{}, err
	}

	if !result.Allowed {
		out := HTTPOutput{
			Blocked:       true,
			Decision:      string(result.Decision.Effect),
			Reason:        result.Decision.Reason,
			ApprovalToken: result.ApprovalToken,
		}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	if !result.Exec.Success {
		return &mcpsdk.CallToolResult{IsError: true}, HTTPOutput{Error: result.Exec.Error}, nil
	}

	resp := result.Exec.Output.(*httpResponse)
	return nil, HTTPOutput{Status: resp.Status, Body: resp.Body}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	approver := input.Approver
	if approver == "" {
		approver = "operator"
	}

	// The pending record carries the original context; rebuild its executor
	// so the grant re-enters execution.
	pa := s.gw.Approvals().Get(input.Token)
	var executor gateway.Executor
	if pa != nil {
		executor = s.executorFor(pa.Context)
	} else {
		executor = s.executorFor(nil)
	}

	result, err := s.gw.GrantAndExecute(ctx, input.Token, approver, executor)
	if err != nil {
		return nil, ApproveOutput{}, err
	}

	out := ApproveOutput{
		Token:   input.Token,
		Status:  "approved",
		Success: result.Exec.Success,
		Error:   result.Exec.Error,
	}
	if result.Exec.Success {
		out.Output = fmt.Sprintf("%v", result.Exec.Output)
	}
	return nil, out, nil
}

func (s *Server) handleDeny(ctx context.Context, req *mcpsdk.CallToolRequest, input DenyInput) (*mcpsdk.CallToolResult, DenyOutput, error) {
	denier := input.Denier
	if denier == "" {
		denier = "operator"
	}

	if err := s.gw.DenyCall(ctx, input.Token, denier); err != nil {
		return nil, DenyOutput{}, err
	}

	return nil, DenyOutput{Token: input.Token, Status: "denied"}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list := s.gw.ListPendingApprovals()
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	items := make([]PendingItem, len(list))
	for i, pa := range list {
		item := PendingItem{
			Token:     pa.Token,
			Tool:      pa.Context.Tool,
			Action:    pa.Context.Action,
			Severity:  string(pa.Context.Severity),
			Caller:    pa.Context.Caller.ID,
			Reason:    pa.Decision.Reason,
			CreatedAt: pa.CreatedAt.Format(time.RFC3339),
		}
		if pa.ExpiresAt != nil {
			item.ExpiresAt = pa.ExpiresAt.Format(time.RFC3339)
		}
		items[i] = item
	}

	return nil, PendingOutput{Approvals: items}, nil
}

// --- HTTP executor ---

type httpResponse struct {
	Status int
	Body   string
}

// httpExecutor performs the request described by the call args. Used both
// on the direct gateway_http path and when an approval re-enters execution.
func httpExecutor(args map[string]any) gateway.Executor {
	return func(ctx context.Context) (any, error) {
		method, _ := args["method"].(string)
		if method == "" {
			method = "GET"
		}
		url, _ := args["url"].(string)
		body, _ := args["body"].(string)

		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, strings.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		if headers, ok := args["headers"].(map[string]any); ok {
			for k, v := range headers {
				if s, ok := v.(string); ok {
					req.Header.Set(k, s)
				}
			}
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		return &httpResponse{Status: resp.StatusCode, Body: string(data)}, nil
	}
}

// buildHTTPExecutor reconstructs the executor for a suspended http call.
func buildHTTPExecutor(call *model.ToolCallContext) gateway.Executor {
	return httpExecutor(call.Args)
}

// classifyURLSeverity maps well-known risky URL shapes to a severity tier.
func classifyURLSeverity(url, method string) model.Severity {
	lower := strings.ToLower(url)

	payment := []string{"/checkout", "/payment", "/billing", "stripe.com", "paypal.com"}
	for _, p := range payment {
		if strings.Contains(lower, p) {
			return model.SeverityCritical
		}
	}

	cred := []string{"/oauth/token", "/api/keys", "/api/credentials"}
	for _, p := range cred {
		if strings.Contains(lower, p) {
			return model.SeverityHigh
		}
	}

	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS":
		return model.SeverityLow
	}
	return model.SeverityMedium
}
