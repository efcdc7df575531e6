// Package mcp exposes the gateway over the Model Context Protocol so that
// agents can evaluate, execute, and resolve tool calls through one stdio
// server.
package mcp

import (
	"context"
	"fmt"
	"os"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/approval"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/audit"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/gateway"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/policy"
)

// Config holds MCP server configuration.
type Config struct {
	PolicyPath   string
	AuditLogPath string
	AuditDBPath  string
	AgentID      string
	AgentName    string
	ApprovalTTL  time.Duration
}

// ExecutorBuilder reconstructs an executor for a suspended call so that an
// approval can re-enter execution.
type ExecutorBuilder func(call *model.ToolCallContext) gateway.Executor

// Server wraps the MCP SDK server around the gateway.
type Server struct {
	mcpServer  *mcpsdk.Server
	gw         *gateway.Gateway
	logSink    *audit.Log
	dbSink     *audit.SQLite
	caller     model.CallerIdentity
	policyHash string
	executors  map[string]ExecutorBuilder
}

// New creates an MCP server with loaded policy, approval store, and sinks.
func New(cfg Config) (*Server, error) {
	pol, policyHash, err := policy.LoadConfigWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy config: %w", err)
	}

	engine, err := policy.NewEngine(pol)
	if err != nil {
		return nil, fmt.Errorf("failed to build decision engine: %w", err)
	}

	store := approval.NewStore(approval.WithDefaultTTL(cfg.ApprovalTTL))

	var sinks []audit.Sink
	var logSink *audit.Log
	var dbSink *audit.SQLite
	if cfg.AuditLogPath != "" {
		logSink, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, logSink)
	}
	if cfg.AuditDBPath != "" {
		dbSink, err = audit.OpenSQLite(cfg.AuditDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		sinks = append(sinks, dbSink)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, audit.NewConsole(os.Stderr))
	}

	agentID := cfg.AgentID
	if agentID == "" {
		agentID = "mcp-agent"
	}
	agentName := cfg.AgentName
	if agentName == "" {
		agentName = agentID
	}

	s := &Server{
		gw:         gateway.New(engine, store, audit.Multi(sinks...)),
		logSink:    logSink,
		dbSink:     dbSink,
		policyHash: policyHash,
		caller: model.CallerIdentity{
			ID:   agentID,
			Name: agentName,
			Kind: model.CallerAgent,
		},
		executors: map[string]ExecutorBuilder{
			"http": buildHTTPExecutor,
		},
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "mcp-gateway",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Gateway returns the underlying orchestrator.
func (s *Server) Gateway() *gateway.Gateway { return s.gw }

// PolicyHash returns the SHA-256 of the policy file in force at startup.
func (s *Server) PolicyHash() string { return s.policyHash }

// Close closes the configured audit sinks.
func (s *Server) Close() error {
	if s.logSink != nil {
		if err := s.logSink.Close(); err != nil {
			return err
		}
	}
	if s.dbSink != nil {
		return s.dbSink.Close()
	}
	return nil
}

// executorFor resolves an executor for a suspended call. Tools without a
// registered builder get an executor that fails in-band, so the failure is
// captured into the result and audited rather than raised.
func (s *Server) executorFor(call *model.ToolCallContext) gateway.Executor {
	if call != nil {
		if build, ok := s.executors[call.Tool]; ok {
			return build(call)
		}
	}
	return func(ctx context.Context) (any, error) {
		tool := ""
		if call != nil {
			tool = call.Tool
		}
		return nil, fmt.Errorf("no executor registered for tool %q", tool)
	}
}

// registerTools adds all gateway tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateway_evaluate",
		Description: "Evaluate a tool call against the gateway policy. Returns the decision; a review decision includes an approval token.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateway_http",
		Description: "Perform an HTTP request through gateway policy enforcement. Blocked requests return the reason and, for review decisions, an approval token.",
	}, s.handleHTTP)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateway_approve",
		Description: "Grant a pending approval and run the suspended call.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateway_deny",
		Description: "Deny a pending approval. The suspended call is discarded.",
	}, s.handleDeny)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateway_pending",
		Description: "List approvals awaiting a human decision.",
	}, s.handlePending)
}
