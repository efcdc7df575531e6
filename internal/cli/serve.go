package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/approval"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/gateway"
	gwmcp "github.com/nik-kale/Secure-MCP-Gateway/internal/mcp"
)

var (
	servePolicy      string
	serveAuditLog    string
	serveAuditDB     string
	serveAgentID     string
	serveApprovalTTL time.Duration
	serveSweep       time.Duration
	serveRetention   time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "Path to policy YAML")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to hash-chained audit log JSONL file")
	serveCmd.Flags().StringVar(&serveAuditDB, "audit-db", "", "Path to sqlite audit database")
	serveCmd.Flags().StringVar(&serveAgentID, "agent-id", "", "Caller identity reported for MCP tool calls")
	serveCmd.Flags().DurationVar(&serveApprovalTTL, "approval-ttl", 0, "TTL for pending approvals (e.g., 15m). 0 = never auto-expire")
	serveCmd.Flags().DurationVar(&serveSweep, "sweep-interval", time.Minute, "Interval between approval maintenance sweeps")
	serveCmd.Flags().DurationVar(&serveRetention, "retention", 24*time.Hour, "How long resolved approvals are kept before cleanup")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway MCP server",
	Long:  "Runs the gateway as an MCP (Model Context Protocol) server over stdio.\nExposes policy-enforced tools: evaluate, http, approve, deny, pending.\nSupports hot-reload of the policy file.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := gwmcp.Config{
		PolicyPath:   servePolicy,
		AuditLogPath: serveAuditLog,
		AuditDBPath:  serveAuditDB,
		AgentID:      serveAgentID,
		ApprovalTTL:  serveApprovalTTL,
	}

	srv, err := gwmcp.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-reload watcher for the policy file
	if servePolicy != "" {
		reloader, err := gateway.NewReloader(srv.Gateway().Engine(), servePolicy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	// Approval maintenance: expire stale records, purge old resolved ones
	sweeper := approval.NewSweeper(srv.Gateway().Approvals(), serveSweep, serveRetention)
	go sweeper.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down gateway...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "mcp-gateway server running on stdio")
	if servePolicy != "" {
		fmt.Fprintf(os.Stderr, "Policy: %s (hot-reload enabled, hash %s)\n", servePolicy, srv.PolicyHash())
	}
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
