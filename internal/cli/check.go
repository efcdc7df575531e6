package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/policy"
)

var (
	checkPolicy   string
	checkTool     string
	checkAction   string
	checkSeverity string
	checkCaller   string
	checkKind     string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "", "Path to policy YAML (optional)")
	checkCmd.Flags().StringVar(&checkTool, "tool", "", "Tool being invoked (required)")
	checkCmd.Flags().StringVar(&checkAction, "action", "", "Action on the tool (required)")
	checkCmd.Flags().StringVar(&checkSeverity, "severity", "medium", "Declared severity (safe/low/medium/high/critical)")
	checkCmd.Flags().StringVar(&checkCaller, "caller", "cli", "Caller identity")
	checkCmd.Flags().StringVar(&checkKind, "caller-kind", "human", "Caller kind (human/agent/service)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("tool")
	checkCmd.MarkFlagRequired("action")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one tool call against the policy",
	Long: "Builds a call context from the flags, evaluates it through the decision\n" +
		"engine, and prints the verdict.\n\n" +
		"Exit code 0 for allow, 1 for deny or review.\n" +
		"Use in CI to gate automation on policy correctness.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	severity, ok := model.ParseSeverity(checkSeverity)
	if !ok {
		return fmt.Errorf("unknown severity %q", checkSeverity)
	}
	kind, ok := model.ParseCallerKind(checkKind)
	if !ok {
		return fmt.Errorf("unknown caller kind %q", checkKind)
	}

	pol, err := policy.LoadConfig(checkPolicy)
	if err != nil {
		return err
	}
	engine, err := policy.NewEngine(pol)
	if err != nil {
		return err
	}

	call := model.NewToolCallContext(checkTool, checkAction, severity,
		model.CallerIdentity{ID: checkCaller, Name: checkCaller, Kind: kind}, nil, nil)

	decision, err := engine.Evaluate(call)
	if err != nil {
		return err
	}

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(decision, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Printf("%s %s.%s [%s] → %s\n", call.CallID, checkTool, checkAction, severity, decision.Effect)
		fmt.Printf("  reason: %s\n", decision.Reason)
		if decision.RuleID != "" {
			fmt.Printf("  rule:   %s\n", decision.RuleID)
		}
	}

	if decision.Effect != model.Allow {
		os.Exit(1)
	}
	return nil
}
