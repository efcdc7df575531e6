package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/policy"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing policy file")
}

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write an annotated starter policy file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := args[0]

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.WriteFile(path, []byte(policy.DefaultConfigYAML()), 0644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}

	fmt.Printf("Wrote starter policy to %s\n", path)
	return nil
}
