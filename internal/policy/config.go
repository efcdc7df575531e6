package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// DefaultPolicy returns the built-in starter policy: destructive critical
// actions are denied outright, high-severity calls go to review, everything
// else is allowed.
func DefaultPolicy() *Policy {
	return &Policy{
		Rules: []Rule{
			{
				ID:          "deny-critical-deletes",
				Description: "Destructive operations at critical severity are never run",
				Match:       RuleMatch{Action: "delete_*", MinSeverity: model.SeverityCritical},
				Effect:      model.Deny,
				Reason:      "destructive critical operations are blocked",
			},
			{
				ID:          "review-high-severity",
				Description: "High severity and above requires a human in the loop",
				Match:       RuleMatch{MinSeverity: model.SeverityHigh},
				Effect:      model.Review,
			},
		},
		DefaultEffect: model.Allow,
		DefaultReason: "no rule matched",
	}
}

// LoadConfig loads a policy from a YAML file.
// Missing file returns the default policy. Invalid YAML returns an error.
// The result is not yet validated; NewEngine/UpdateConfig do that against
// the predicate registry.
func LoadConfig(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("failed to read policy config: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}

	return &p, nil
}

// LoadConfigWithHash loads a policy and returns the SHA-256 of the raw bytes
// on disk, for correlating audit entries with the exact config in force.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Policy, string, error) {
	if path == "" {
		h := sha256.Sum256(nil)
		return DefaultPolicy(), "sha256:" + hex.EncodeToString(h[:]), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultPolicy(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, "", fmt.Errorf("failed to parse policy config: %w", err)
	}

	return &p, hash, nil
}

// DefaultConfigYAML returns an annotated starter policy file.
func DefaultConfigYAML() string {
	return `# Gateway policy configuration.
#
# Rules are evaluated in order; the first rule whose match-spec is fully
# satisfied wins. Absent match fields match anything.
#
#   tool / action:  glob pattern (* matches any run of characters,
#                   case-insensitive; no * means exact match)
#   min_severity:   safe | low | medium | high | critical (ordinal >=)
#   caller_kind:    human | agent | service (exact)
#   predicate:      name of a registered custom condition
#
# Effects: allow | deny | review (review suspends the call for approval).

rules:
  - id: deny-critical-deletes
    description: Destructive operations at critical severity are never run
    match:
      action: "delete_*"
      min_severity: critical
    effect: deny
    reason: destructive critical operations are blocked

  - id: review-high-severity
    description: High severity and above requires a human in the loop
    match:
      min_severity: high
    effect: review

default_effect: allow
default_reason: no rule matched
`
}
