package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	return path
}

func TestLoadConfigParsesRules(t *testing.T) {
	path := writePolicy(t, `
rules:
  - id: deny-critical-deletes
    match:
      action: "delete_*"
      min_severity: critical
    effect: deny
    reason: blocked
  - id: review-agents
    match:
      caller_kind: agent
    effect: review
default_effect: allow
default_reason: fine
`)

	p, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(p.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(p.Rules))
	}
	if p.Rules[0].Match.Action != "delete_*" {
		t.Errorf("expected action glob, got %q", p.Rules[0].Match.Action)
	}
	if p.Rules[0].Match.MinSeverity != model.SeverityCritical {
		t.Errorf("expected critical min severity, got %q", p.Rules[0].Match.MinSeverity)
	}
	if p.Rules[1].Match.CallerKind != model.CallerAgent {
		t.Errorf("expected agent caller kind, got %q", p.Rules[1].Match.CallerKind)
	}
	if p.DefaultEffect != model.Allow {
		t.Errorf("expected default allow, got %q", p.DefaultEffect)
	}

	if _, err := NewEngine(p); err != nil {
		t.Fatalf("loaded policy should validate: %v", err)
	}
}

func TestLoadConfigUppercaseEnumsBehaveLikeLowercase(t *testing.T) {
	path := writePolicy(t, `
rules:
  - id: deny-high
    match:
      min_severity: HIGH
    effect: DENY
default_effect: ALLOW
`)

	p, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	eng, err := NewEngine(p)
	if err != nil {
		t.Fatalf("loaded policy should validate: %v", err)
	}

	call := model.NewToolCallContext("db", "read_record", model.SeveritySafe,
		model.CallerIdentity{ID: "a1", Kind: model.CallerAgent}, nil, nil)
	d, err := eng.Evaluate(call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Effect != model.Allow {
		t.Errorf("safe call must not hit a min_severity HIGH rule, got %s", d.Effect)
	}

	if got := eng.GetConfig(); got.DefaultEffect != model.Allow || got.Rules[0].Effect != model.Deny {
		t.Errorf("enum fields should be canonical after validation: %+v", got)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	p, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if p.DefaultEffect == "" {
		t.Error("default policy must carry a default effect")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writePolicy(t, "{{{not yaml at all")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadConfigWithHash(t *testing.T) {
	content := "default_effect: allow\n"
	path := writePolicy(t, content)

	_, hash1, err := LoadConfigWithHash(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !strings.HasPrefix(hash1, "sha256:") {
		t.Errorf("expected sha256 prefix, got %q", hash1)
	}

	// Same bytes, same hash
	_, hash2, _ := LoadConfigWithHash(path)
	if hash1 != hash2 {
		t.Error("hash must be deterministic over identical bytes")
	}

	// Different bytes, different hash
	other := writePolicy(t, "default_effect: deny\n")
	_, hash3, _ := LoadConfigWithHash(other)
	if hash3 == hash1 {
		t.Error("different config bytes should hash differently")
	}
}

func TestDefaultConfigYAMLRoundTrips(t *testing.T) {
	path := writePolicy(t, DefaultConfigYAML())

	p, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("starter policy should parse: %v", err)
	}
	if _, err := NewEngine(p); err != nil {
		t.Fatalf("starter policy should validate: %v", err)
	}
}
