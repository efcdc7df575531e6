package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
	"github.com/nik-kale/Secure-MCP-Gateway/internal/policy"
)

func TestReloaderPicksUpPolicyChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("default_effect: allow\n"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := policy.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	eng, err := policy.NewEngine(p)
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewReloader(eng, path)
	if err != nil {
		t.Fatalf("reloader setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Give the watcher a moment to come up before writing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("default_effect: deny\ndefault_reason: locked down\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// Reload is debounced at 500ms; poll past it.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if eng.GetConfig().DefaultEffect == model.Deny {
			cancel()
			<-done
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("policy change was not picked up")
}

func TestReloaderKeepsOldPolicyOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("default_effect: deny\n"), 0644); err != nil {
		t.Fatal(err)
	}

	p, _ := policy.LoadConfig(path)
	eng, err := policy.NewEngine(p)
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewReloader(eng, path)
	if err != nil {
		t.Fatalf("reloader setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("default_effect: not-an-effect\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// Wait well past the debounce window, then confirm nothing changed.
	time.Sleep(1500 * time.Millisecond)
	if eng.GetConfig().DefaultEffect != model.Deny {
		t.Error("invalid policy file must leave the previous policy in force")
	}
}

func TestNewReloaderRequiresExistingFile(t *testing.T) {
	eng, err := policy.NewEngine(policy.DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewReloader(eng, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing policy file")
	}
	if _, err := NewReloader(eng, ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
