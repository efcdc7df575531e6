package gateway

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/policy"
)

// Reloader watches the policy file for changes and hot-swaps the engine's
// active policy. A reload that fails validation leaves the previous policy
// in force.
type Reloader struct {
	watcher *fsnotify.Watcher
	engine  *policy.Engine
	path    string
}

// NewReloader creates a file watcher for the given policy path.
func NewReloader(engine *policy.Engine, path string) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("no policy path to watch")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot watch %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	return &Reloader{
		watcher: watcher,
		engine:  engine,
		path:    path,
	}, nil
}

// Run watches for file changes and reloads policy. Blocks until ctx is
// cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after last write before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.reload(); err != nil {
						fmt.Fprintf(os.Stderr, "hot-reload failed: %v\n", err)
					} else {
						fmt.Fprintf(os.Stderr, "hot-reload: policy reloaded\n")
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}

func (r *Reloader) reload() error {
	p, err := policy.LoadConfig(r.path)
	if err != nil {
		return err
	}
	return r.engine.UpdateConfig(p)
}
