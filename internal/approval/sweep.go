package approval

import (
	"context"
	"time"
)

// Sweeper periodically expires stale pending approvals and purges resolved
// records older than the retention window. The store does not drive its own
// maintenance; a serve loop runs one of these.
type Sweeper struct {
	store     *Store
	interval  time.Duration
	retention time.Duration
}

// NewSweeper creates a sweeper. Non-positive interval defaults to one
// minute; non-positive retention defaults to 24 hours.
func NewSweeper(store *Store, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Sweeper{store: store, interval: interval, retention: retention}
}

// Run sweeps on every tick until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep performs one maintenance pass: flip overdue pending records to
// expired, then drop resolved records past retention.
func (w *Sweeper) Sweep() (expired, removed int) {
	expired = w.store.ExpireStale()
	removed = w.store.Cleanup(w.store.now().Add(-w.retention))
	return expired, removed
}
