package capture

import (
	"context"
	"sync"
	"time"
)

const defaultPollInterval = 2 * time.Second

// Observer decides whether the tracker looks at the page again after the
// initial scan. The initial scan always happens; Attach receives a function
// that re-scans and instruments only elements not seen before. ctx is
// cancelled when the page unloads.
type Observer interface {
	Attach(ctx context.Context, rescan func())
}

// StaticScan never re-scans. Elements injected after the page is ready are
// not instrumented.
type StaticScan struct{}

func (StaticScan) Attach(context.Context, func()) {}

// ManualRescan re-scans when Rescan is called, e.g. after a client-side
// route change or a lazy-loaded product grid.
type ManualRescan struct {
	mu     sync.Mutex
	ctx    context.Context
	rescan func()
}

func (m *ManualRescan) Attach(ctx context.Context, rescan func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	m.rescan = rescan
}

// Rescan reports false if the tracker has not installed yet or the page
// has unloaded.
func (m *ManualRescan) Rescan() bool {
	m.mu.Lock()
	ctx, fn := m.ctx, m.rescan
	m.mu.Unlock()
	if fn == nil || ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

// PollingRescan re-scans every Interval until the page unloads.
type PollingRescan struct {
	Interval time.Duration
}

func (p PollingRescan) Attach(ctx context.Context, rescan func()) {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				rescan()
			}
		}
	}()
}
