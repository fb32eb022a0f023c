package lifecycle

import (
	"context"
	"time"
)

// Handle is the lifecycle controller given to one background service.
// Close must be deferred by the service goroutine.
type Handle struct {
	ctx   context.Context
	Close func()
}

// Ctx returns the context cancelled on shutdown
func (h *Handle) Ctx() context.Context {
	return h.ctx
}

// Done is closed when the manager broadcasts shutdown
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Err returns why Done was closed
func (h *Handle) Err() error {
	return h.ctx.Err()
}

// Sleep pauses for duration, returning early with Err on shutdown
func (h *Handle) Sleep(duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-h.Done():
		return h.Err()
	case <-timer.C:
		return nil
	}
}

// Tick calls fn every interval until shutdown. A pass in flight when
// shutdown arrives runs to completion; fn receives the handle context and
// should honour its cancellation for I/O.
func (h *Handle) Tick(interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.Done():
			return
		case <-ticker.C:
			fn(h.ctx)
		}
	}
}
