package shadow

import (
	"log/slog"
	"time"
)

// reapTick is the reaper's polling interval. Timeouts are therefore
// best-effort: a request's effective deadline is [timeoutSec, timeoutSec +
// reapTick], exactly as spec describes.
const reapTick = time.Second

// Reaper is the one-process-wide background task that expires overdue
// in-flight entries. It is independent of transport state: it fires
// timeouts even while a client is disconnected, since a disconnected
// client's in-flight table is not cleared (late replies after reconnect are
// still honored if the transport ever delivers them).
type Reaper struct {
	registry *Registry
	tick     time.Duration
	logger   *slog.Logger

	done chan struct{}
}

// NewReaper returns a reaper that scans registry every tick. tick defaults
// to one second when zero.
func NewReaper(registry *Registry, tick time.Duration) *Reaper {
	if tick <= 0 {
		tick = reapTick
	}
	return &Reaper{
		registry: registry,
		tick:     tick,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
}

// Run blocks, sweeping the registry every tick until Stop is called. Callers
// typically run it in its own goroutine.
func (r *Reaper) Run() {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Reaper) sweep(now time.Time) {
	for _, c := range r.registry.Snapshot() {
		if n := c.inflight.Reap(now); n > 0 {
			r.logger.Debug("reaped timed-out requests", "device", c.name, "count", n)
		}
	}
}

// Stop terminates the loop as soon as any sweep in progress finishes,
// without waiting for the next tick. Safe to call once;
// a second call panics on the closed channel, matching the one-shot
// teardown-signal semantics spec describes.
func (r *Reaper) Stop() {
	close(r.done)
}
