package ingest

import (
	"context"
	"time"
)

// KeepAliveInterval is how often a camera's liveness endpoint must be pinged
// while a chapter transfer is in flight, independent of the transfer's own
// retry cadence.
const KeepAliveInterval = 30 * time.Second

// PingFunc is a single liveness probe, typically camera.Adapter.KeepAlive
// bound to one camera.
type PingFunc func(context.Context) error

// RunKeepAlive pings at KeepAliveInterval until ctx is cancelled. A failed
// ping is logged and does not stop the loop: the camera may simply be busy
// flushing the chapter it is currently serving, and the transfer itself will
// surface any real disconnection through its own retries.
func RunKeepAlive(ctx context.Context, ping PingFunc) {
	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ping(ctx); err != nil {
				log.Warn("camera keep-alive ping failed", "error", err)
			}
		}
	}
}
