package repod

import (
	"context"
	"time"
)

// WatchIdle polls IdleFor every interval and closes the returned
// channel once the server has gone timeout with nothing pending and
// nothing active (spec.md §4.9 "pending == 0 && now − last_activity >
// timeout_seconds"). The channel is never closed if ctx is cancelled
// first; timeout <= 0 disables the watch and returns a channel that is
// never closed.
func (s *Server) WatchIdle(ctx context.Context, timeout, interval time.Duration) <-chan struct{} {
	idle := make(chan struct{})
	if timeout <= 0 {
		return idle
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if s.IdleFor(now) > timeout {
					close(idle)
					return
				}
			}
		}
	}()
	return idle
}
