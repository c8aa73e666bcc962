package session

import (
	"context"
	"time"
)

// initialReconnectBackoff is the first retry delay in the doubling
// schedule (100ms, 200ms, 400ms, 800ms, 1.6s, ...), capped at
// cfg.ReconnectBackoffCap. Attempts continue until ctx is done or Close
// has been called.
const initialReconnectBackoff = 100 * time.Millisecond

// reconnectWithBackoff retries bus.Reconnect with exponential backoff
// until it succeeds, ctx is cancelled, or the session is closing. It
// reports whether the bus was reconnected.
func (s *Session) reconnectWithBackoff(ctx context.Context) bool {
	backoff := initialReconnectBackoff
	for {
		if s.stopping.Load() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}

		s.setState(Degraded)
		if err := s.bus.Reconnect(); err == nil {
			s.log.Info("session: bus reconnected")
			return true
		} else {
			s.log.WithError(err).WithField("backoff", backoff).Debug("session: reconnect attempt failed")
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		backoff *= 2
		if backoff > s.cfg.ReconnectBackoffCap {
			backoff = s.cfg.ReconnectBackoffCap
		}
	}
}
