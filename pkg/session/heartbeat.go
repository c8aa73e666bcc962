package session

import (
	"context"
	"time"

	"github.com/ystech/pcsctl/pkg/frame"
)

// heartbeatLoop sends PF=0x1A on a monotonic schedule: each deadline is
// computed as prev + period rather than via time.Sleep or a free-running
// ticker, so a slow send does not compress the next interval. Two
// consecutive send failures demote the session to Degraded; the loop
// itself never stops on a send error; only Close or ctx cancellation ends
// it, per spec's hard 5s heartbeat deadline being the PCS's concern, not
// the producer's.
func (s *Session) heartbeatLoop(ctx context.Context) {
	period := s.cfg.HeartbeatPeriod
	next := time.Now().Add(period)

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.sendHeartbeat()

			next = next.Add(period)
			delay := time.Until(next)
			if delay < 0 {
				// Fell behind by more than a full period; resync instead of
				// firing a burst of catch-up ticks.
				next = time.Now().Add(period)
				delay = period
			}
			timer.Reset(delay)
		}
	}
}

func (s *Session) sendHeartbeat() {
	payload, err := frame.EncodeHeartbeat(nil)
	if err != nil {
		s.log.WithError(err).Warn("session: heartbeat encode failed")
		return
	}

	err = s.sendFrame(frame.PFHeartbeat, payload)

	s.mu.Lock()
	if err != nil {
		s.hbFailures++
	} else {
		s.hbFailures = 0
	}
	failures := s.hbFailures
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Warn("session: heartbeat send failed")
	}
	if failures >= 2 && s.State() == Connected {
		s.log.Warn("session: two consecutive heartbeat failures, degrading")
		s.setState(Degraded)
	}
}
