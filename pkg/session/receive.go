package session

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ystech/pcsctl/pkg/can"
	"github.com/ystech/pcsctl/pkg/frame"
	"github.com/ystech/pcsctl/pkg/identifier"
)

// recvPollInterval bounds how long a single Recv call blocks, so the pump
// notices ctx cancellation promptly even on an idle bus.
const recvPollInterval = 100 * time.Millisecond

// receivePump is the session's only reader of the bus. It owns state
// transitions driven by RX activity (Disconnected/Degraded -> Connected),
// reply-registry delivery, snapshot updates, and subscriber fan-out.
func (s *Session) receivePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, ok, err := s.bus.Recv(time.Now().Add(recvPollInterval))
		if err != nil {
			if s.stopping.Load() {
				return
			}
			s.log.WithError(err).Warn("session: recv error, reconnecting")
			if !s.reconnectWithBackoff(ctx) {
				return
			}
			continue
		}
		if !ok {
			s.checkRxTimeout()
			continue
		}

		s.handleFrame(f)
	}
}

func (s *Session) checkRxTimeout() {
	s.mu.Lock()
	last := s.lastRxTime
	s.mu.Unlock()
	if last.IsZero() {
		return
	}
	if time.Since(last) <= s.cfg.RxTimeout {
		return
	}
	if s.State() == Connected {
		s.log.Warn("session: no traffic within rx_timeout, degrading")
		s.setState(Degraded)
	}
}

func (s *Session) handleFrame(f can.Frame) {
	id, err := identifier.Unpack(f.ID)
	if err != nil {
		s.log.WithError(err).Debug("session: dropping frame with malformed identifier")
		return
	}
	if !identifier.FromPCS(id, s.cfg.PCSAddr) {
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.lastRxTime = now
	s.mu.Unlock()

	switch State(s.state.Load()) {
	case Disconnected, Degraded:
		s.setState(Connected)
	case Closed:
		return
	}

	pf := frame.PF(id.PF)
	data := f.Data[:]

	// A registered waiter (e.g. ResetFaults's PF=0x0F ack) must be
	// delivered even while Faulted -- it's the one reply that has to get
	// through for Faulted -> Connected recovery to be reachable at all.
	if s.deliverReply(pf, data) {
		return
	}

	if s.State() == Faulted {
		return
	}

	if pf == frame.PFRunningState {
		s.checkFaultCode(data)
	}

	decoded, err := frame.Decode(pf, data)
	if err != nil {
		if errors.Is(err, frame.ErrUnknownPF) {
			s.log.WithField("pf", pf).Debug("session: ignoring frame with no telemetry decoder")
		} else {
			s.log.WithError(err).WithField("pf", pf).Debug("session: telemetry decode failed")
		}
		return
	}

	s.mu.Lock()
	s.snapshot.apply(decoded, now)
	s.mu.Unlock()

	s.notify(uint8(pf), decoded)
}

// checkFaultCode promotes the session to Faulted as soon as a running-
// state frame reports the documented CAN1-communication fault, ahead of
// (and independent from) the ordinary telemetry snapshot update.
func (s *Session) checkFaultCode(data []byte) {
	rsf, err := frame.DecodeRunningStateFault(data)
	if err != nil {
		return
	}
	if rsf.Fault == frame.FaultCAN1Comm {
		s.log.WithField("fault", rsf.Fault).Warn("session: PCS reported CAN1 communication fault")
		s.setState(Faulted)
	}
}

// deliverReply completes a pending registered waiter for pf, if any, and
// reports whether it did so (in which case the frame is not treated as
// unsolicited telemetry).
func (s *Session) deliverReply(pf frame.PF, data []byte) bool {
	s.mu.Lock()
	waiter, ok := s.registry[pf]
	if ok {
		delete(s.registry, pf)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case waiter.ch <- replyResult{data: cp}:
	default:
		logrus.WithField("pf", pf).Warn("session: reply waiter channel unexpectedly full, dropping")
	}
	return true
}
