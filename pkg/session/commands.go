package session

import (
	"context"
	"time"

	"github.com/ystech/pcsctl/pkg/frame"
)

// registerWaiter reserves the single in-flight reply slot for pf. It
// returns ErrBusy if one is already registered, matching the one-
// outstanding-request-per-PF invariant guarded by the same mutex as the
// snapshot and last-RX time.
func (s *Session) registerWaiter(pf frame.PF) (chan replyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.registry[pf]; busy {
		return nil, ErrBusy
	}
	ch := make(chan replyResult, 1)
	s.registry[pf] = &pendingReply{ch: ch}
	return ch, nil
}

func (s *Session) abandonWaiter(pf frame.PF) {
	s.mu.Lock()
	delete(s.registry, pf)
	s.mu.Unlock()
}

// sendAndAwait sends payload on pf, retries once on a transient send
// failure via sendFrame, then waits up to CommandTimeout for the matching
// reply. The reply registry slot is always released before returning.
func (s *Session) sendAndAwait(ctx context.Context, pf frame.PF, payload [8]byte) ([]byte, error) {
	if s.State() == Disconnected || s.State() == Closed {
		return nil, ErrNotConnected
	}

	ch, err := s.registerWaiter(pf)
	if err != nil {
		return nil, err
	}
	defer s.abandonWaiter(pf)

	if err := s.sendFrame(pf, payload); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrCommandTimeout
	case result := <-ch:
		return result.data, result.err
	}
}

// controlBitsSnapshot returns the cached PF=0x0F state: the bits carried
// by our own last successful control command, or the all-zero vector if
// the session has never sent one yet. frame.EncodeControl itself treats a
// nil previous state as an error (no assumption is safe at that layer);
// here, the session is the only originator of PF=0x0F commands on this
// bus, so an all-zero bootstrap for "nothing sent yet" is well-defined.
func (s *Session) controlBitsSnapshot() *frame.ControlBits {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastControl == nil {
		return &frame.ControlBits{}
	}
	cp := *s.lastControl
	return &cp
}

func (s *Session) rememberControlBits(cb frame.ControlBits) {
	s.mu.Lock()
	s.lastControl = &cb
	s.mu.Unlock()
}

// setControl drives PF=0x0F with a run/clear-faults change, overlaid onto
// the control-byte state of the session's last acknowledged PF=0x0F
// command. PF=0x0F frames sent by the PCS are not read back into that
// state.
func (s *Session) setControl(ctx context.Context, setRun, setClearFaults *bool) error {
	prev := s.controlBitsSnapshot()
	payload, next, err := frame.EncodeControl(prev, setRun, setClearFaults)
	if err != nil {
		return err
	}

	reply, err := s.sendAndAwait(ctx, frame.PFControl, payload)
	if err != nil {
		return err
	}

	if !frame.DecodeSetReply(reply) {
		return rejected("PCS did not acknowledge control command")
	}
	s.rememberControlBits(next)

	if setClearFaults != nil && *setClearFaults && s.State() == Faulted {
		s.setState(Connected)
	}
	return nil
}

// Enable requests the PCS start running, via PF=0x0F's run bit.
func (s *Session) Enable(ctx context.Context) error {
	on := true
	return s.setControl(ctx, &on, nil)
}

// Disable requests the PCS stop running, via PF=0x0F's run bit.
func (s *Session) Disable(ctx context.Context) error {
	off := false
	return s.setControl(ctx, &off, nil)
}

// ResetFaults requests the PCS clear its latched fault state, via
// PF=0x0F's clear-faults bit. It does not alter the run bit.
func (s *Session) ResetFaults(ctx context.Context) error {
	on := true
	return s.setControl(ctx, nil, &on)
}

// SetMode commands a new working mode. Per spec, a mode change is only
// accepted while the PCS is stopped; if the snapshot's running state is
// fresh and not stopped, this returns ErrModeChangeWhileRunning without
// sending anything. A stale or never-received running state does not
// block the command.
func (s *Session) SetMode(ctx context.Context, cmd frame.ModeCommand) error {
	rsf, _, fresh := s.Snapshot().RunningStateFaultValue()
	if fresh && rsf.State != frame.RunningStopped {
		return ErrModeChangeWhileRunning
	}

	primary, secondary, err := frame.EncodeSetMode(cmd)
	if err != nil {
		return err
	}

	reply, err := s.sendAndAwait(ctx, frame.PFSetMode, primary)
	if err != nil {
		return err
	}
	if !frame.DecodeSetReply(reply) {
		return rejected("PCS did not acknowledge mode command")
	}

	if secondary != nil {
		reply, err := s.sendAndAwait(ctx, frame.PFSetModeExt1, *secondary)
		if err != nil {
			return err
		}
		if !frame.DecodeSetReply(reply) {
			return rejected("PCS did not acknowledge mode command extension")
		}
	}
	return nil
}

// ReadFirmwareVersion queries and decodes the PCS firmware version.
func (s *Session) ReadFirmwareVersion(ctx context.Context) (frame.FirmwareVersion, error) {
	reply, err := s.sendAndAwait(ctx, frame.PFFirmwareVersion, frame.EncodeFirmwareVersionQuery())
	if err != nil {
		return frame.FirmwareVersion{}, err
	}
	return frame.DecodeFirmwareVersion(reply)
}

// ReadProtectionParams queries and decodes the PCS protection parameters.
func (s *Session) ReadProtectionParams(ctx context.Context) (frame.ProtectionParams, error) {
	reply, err := s.sendAndAwait(ctx, frame.PFProtectionParams, frame.EncodeProtectionParamsQuery())
	if err != nil {
		return frame.ProtectionParams{}, err
	}
	return frame.DecodeProtectionParams(reply)
}
