package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystech/pcsctl/pkg/can"
	"github.com/ystech/pcsctl/pkg/config"
	"github.com/ystech/pcsctl/pkg/frame"
	"github.com/ystech/pcsctl/pkg/identifier"
	"github.com/ystech/pcsctl/pkg/simulator"

	_ "github.com/ystech/pcsctl/pkg/can/virtualcan"
)

// newHarness wires a Session and a Simulator onto the same in-process
// virtual channel, each with a short heartbeat period so property tests
// do not need to wait a full 200ms spec period many times over.
func newHarness(t *testing.T) (*Session, *simulator.Simulator, func()) {
	t.Helper()
	channel := t.Name()

	sessionBus, err := can.NewBus(can.BackendVirtual, channel, 250000)
	require.NoError(t, err)
	simBus, err := can.NewBus(can.BackendVirtual, channel, 250000)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.HeartbeatPeriod = 30 * time.Millisecond
	cfg.CommandTimeout = 500 * time.Millisecond
	cfg.RxTimeout = 150 * time.Millisecond

	s := New(sessionBus, cfg, nil)

	simOpts := simulator.NewOptions()
	simOpts.TickPeriod = 30 * time.Millisecond
	simOpts.HeartbeatTimeout = 200 * time.Millisecond
	sim := simulator.New(simBus, simOpts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sim.Start(ctx))
	require.NoError(t, s.Start(ctx))

	cleanup := func() {
		_ = s.Close()
		_ = sim.Stop()
		cancel()
	}
	return s, sim, cleanup
}

// TestEnableBringsSessionConnectedAndRunning exercises the happy path:
// the session observes telemetry, then Enable() flips the PCS to a
// running state the snapshot reflects.
func TestEnableBringsSessionConnectedAndRunning(t *testing.T) {
	s, _, cleanup := newHarness(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, 5*time.Millisecond, "session should connect once telemetry starts arriving")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Enable(ctx))

	require.Eventually(t, func() bool {
		rsf, _, fresh := s.Snapshot().RunningStateFaultValue()
		return fresh && rsf.State == frame.RunningRunning
	}, time.Second, 5*time.Millisecond, "snapshot should report running after Enable")
}

// TestHeartbeatSendsSucceedWhileConnected checks that no heartbeat send
// failure has been recorded once the session is connected to a live
// simulator. It does not measure the interval between heartbeats.
func TestHeartbeatSendsSucceedWhileConnected(t *testing.T) {
	s, _, cleanup := newHarness(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, 5*time.Millisecond)

	s.mu.Lock()
	before := s.hbFailures
	s.mu.Unlock()
	assert.Equal(t, 0, before, "heartbeats should be succeeding against a live simulator")
}

// TestModeChangeWhileRunningIsRejected checks that SetMode is refused
// client-side while the cached running state is not stopped, with no
// frame needing to reach the simulator for that rejection.
func TestModeChangeWhileRunningIsRejected(t *testing.T) {
	s, _, cleanup := newHarness(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Enable(ctx))

	require.Eventually(t, func() bool {
		rsf, _, fresh := s.Snapshot().RunningStateFaultValue()
		return fresh && rsf.State == frame.RunningRunning
	}, time.Second, 5*time.Millisecond)

	err := s.SetMode(ctx, frame.ModeCommand{Code: frame.ModeIdle})
	assert.ErrorIs(t, err, ErrModeChangeWhileRunning)
}

// TestSetModeSucceedsWhileStopped exercises the SetMode happy path
// against the simulator's ack for the idle mode (no secondary frame).
func TestSetModeSucceedsWhileStopped(t *testing.T) {
	s, _, cleanup := newHarness(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.SetMode(ctx, frame.ModeCommand{Code: frame.ModeIdle})
	assert.NoError(t, err)
}

// TestSingleInFlightRequestPerPFReturnsBusy checks that a command on a PF
// whose reply slot is already taken (reserved here directly through
// registerWaiter, standing in for a first in-flight command) fails with
// ErrBusy.
func TestSingleInFlightRequestPerPFReturnsBusy(t *testing.T) {
	s, _, cleanup := newHarness(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, 5*time.Millisecond)

	ch, err := s.registerWaiter(frame.PFFirmwareVersion)
	require.NoError(t, err)
	defer s.abandonWaiter(frame.PFFirmwareVersion)
	_ = ch

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = s.ReadFirmwareVersion(ctx)
	assert.ErrorIs(t, err, ErrBusy)
}

// TestHeartbeatStarvationFaultsSession checks that a received PF=0x13
// frame reporting the CAN1-communication fault code promotes the
// session to Faulted, the way a real PCS would report heartbeat
// starvation.
func TestHeartbeatStarvationFaultsSession(t *testing.T) {
	s, _, cleanup := newHarness(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, 5*time.Millisecond)

	peer, err := can.NewBus(can.BackendVirtual, t.Name(), 250000)
	require.NoError(t, err)
	require.NoError(t, peer.Connect())
	defer peer.Disconnect()

	id, err := identifier.Pack(identifier.ID{
		Priority: identifier.DefaultPriority,
		PF:       uint8(frame.PFRunningState),
		PS:       identifier.ControllerAddress,
		SA:       identifier.DefaultPCSAddress,
	})
	require.NoError(t, err)
	payload := frame.EncodeRunningStateFault(frame.RunningStateFault{State: frame.RunningFaulted, Fault: frame.FaultCAN1Comm})
	require.NoError(t, peer.Send(can.NewFrame(id, payload[:])))

	require.Eventually(t, func() bool {
		return s.State() == Faulted
	}, time.Second, 5*time.Millisecond, "session should fault on the documented CAN1 comm fault code")
}

// TestResetFaultsRecoversFromFaulted injects the documented CAN1 comm
// fault code to drive the session into Faulted, then checks that
// ResetFaults's ack is still delivered and moves the session back to
// Connected -- the one reply that must get through while faulted.
func TestResetFaultsRecoversFromFaulted(t *testing.T) {
	s, _, cleanup := newHarness(t)
	defer cleanup()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, 5*time.Millisecond)

	peer, err := can.NewBus(can.BackendVirtual, t.Name(), 250000)
	require.NoError(t, err)
	require.NoError(t, peer.Connect())
	defer peer.Disconnect()

	id, err := identifier.Pack(identifier.ID{
		Priority: identifier.DefaultPriority,
		PF:       uint8(frame.PFRunningState),
		PS:       identifier.ControllerAddress,
		SA:       identifier.DefaultPCSAddress,
	})
	require.NoError(t, err)
	payload := frame.EncodeRunningStateFault(frame.RunningStateFault{State: frame.RunningFaulted, Fault: frame.FaultCAN1Comm})
	require.NoError(t, peer.Send(can.NewFrame(id, payload[:])))

	require.Eventually(t, func() bool {
		return s.State() == Faulted
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.ResetFaults(ctx))
	assert.Equal(t, Connected, s.State())
}

// TestSnapshotFreshnessExpires checks that a field not updated within
// its freshness window reports stale.
func TestSnapshotFreshnessExpires(t *testing.T) {
	var snap Snapshot
	snap.DCElectrical = fieldEntry[frame.DCElectrical]{
		value:   frame.DCElectrical{VoltageV: 400},
		updated: time.Now().Add(-2 * time.Second),
		valid:   true,
	}
	assert.False(t, snap.FreshDCElectrical(time.Second))

	snap.DCElectrical.updated = time.Now()
	assert.True(t, snap.FreshDCElectrical(time.Second))
}
