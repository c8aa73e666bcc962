package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystech/pcsctl/pkg/can"
	"github.com/ystech/pcsctl/pkg/frame"
	"github.com/ystech/pcsctl/pkg/identifier"

	_ "github.com/ystech/pcsctl/pkg/can/virtualcan"
)

func newPeer(t *testing.T, channel string) can.Bus {
	t.Helper()
	bus, err := can.NewBus(can.BackendVirtual, channel, 250000)
	require.NoError(t, err)
	require.NoError(t, bus.Connect())
	t.Cleanup(func() { _ = bus.Disconnect() })
	return bus
}

func sendToPCS(t *testing.T, bus can.Bus, pf frame.PF, payload [8]byte) {
	t.Helper()
	id, err := identifier.Pack(identifier.ID{
		Priority: identifier.DefaultPriority,
		PF:       uint8(pf),
		PS:       identifier.DefaultPCSAddress,
		SA:       identifier.ControllerAddress,
	})
	require.NoError(t, err)
	require.NoError(t, bus.Send(can.NewFrame(id, payload[:])))
}

func recvFromPCS(t *testing.T, bus can.Bus, pf frame.PF, within time.Duration) ([8]byte, bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for {
		f, ok, err := bus.Recv(deadline)
		require.NoError(t, err)
		if !ok {
			return [8]byte{}, false
		}
		id, err := identifier.Unpack(f.ID)
		require.NoError(t, err)
		if frame.PF(id.PF) == pf && identifier.FromPCS(id, identifier.DefaultPCSAddress) {
			return f.Data, true
		}
	}
}

func TestSimulatorAcksControlCommand(t *testing.T) {
	channel := t.Name()
	peer := newPeer(t, channel)

	opts := NewOptions()
	opts.TickPeriod = 20 * time.Millisecond
	simBus, err := can.NewBus(can.BackendVirtual, channel, 250000)
	require.NoError(t, err)
	sim := New(simBus, opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sim.Start(ctx))
	defer sim.Stop()

	on := true
	payload, _, err := frame.EncodeControl(&frame.ControlBits{}, &on, nil)
	require.NoError(t, err)
	sendToPCS(t, peer, frame.PFControl, payload)

	reply, ok := recvFromPCS(t, peer, frame.PFControl, time.Second)
	require.True(t, ok, "expected an ack for the control command")
	assert.True(t, frame.DecodeSetReply(reply[:]))
}

func TestSimulatorLatchesFaultAfterHeartbeatSilence(t *testing.T) {
	channel := t.Name()
	peer := newPeer(t, channel)

	opts := NewOptions()
	opts.TickPeriod = 10 * time.Millisecond
	opts.HeartbeatTimeout = 40 * time.Millisecond
	simBus, err := can.NewBus(can.BackendVirtual, channel, 250000)
	require.NoError(t, err)
	sim := New(simBus, opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sim.Start(ctx))
	defer sim.Stop()

	var sawFault bool
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		data, ok := recvFromPCS(t, peer, frame.PFRunningState, 200*time.Millisecond)
		if !ok {
			continue
		}
		rsf, err := frame.DecodeRunningStateFault(data[:])
		require.NoError(t, err)
		if rsf.Fault == frame.FaultCAN1Comm {
			sawFault = true
			break
		}
	}
	assert.True(t, sawFault, "simulator should report the CAN1 comm fault after heartbeat silence")
}

func TestSimulatorNacksModeChangeWhileRunning(t *testing.T) {
	channel := t.Name()
	peer := newPeer(t, channel)

	opts := NewOptions()
	opts.TickPeriod = 10 * time.Millisecond
	simBus, err := can.NewBus(can.BackendVirtual, channel, 250000)
	require.NoError(t, err)
	sim := New(simBus, opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sim.Start(ctx))
	defer sim.Stop()

	on := true
	controlPayload, _, err := frame.EncodeControl(&frame.ControlBits{}, &on, nil)
	require.NoError(t, err)
	sendToPCS(t, peer, frame.PFControl, controlPayload)
	_, ok := recvFromPCS(t, peer, frame.PFControl, time.Second)
	require.True(t, ok)

	primary, _, err := frame.EncodeSetMode(frame.ModeCommand{Code: frame.ModeIdle})
	require.NoError(t, err)
	sendToPCS(t, peer, frame.PFSetMode, primary)

	reply, ok := recvFromPCS(t, peer, frame.PFSetMode, time.Second)
	require.True(t, ok)
	assert.False(t, frame.DecodeSetReply(reply[:]), "mode change should be nacked while running")
}
