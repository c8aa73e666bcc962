// Package simulator implements an in-process virtual PCS peer: a
// periodic telemetry producer and command responder driven by a
// context.CancelFunc + sync.WaitGroup + time.NewTicker lifecycle.
package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ystech/pcsctl/pkg/can"
	"github.com/ystech/pcsctl/pkg/frame"
	"github.com/ystech/pcsctl/pkg/identifier"
)

// Options configure a Simulator. The zero value is not usable; use
// NewOptions for documented defaults.
type Options struct {
	TickPeriod       time.Duration // telemetry + command-poll cadence
	NoiseAmplitude   float64       // +/- fraction applied to telemetry values
	HeartbeatTimeout time.Duration // silence before reporting FaultCAN1Comm
	PCSAddr          uint8
	Rand             *rand.Rand
}

// NewOptions returns documented defaults: 200ms tick, 2% noise, 5s
// heartbeat timeout matching the hard deadline spec'd for the real PCS.
func NewOptions() Options {
	return Options{
		TickPeriod:       200 * time.Millisecond,
		NoiseAmplitude:   0.02,
		HeartbeatTimeout: 5 * time.Second,
		PCSAddr:          identifier.DefaultPCSAddress,
		Rand:             rand.New(rand.NewSource(1)),
	}
}

// Simulator is a virtual PCS: it answers PF=0x0B/0x0C/0x0F set commands
// as soon as it receives them (the reply is not held back to the next
// tick), emits the seven telemetry frames every tick with a
// little noise, and raises the documented CAN1-communication fault if no
// heartbeat arrives within HeartbeatTimeout.
type Simulator struct {
	bus  can.Bus
	opts Options
	log  *logrus.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	running       bool
	control       frame.ControlBits
	lastHeartbeat time.Time
	fault         frame.FaultCode
}

// New constructs a Simulator bound to bus. Call Start to begin producing.
func New(bus can.Bus, opts Options, log *logrus.Logger) *Simulator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Simulator{bus: bus, opts: opts, log: log}
}

// Start connects the bus and launches the simulator's processing loop.
func (sim *Simulator) Start(ctx context.Context) error {
	if err := sim.bus.Connect(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	sim.cancel = cancel
	sim.mu.Lock()
	sim.lastHeartbeat = time.Now()
	sim.mu.Unlock()

	sim.wg.Add(1)
	go func() {
		defer sim.wg.Done()
		sim.loop(runCtx)
	}()
	return nil
}

// Stop cancels the processing loop and disconnects the bus.
func (sim *Simulator) Stop() error {
	if sim.cancel != nil {
		sim.cancel()
	}
	sim.wg.Wait()
	return sim.bus.Disconnect()
}

func (sim *Simulator) loop(ctx context.Context) {
	ticker := time.NewTicker(sim.opts.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deadline := time.Now().Add(sim.opts.TickPeriod)
		for {
			f, ok, err := sim.bus.Recv(deadline)
			if err != nil {
				sim.log.WithError(err).Debug("simulator: recv error")
				break
			}
			if !ok {
				break
			}
			sim.handleInbound(f)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sim.checkHeartbeatTimeout()
		sim.publishTelemetry()
	}
}

func (sim *Simulator) handleInbound(f can.Frame) {
	id, err := identifier.Unpack(f.ID)
	if err != nil || !identifier.ToPCS(id, sim.opts.PCSAddr) {
		return
	}
	pf := frame.PF(id.PF)

	switch pf {
	case frame.PFHeartbeat:
		sim.mu.Lock()
		sim.lastHeartbeat = time.Now()
		sim.mu.Unlock()
	case frame.PFControl:
		sim.handleControl(f.Data)
	case frame.PFSetMode, frame.PFSetModeExt1:
		sim.handleSetMode(pf, f.Data)
	case frame.PFFirmwareVersion:
		sim.reply(frame.PFFirmwareVersion, frame.EncodeFirmwareVersionReply(frame.FirmwareVersion{Major: 1, Minor: 2, Patch: 3}))
	case frame.PFProtectionParams:
		payload, err := frame.EncodeProtectionParamsReply(frame.ProtectionParams{MaxVoltageV: 850, MinVoltageV: 200, MaxCurrentA: 400})
		if err != nil {
			sim.log.WithError(err).Warn("simulator: encode protection params reply")
			return
		}
		sim.reply(frame.PFProtectionParams, payload)
	}
}

func (sim *Simulator) handleControl(data [8]byte) {
	cb, err := frame.DecodeControl(data[:])
	if err != nil {
		return
	}
	sim.mu.Lock()
	sim.control = cb
	sim.running = cb.Run
	if cb.ClearFaults {
		sim.fault = frame.FaultNone
	}
	sim.mu.Unlock()
	sim.reply(frame.PFControl, frame.EncodeSetReply(true))
}

// handleSetMode NACKs a mode change while running, matching the
// command-surface invariant the session enforces client-side; the
// simulator enforces it independently so a test can exercise a
// misbehaving client.
func (sim *Simulator) handleSetMode(pf frame.PF, data [8]byte) {
	sim.mu.Lock()
	running := sim.running
	sim.mu.Unlock()

	if running {
		sim.reply(pf, frame.EncodeSetReply(false))
		return
	}
	sim.reply(pf, frame.EncodeSetReply(true))
}

func (sim *Simulator) reply(pf frame.PF, payload [8]byte) {
	id, err := identifier.Pack(identifier.ID{
		Priority: identifier.DefaultPriority,
		PF:       uint8(pf),
		PS:       identifier.ControllerAddress,
		SA:       sim.opts.PCSAddr,
	})
	if err != nil {
		sim.log.WithError(err).Warn("simulator: pack reply identifier")
		return
	}
	if err := sim.bus.Send(can.NewFrame(id, payload[:])); err != nil {
		sim.log.WithError(err).Debug("simulator: reply send failed")
	}
}

// checkHeartbeatTimeout latches the documented CAN1-communication fault
// once the host has been silent for longer than HeartbeatTimeout. The
// fault is latched state, not a one-shot event, so it survives into every
// subsequent publishTelemetry tick until ResetFaults clears it.
func (sim *Simulator) checkHeartbeatTimeout() {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if time.Since(sim.lastHeartbeat) < sim.opts.HeartbeatTimeout {
		return
	}
	sim.fault = frame.FaultCAN1Comm
	sim.running = false
}

func (sim *Simulator) publishTelemetry() {
	sim.mu.Lock()
	running := sim.running
	fault := sim.fault
	sim.mu.Unlock()

	state := frame.RunningStopped
	if fault != frame.FaultNone {
		state = frame.RunningFaulted
	} else if running {
		state = frame.RunningRunning
	}

	sim.reply(frame.PFRunningState, frame.EncodeRunningStateFault(frame.RunningStateFault{State: state, Fault: fault}))

	dc, err := frame.EncodeDCElectrical(sim.noisyDCElectrical(frame.DCElectrical{VoltageV: 400, CurrentA: -10, PowerW: -4000, TemperatureC: 35}))
	sim.logEncodeErr(frame.PFDCElectrical, err)
	sim.reply(frame.PFDCElectrical, dc)

	capE, err := frame.EncodeCapacityEnergy(sim.noisyCapacityEnergy(frame.CapacityEnergy{RemainingCapacityPct: 72, ChargeEnergyKWh: 120, DischargeEnergyKWh: 95}))
	sim.logEncodeErr(frame.PFCapacityEnergy, err)
	sim.reply(frame.PFCapacityEnergy, capE)

	gv, err := frame.EncodeGridVoltages(sim.noisyGridVoltages(frame.GridVoltages{U: 230, V: 230, W: 230}))
	sim.logEncodeErr(frame.PFGridVoltages, err)
	sim.reply(frame.PFGridVoltages, gv)

	gc, err := frame.EncodeGridCurrents(sim.noisyGridCurrents(frame.GridCurrents{U: 10, V: 10, W: 10, PowerFactor: 0.98}))
	sim.logEncodeErr(frame.PFGridCurrents, err)
	sim.reply(frame.PFGridCurrents, gc)

	sp, err := frame.EncodeSystemPower(sim.noisySystemPower(frame.SystemPower{ActivePowerW: -4000, ReactivePowerVar: 100, ApparentPowerVA: 4001, FrequencyHz: 50}))
	sim.logEncodeErr(frame.PFSystemPower, err)
	sim.reply(frame.PFSystemPower, sp)

	hr, err := frame.EncodeDCHighResolution(sim.noisyDCHighResolution(frame.DCHighResolution{VoltageV: 400, CurrentA: -10}))
	sim.logEncodeErr(frame.PFDCHighResolution, err)
	sim.reply(frame.PFDCHighResolution, hr)
}

// logEncodeErr surfaces an unexpected encode failure; the fixed
// in-range values above should never trip ErrOutOfRange, but jitter is
// randomized, so this is not provably impossible.
func (sim *Simulator) logEncodeErr(pf frame.PF, err error) {
	if err != nil {
		sim.log.WithError(err).WithField("pf", pf).Warn("simulator: telemetry encode failed")
	}
}

func (sim *Simulator) jitter(x float64) float64 {
	return x * (1 + (sim.opts.Rand.Float64()*2-1)*sim.opts.NoiseAmplitude)
}

func (sim *Simulator) noisyDCElectrical(t frame.DCElectrical) frame.DCElectrical {
	t.VoltageV = sim.jitter(t.VoltageV)
	t.CurrentA = sim.jitter(t.CurrentA)
	t.PowerW = sim.jitter(t.PowerW)
	return t
}

func (sim *Simulator) noisyCapacityEnergy(t frame.CapacityEnergy) frame.CapacityEnergy {
	t.RemainingCapacityPct = sim.jitter(t.RemainingCapacityPct)
	return t
}

func (sim *Simulator) noisyGridVoltages(t frame.GridVoltages) frame.GridVoltages {
	t.U, t.V, t.W = sim.jitter(t.U), sim.jitter(t.V), sim.jitter(t.W)
	return t
}

func (sim *Simulator) noisyGridCurrents(t frame.GridCurrents) frame.GridCurrents {
	t.U, t.V, t.W = sim.jitter(t.U), sim.jitter(t.V), sim.jitter(t.W)
	return t
}

func (sim *Simulator) noisySystemPower(t frame.SystemPower) frame.SystemPower {
	t.ActivePowerW = sim.jitter(t.ActivePowerW)
	return t
}

func (sim *Simulator) noisyDCHighResolution(t frame.DCHighResolution) frame.DCHighResolution {
	t.VoltageV = sim.jitter(t.VoltageV)
	t.CurrentA = sim.jitter(t.CurrentA)
	return t
}

