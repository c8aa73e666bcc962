// Package session implements the concurrent session controller: the
// receive pump, the 200 ms heartbeat producer, the reply registry, the
// device snapshot, and the command surface, run under a
// context.CancelFunc + sync.WaitGroup lifecycle with a mutex-guarded
// listener set.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ystech/pcsctl/pkg/can"
	"github.com/ystech/pcsctl/pkg/config"
	"github.com/ystech/pcsctl/pkg/frame"
	"github.com/ystech/pcsctl/pkg/identifier"
)

// State is the session's connection state machine (spec §4.4).
type State uint8

// Session states.
const (
	Disconnected State = iota
	Connected
	Degraded
	Faulted
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	case Faulted:
		return "faulted"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// SubscriberFunc is invoked on every decoded inbound frame. It runs on the
// receive-pump goroutine and must not block; a panic is caught and logged
// at WARNING rather than killing the pump.
type SubscriberFunc func(pf uint8, decoded frame.Decoded)

type pendingReply struct {
	ch chan replyResult
}

type replyResult struct {
	data []byte
	err  error
}

// Session owns one bus adapter, the receive pump, the heartbeat loop, and
// the shared device-state snapshot. One mutex guards the snapshot,
// last-RX time, and the reply registry together, per spec's lock-
// discipline invariant; callers never hold it across a bus Send.
type Session struct {
	cfg config.Config
	bus can.Bus
	log *logrus.Logger

	state    atomic.Int32
	stopping atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	snapshot    Snapshot
	lastRxTime  time.Time
	registry    map[frame.PF]*pendingReply
	lastControl *frame.ControlBits
	busOffAt    []time.Time
	hbFailures  int

	subMu       sync.Mutex
	subscribers []SubscriberFunc
}

// New constructs a Session over bus with cfg. log defaults to
// logrus.StandardLogger() if nil.
func New(bus can.Bus, cfg config.Config, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Session{
		cfg:      cfg,
		bus:      bus,
		log:      log,
		registry: make(map[frame.PF]*pendingReply),
	}
	s.state.Store(int32(Disconnected))
	return s
}

// State returns the current state machine value; safe to call without
// holding any lock.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.log.WithFields(logrus.Fields{"from": prev, "to": next}).Info("session state transition")
	}
}

// Snapshot returns a copy of the current device-state aggregate.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Subscribe registers cb to be invoked for every decoded inbound frame.
func (s *Session) Subscribe(cb SubscriberFunc) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, cb)
}

func (s *Session) notify(pf uint8, decoded frame.Decoded) {
	s.subMu.Lock()
	subs := append([]SubscriberFunc(nil), s.subscribers...)
	s.subMu.Unlock()
	for _, cb := range subs {
		s.invokeSubscriber(cb, pf, decoded)
	}
}

func (s *Session) invokeSubscriber(cb SubscriberFunc, pf uint8, decoded frame.Decoded) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("recover", r).Warn("session: subscriber callback panicked, contained")
		}
	}()
	cb(pf, decoded)
}

// Start connects the bus and launches the receive pump and heartbeat
// goroutines. ctx bounds their lifetime in addition to Close().
func (s *Session) Start(ctx context.Context) error {
	if err := s.bus.Connect(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.receivePump(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.heartbeatLoop(runCtx)
	}()

	return nil
}

// Close stops background activity, closes the adapter, and joins both
// goroutines with a 2 s deadline. A second Close is a no-op.
func (s *Session) Close() error {
	if !s.stopping.CompareAndSwap(false, true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	err := s.bus.Disconnect()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.log.Warn("session: close timed out waiting for background goroutines")
	}

	s.setState(Closed)
	return err
}

// pcsID builds the identifier for an outbound frame to the PCS.
func (s *Session) pcsID(pf frame.PF) (uint32, error) {
	return identifier.Pack(identifier.New(uint8(pf), s.cfg.PCSAddr))
}

// sendFrame sends an 8-byte payload on pf to the PCS, retrying exactly
// once on a transient bus error before surfacing it (spec §4.3/§7).
func (s *Session) sendFrame(pf frame.PF, payload [8]byte) error {
	id, err := s.pcsID(pf)
	if err != nil {
		return err
	}
	f := can.NewFrame(id, payload[:])

	err = s.bus.Send(f)
	if errors.Is(err, can.ErrTransient) {
		s.log.WithFields(logrus.Fields{"pf": pf, "err": err}).Debug("session: send failed, retrying once")
		err = s.bus.Send(f)
	}
	if err != nil {
		s.recordSendFailure(err)
	}
	return err
}

func (s *Session) recordSendFailure(err error) {
	if !errors.Is(err, can.ErrBusOff) {
		return
	}
	s.mu.Lock()
	now := time.Now()
	s.busOffAt = append(s.busOffAt, now)
	cutoff := now.Add(-10 * time.Second)
	kept := s.busOffAt[:0]
	for _, t := range s.busOffAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.busOffAt = kept
	promote := len(s.busOffAt) >= 3
	s.mu.Unlock()

	if promote {
		s.log.Warn("session: bus-off reported three times within 10s, faulting session")
		s.setState(Faulted)
	}
}
