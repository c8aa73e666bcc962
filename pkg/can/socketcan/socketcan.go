// Package socketcan wraps github.com/brutella/can as the hardware backend
// for pkg/can.Bus, extended for the 29-bit extended identifiers this
// protocol uses.
package socketcan

import (
	"fmt"
	"sync"
	"time"

	sockcan "github.com/brutella/can"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	can "github.com/ystech/pcsctl/pkg/can"
)

var log = logrus.StandardLogger()

func init() {
	can.RegisterInterface(can.BackendHardware, NewBus)
}

// Bus is the SocketCAN hardware backend. brutella/can has no
// receive-with-deadline primitive, so inbound frames are buffered onto a
// channel by the handle callback and Recv selects on it with
// time.NewTimer to honor its deadline.
type Bus struct {
	name    string
	bitrate int

	mu      sync.Mutex
	bus     *sockcan.Bus
	rx      chan can.Frame
	filters []can.Filter
}

// NewBus constructs a SocketCAN backend bound to the given interface name
// (e.g. "can0"). bitrate is accepted for interface-contract symmetry with
// the virtual backend; SocketCAN bitrate is set at the OS/ip-link level,
// not by this process, so a non-250000 value is only logged.
func NewBus(name string, bitrate int) (can.Bus, error) {
	if bitrate != 250000 {
		log.WithField("bitrate", bitrate).Warn("socketcan: bitrate is configured at the OS link level, not by this driver")
	}
	return &Bus{name: name, bitrate: bitrate, rx: make(chan can.Frame, 64)}, nil
}

// Connect implements can.Bus.
func (b *Bus) Connect() error {
	bus, err := sockcan.NewBusForInterfaceWithName(b.name)
	if err != nil {
		return fmt.Errorf("socketcan: open %s: %w", b.name, err)
	}
	b.mu.Lock()
	b.bus = bus
	b.mu.Unlock()

	bus.Subscribe(b)
	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			log.WithError(err).Warn("socketcan: connection loop ended")
		}
	}()
	return nil
}

// Disconnect implements can.Bus.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	bus := b.bus
	b.mu.Unlock()
	if bus == nil {
		return nil
	}
	return bus.Disconnect()
}

// Send implements can.Bus.
func (b *Bus) Send(frame can.Frame) error {
	b.mu.Lock()
	bus := b.bus
	b.mu.Unlock()
	if bus == nil {
		return can.ErrClosed
	}
	err := bus.Publish(sockcan.Frame{
		ID:     frame.ID | uint32(unix.CAN_EFF_FLAG),
		Length: frame.DLC,
		Data:   frame.Data,
	})
	if err != nil {
		return can.Transient(err)
	}
	return nil
}

// Recv implements can.Bus.
func (b *Bus) Recv(deadline time.Time) (can.Frame, bool, error) {
	timeout := time.Until(deadline)
	if timeout < 0 {
		timeout = 0
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame, ok := <-b.rx:
		if !ok {
			return can.Frame{}, false, can.ErrClosed
		}
		return frame, true, nil
	case <-timer.C:
		return can.Frame{}, false, nil
	}
}

// Reconnect implements can.Bus. It retries the underlying open once;
// backoff scheduling between calls is pkg/session's responsibility.
func (b *Bus) Reconnect() error {
	if err := b.Disconnect(); err != nil {
		log.WithError(err).Debug("socketcan: disconnect before reconnect failed")
	}
	return b.Connect()
}

// InstallFilters implements can.Bus. SocketCAN kernel-side filtering is
// not exposed by brutella/can, so filters are applied in software in
// handle.
func (b *Bus) InstallFilters(filters []can.Filter) error {
	b.mu.Lock()
	b.filters = filters
	b.mu.Unlock()
	return nil
}

// Handle implements brutella/can's frame handler interface.
func (b *Bus) Handle(frame sockcan.Frame) {
	id := frame.ID &^ uint32(unix.CAN_EFF_FLAG)
	if !b.passesFilters(id) {
		return
	}
	f := can.Frame{ID: id, DLC: frame.Length, RxTimestamp: time.Now()}
	copy(f.Data[:], frame.Data[:])
	select {
	case b.rx <- f:
	default:
		log.Warn("socketcan: receive buffer full, dropping frame")
	}
}

func (b *Bus) passesFilters(id uint32) bool {
	b.mu.Lock()
	filters := b.filters
	b.mu.Unlock()
	if len(filters) == 0 {
		return true
	}
	pf := uint8(id >> 16)
	ps := uint8(id >> 8)
	for _, f := range filters {
		if f.PF == pf && f.PS == ps {
			return true
		}
	}
	return false
}
