// Package virtualcan implements an in-process virtual CAN bus: every Bus
// bound to the same channel name exchanges frames through a shared
// broker, with no network hop — just a mutex-guarded subscriber map.
package virtualcan

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	can "github.com/ystech/pcsctl/pkg/can"
)

var log = logrus.StandardLogger()

func init() {
	can.RegisterInterface(can.BackendVirtual, NewBus)
}

type broker struct {
	mu   sync.Mutex
	subs map[string][]*Bus
}

func (br *broker) join(channel string, bus *Bus) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.subs[channel] = append(br.subs[channel], bus)
}

func (br *broker) leave(channel string, bus *Bus) {
	br.mu.Lock()
	defer br.mu.Unlock()
	peers := br.subs[channel]
	for i, b := range peers {
		if b == bus {
			br.subs[channel] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
}

func (br *broker) publish(channel string, from *Bus, frame can.Frame) {
	br.mu.Lock()
	peers := append([]*Bus(nil), br.subs[channel]...)
	br.mu.Unlock()
	for _, peer := range peers {
		if peer == from {
			continue
		}
		peer.deliver(frame)
	}
}

// defaultBroker is shared by every Bus in the process, so a session and a
// simulator constructed with the same channel name see each other without
// any external wiring.
var defaultBroker = &broker{subs: make(map[string][]*Bus)}

// Bus is the in-process virtual CAN backend.
type Bus struct {
	channel string

	mu        sync.Mutex
	connected bool
	filters   []can.Filter
	rx        chan can.Frame
}

// NewBus constructs a virtual backend joined to channel on connect.
// bitrate is accepted for interface-contract symmetry and is otherwise
// meaningless for an in-process bus.
func NewBus(channel string, bitrate int) (can.Bus, error) {
	if bitrate != 250000 {
		log.WithField("bitrate", bitrate).Warn("virtualcan: bitrate has no effect on the in-process bus")
	}
	return &Bus{channel: channel, rx: make(chan can.Frame, 256)}, nil
}

// Connect implements can.Bus.
func (b *Bus) Connect() error {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	defaultBroker.join(b.channel, b)
	return nil
}

// Disconnect implements can.Bus.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	b.mu.Unlock()
	defaultBroker.leave(b.channel, b)
	return nil
}

// Send implements can.Bus.
func (b *Bus) Send(frame can.Frame) error {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return can.ErrClosed
	}
	defaultBroker.publish(b.channel, b, frame)
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

// Reconnect implements can.Bus.
func (b *Bus) Reconnect() error {
	if err := b.Disconnect(); err != nil {
		return err
	}
	return b.Connect()
}

// InstallFilters implements can.Bus.
func (b *Bus) InstallFilters(filters []can.Filter) error {
	b.mu.Lock()
	b.filters = filters
	b.mu.Unlock()
	return nil
}

func (b *Bus) deliver(frame can.Frame) {
	if !b.passesFilters(frame.ID) {
		return
	}
	frame.RxTimestamp = time.Now()
	select {
	case b.rx <- frame:
	default:
		log.Warn("virtualcan: receive buffer full, dropping frame")
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
