// Package can defines the bus adapter contract the session controller and
// the simulator both drive: open/close/send/recv-with-deadline/reconnect/
// install-filters, implemented by a hardware backend (pkg/can/socketcan)
// and an in-process virtual backend (pkg/can/virtualcan).
package can

import (
	"errors"
	"fmt"
	"time"
)

// Frame is a single CAN 2.0B frame carrying a 29-bit extended identifier
// and up to 8 payload bytes, stamped with the adapter's monotonic receive
// clock.
type Frame struct {
	ID          uint32
	DLC         uint8
	Data        [8]byte
	RxTimestamp time.Time // monotonic; zero for frames built for Send
}

// NewFrame builds a Frame with Data truncated/zero-padded to 8 bytes.
func NewFrame(id uint32, data []byte) Frame {
	f := Frame{ID: id, DLC: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

// Filter selects inbound frames by PF/PS pair; the hardware backend pushes
// filters to the driver where possible, the virtual backend always
// filters in software.
type Filter struct {
	PF uint8
	PS uint8
}

// Send-path errors. The backends return them without retrying; the
// session's send path retries Transient once before surfacing it and
// does not retry the others.
var (
	ErrBusOff    = errors.New("can: bus off")
	ErrTimeout   = errors.New("can: send timeout")
	ErrClosed    = errors.New("can: bus closed")
	ErrTransient = errors.New("can: transient I/O error")
)

// Transient wraps cause as a retryable transient send error.
func Transient(cause error) error {
	return fmt.Errorf("%w: %v", ErrTransient, cause)
}

// Bus is the contract both CAN backends (hardware, in-process virtual)
// implement. Recv returns (Frame{}, false, nil) when deadline elapses
// without a frame, never an error.
type Bus interface {
	Connect() error
	Disconnect() error
	Send(frame Frame) error
	Recv(deadline time.Time) (Frame, bool, error)
	Reconnect() error
	InstallFilters(filters []Filter) error
}

// NewInterfaceFunc constructs a Bus for channel, used by backend
// registration (see RegisterInterface).
type NewInterfaceFunc func(channel string, bitrate int) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// RegisterInterface registers a backend constructor under name. Backend
// packages call this from an init() function.
func RegisterInterface(name string, newInterface NewInterfaceFunc) {
	interfaceRegistry[name] = newInterface
}

// NewBus constructs a Bus using the backend registered under
// interfaceKind ("socketcan", "virtualcan", ...). bitrate other than
// 250000 is accepted but the backend is expected to log a warning.
func NewBus(interfaceKind string, channel string, bitrate int) (Bus, error) {
	create, ok := interfaceRegistry[interfaceKind]
	if !ok {
		return nil, fmt.Errorf("can: unsupported interface: %s", interfaceKind)
	}
	return create(channel, bitrate)
}

// ListInterfaces returns the backend names registered via
// RegisterInterface. Never raises; returns an empty (non-nil) slice if
// none are registered yet.
func ListInterfaces() []string {
	names := make([]string, 0, len(interfaceRegistry))
	for name := range interfaceRegistry {
		names = append(names, name)
	}
	return names
}
