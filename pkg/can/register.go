package can

// Backend kinds named by spec: a hardware SocketCAN adapter and an
// in-process virtual bus used by the simulator and by tests.
const (
	BackendHardware = "socketcan"
	BackendVirtual  = "virtualcan"
)

// ImplementedBackends lists the backend kinds this module registers.
// pkg/can/socketcan and pkg/can/virtualcan each call RegisterInterface
// from their own init().
var ImplementedBackends = []string{
	BackendHardware,
	BackendVirtual,
}
