package frame

import "fmt"

// Decoded is the tagged result of dispatching an inbound payload by PF: at
// most one of its fields is populated, matching the PF that produced it.
// The receive pump uses this instead of per-PF type assertions so adding a
// PF means adding one case to Decode below, not a new switch elsewhere.
type Decoded struct {
	PF                PF
	DCElectrical      *DCElectrical
	CapacityEnergy    *CapacityEnergy
	RunningStateFault *RunningStateFault
	GridVoltages      *GridVoltages
	GridCurrents      *GridCurrents
	SystemPower       *SystemPower
	DCHighResolution  *DCHighResolution
}

// Decode dispatches data to the decoder registered for pf. Returns
// ErrUnknownPF for any PF with no registered telemetry decoder (this
// covers command/reply PFs, which callers decode directly with their own
// typed functions).
func Decode(pf PF, data []byte) (Decoded, error) {
	switch pf {
	case PFDCElectrical:
		v, err := DecodeDCElectrical(data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{PF: pf, DCElectrical: &v}, nil
	case PFCapacityEnergy:
		v, err := DecodeCapacityEnergy(data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{PF: pf, CapacityEnergy: &v}, nil
	case PFRunningState:
		v, err := DecodeRunningStateFault(data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{PF: pf, RunningStateFault: &v}, nil
	case PFGridVoltages:
		v, err := DecodeGridVoltages(data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{PF: pf, GridVoltages: &v}, nil
	case PFGridCurrents:
		v, err := DecodeGridCurrents(data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{PF: pf, GridCurrents: &v}, nil
	case PFSystemPower:
		v, err := DecodeSystemPower(data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{PF: pf, SystemPower: &v}, nil
	case PFDCHighResolution:
		v, err := DecodeDCHighResolution(data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{PF: pf, DCHighResolution: &v}, nil
	default:
		return Decoded{}, fmt.Errorf("%w: 0x%02X", ErrUnknownPF, uint8(pf))
	}
}
