package session

import (
	"time"

	"github.com/ystech/pcsctl/pkg/frame"
)

// defaultFreshness is the "fresh within T" window per spec §3.
const defaultFreshness = 1 * time.Second

// fieldEntry pairs a decoded value with the monotonic time it last
// updated. Each entry updates as one unit, never partially — the snapshot
// never exposes a half-decoded frame.
type fieldEntry[T any] struct {
	value   T
	updated time.Time
	valid   bool
}

func (e fieldEntry[T]) fresh(now time.Time, within time.Duration) bool {
	return e.valid && now.Sub(e.updated) <= within
}

// Snapshot is the device-state aggregate: the most recently decoded value
// of every RX frame family, each timestamped. Callers get an immutable
// copy from Session.Snapshot(); updates happen only on the receive pump,
// under the session's single mutex, as one record-atomic assignment.
type Snapshot struct {
	DCElectrical      fieldEntry[frame.DCElectrical]
	CapacityEnergy    fieldEntry[frame.CapacityEnergy]
	RunningStateFault fieldEntry[frame.RunningStateFault]
	GridVoltages      fieldEntry[frame.GridVoltages]
	GridCurrents      fieldEntry[frame.GridCurrents]
	SystemPower       fieldEntry[frame.SystemPower]
	DCHighResolution  fieldEntry[frame.DCHighResolution]
}

// DCElectricalValue returns the last decoded DC electrical reading, its
// update time, and whether it is fresh within the default window.
func (s Snapshot) DCElectricalValue() (frame.DCElectrical, time.Time, bool) {
	return s.DCElectrical.value, s.DCElectrical.updated, s.FreshDCElectrical(0)
}

// FreshDCElectrical reports whether the DC electrical field was updated
// within the last `within` (defaultFreshness if within <= 0).
func (s Snapshot) FreshDCElectrical(within time.Duration) bool {
	return s.DCElectrical.fresh(time.Now(), freshnessOrDefault(within))
}

// CapacityEnergyValue returns the last decoded capacity/energy reading,
// its update time, and whether it is fresh within the default window.
func (s Snapshot) CapacityEnergyValue() (frame.CapacityEnergy, time.Time, bool) {
	return s.CapacityEnergy.value, s.CapacityEnergy.updated, s.FreshCapacityEnergy(0)
}

// FreshCapacityEnergy reports freshness of the capacity/energy field.
func (s Snapshot) FreshCapacityEnergy(within time.Duration) bool {
	return s.CapacityEnergy.fresh(time.Now(), freshnessOrDefault(within))
}

// RunningStateFaultValue returns the last decoded running-state/fault
// reading, its update time, and whether it is fresh within the default
// window.
func (s Snapshot) RunningStateFaultValue() (frame.RunningStateFault, time.Time, bool) {
	return s.RunningStateFault.value, s.RunningStateFault.updated, s.FreshRunningStateFault(0)
}

// FreshRunningStateFault reports freshness of the running-state/fault field.
func (s Snapshot) FreshRunningStateFault(within time.Duration) bool {
	return s.RunningStateFault.fresh(time.Now(), freshnessOrDefault(within))
}

// GridVoltagesValue returns the last decoded grid-voltages reading, its
// update time, and whether it is fresh within the default window.
func (s Snapshot) GridVoltagesValue() (frame.GridVoltages, time.Time, bool) {
	return s.GridVoltages.value, s.GridVoltages.updated, s.FreshGridVoltages(0)
}

// FreshGridVoltages reports freshness of the grid-voltages field.
func (s Snapshot) FreshGridVoltages(within time.Duration) bool {
	return s.GridVoltages.fresh(time.Now(), freshnessOrDefault(within))
}

// GridCurrentsValue returns the last decoded grid-currents reading, its
// update time, and whether it is fresh within the default window.
func (s Snapshot) GridCurrentsValue() (frame.GridCurrents, time.Time, bool) {
	return s.GridCurrents.value, s.GridCurrents.updated, s.FreshGridCurrents(0)
}

// FreshGridCurrents reports freshness of the grid-currents field.
func (s Snapshot) FreshGridCurrents(within time.Duration) bool {
	return s.GridCurrents.fresh(time.Now(), freshnessOrDefault(within))
}

// SystemPowerValue returns the last decoded system-power reading, its
// update time, and whether it is fresh within the default window.
func (s Snapshot) SystemPowerValue() (frame.SystemPower, time.Time, bool) {
	return s.SystemPower.value, s.SystemPower.updated, s.FreshSystemPower(0)
}

// FreshSystemPower reports freshness of the system-power field.
func (s Snapshot) FreshSystemPower(within time.Duration) bool {
	return s.SystemPower.fresh(time.Now(), freshnessOrDefault(within))
}

// DCHighResolutionValue returns the last decoded high-resolution DC
// reading, its update time, and whether it is fresh within the default
// window.
func (s Snapshot) DCHighResolutionValue() (frame.DCHighResolution, time.Time, bool) {
	return s.DCHighResolution.value, s.DCHighResolution.updated, s.FreshDCHighResolution(0)
}

// FreshDCHighResolution reports freshness of the high-resolution DC field.
func (s Snapshot) FreshDCHighResolution(within time.Duration) bool {
	return s.DCHighResolution.fresh(time.Now(), freshnessOrDefault(within))
}

func freshnessOrDefault(within time.Duration) time.Duration {
	if within <= 0 {
		return defaultFreshness
	}
	return within
}

// apply updates snap in place from a decoded frame, record-atomically:
// each case assigns exactly one field.
func (s *Snapshot) apply(d frame.Decoded, now time.Time) {
	switch {
	case d.DCElectrical != nil:
		s.DCElectrical = fieldEntry[frame.DCElectrical]{value: *d.DCElectrical, updated: now, valid: true}
	case d.CapacityEnergy != nil:
		s.CapacityEnergy = fieldEntry[frame.CapacityEnergy]{value: *d.CapacityEnergy, updated: now, valid: true}
	case d.RunningStateFault != nil:
		s.RunningStateFault = fieldEntry[frame.RunningStateFault]{value: *d.RunningStateFault, updated: now, valid: true}
	case d.GridVoltages != nil:
		s.GridVoltages = fieldEntry[frame.GridVoltages]{value: *d.GridVoltages, updated: now, valid: true}
	case d.GridCurrents != nil:
		s.GridCurrents = fieldEntry[frame.GridCurrents]{value: *d.GridCurrents, updated: now, valid: true}
	case d.SystemPower != nil:
		s.SystemPower = fieldEntry[frame.SystemPower]{value: *d.SystemPower, updated: now, valid: true}
	case d.DCHighResolution != nil:
		s.DCHighResolution = fieldEntry[frame.DCHighResolution]{value: *d.DCHighResolution, updated: now, valid: true}
	}
}
