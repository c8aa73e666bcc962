package frame

// DCElectrical is the decoded PF=0x11 frame: DC bus voltage/current/power
// and converter temperature. Negative CurrentA/PowerW means charging, per
// the sign-convention invariant.
type DCElectrical struct {
	VoltageV     float64
	CurrentA     float64
	PowerW       float64
	TemperatureC float64
}

// EncodeDCElectrical packs v into a PF=0x11 payload.
func EncodeDCElectrical(v DCElectrical) ([8]byte, error) {
	var out [8]byte
	vRaw, ok := scaleToRawU16(v.VoltageV, 0.1)
	if !ok {
		return out, OutOfRange(PFDCElectrical, "voltage")
	}
	putUint16BE(out[0:2], vRaw)

	iRaw, ok := scaleToRawI16(v.CurrentA, 0.01)
	if !ok {
		return out, OutOfRange(PFDCElectrical, "current")
	}
	putUint16BE(out[2:4], uint16(iRaw))

	pRaw, ok := scaleToRawI16(v.PowerW, 1)
	if !ok {
		return out, OutOfRange(PFDCElectrical, "power")
	}
	putUint16BE(out[4:6], uint16(pRaw))

	tRaw, ok := scaleToRawI16(v.TemperatureC, 0.1)
	if !ok {
		return out, OutOfRange(PFDCElectrical, "temperature")
	}
	putUint16BE(out[6:8], uint16(tRaw))
	return out, nil
}

// DecodeDCElectrical decodes a PF=0x11 payload.
func DecodeDCElectrical(data []byte) (DCElectrical, error) {
	if err := requireLen(PFDCElectrical, data, 8); err != nil {
		return DCElectrical{}, err
	}
	return DCElectrical{
		VoltageV:     rawToScaleU(uint32(getUint16BE(data[0:2])), 0.1),
		CurrentA:     rawToScale(int32(getInt16BE(data[2:4])), 0.01),
		PowerW:       rawToScale(int32(getInt16BE(data[4:6])), 1),
		TemperatureC: rawToScale(int32(getInt16BE(data[6:8])), 0.1),
	}, nil
}

// CapacityEnergy is the decoded PF=0x12 frame.
type CapacityEnergy struct {
	RemainingCapacityPct float64
	ChargeEnergyKWh      float64
	DischargeEnergyKWh   float64
}

// EncodeCapacityEnergy packs v into a PF=0x12 payload.
func EncodeCapacityEnergy(v CapacityEnergy) ([8]byte, error) {
	var out [8]byte
	capRaw, ok := scaleToRawU16(v.RemainingCapacityPct, 0.1)
	if !ok {
		return out, OutOfRange(PFCapacityEnergy, "remaining_capacity")
	}
	putUint16BE(out[0:2], capRaw)

	chgRaw, ok := scaleToRawU16(v.ChargeEnergyKWh, 0.1)
	if !ok {
		return out, OutOfRange(PFCapacityEnergy, "charge_energy")
	}
	putUint16BE(out[2:4], chgRaw)

	dchRaw, ok := scaleToRawU16(v.DischargeEnergyKWh, 0.1)
	if !ok {
		return out, OutOfRange(PFCapacityEnergy, "discharge_energy")
	}
	putUint16BE(out[4:6], dchRaw)
	return out, nil
}

// DecodeCapacityEnergy decodes a PF=0x12 payload.
func DecodeCapacityEnergy(data []byte) (CapacityEnergy, error) {
	if err := requireLen(PFCapacityEnergy, data, 6); err != nil {
		return CapacityEnergy{}, err
	}
	return CapacityEnergy{
		RemainingCapacityPct: rawToScaleU(uint32(getUint16BE(data[0:2])), 0.1),
		ChargeEnergyKWh:      rawToScaleU(uint32(getUint16BE(data[2:4])), 0.1),
		DischargeEnergyKWh:   rawToScaleU(uint32(getUint16BE(data[4:6])), 0.1),
	}, nil
}

// RunningState is the PCS run state carried in PF=0x13.
type RunningState uint16

// Documented running states.
const (
	RunningStopped  RunningState = 0x0000
	RunningStarting RunningState = 0x0001
	RunningRunning  RunningState = 0x0002
	RunningStopping RunningState = 0x0003
	RunningFaulted  RunningState = 0x0004
)

// FaultCode is the PCS fault code carried in PF=0x13.
type FaultCode uint16

// Documented fault codes.
const (
	FaultNone     FaultCode = 0x0000
	FaultCAN1Comm FaultCode = 0x800D
)

// RunningStateFault is the decoded PF=0x13 frame.
type RunningStateFault struct {
	State RunningState
	Fault FaultCode
}

// EncodeRunningStateFault packs v into a PF=0x13 payload.
func EncodeRunningStateFault(v RunningStateFault) [8]byte {
	var out [8]byte
	putUint16BE(out[0:2], uint16(v.State))
	putUint16BE(out[2:4], uint16(v.Fault))
	return out
}

// DecodeRunningStateFault decodes a PF=0x13 payload.
func DecodeRunningStateFault(data []byte) (RunningStateFault, error) {
	if err := requireLen(PFRunningState, data, 4); err != nil {
		return RunningStateFault{}, err
	}
	return RunningStateFault{
		State: RunningState(getUint16BE(data[0:2])),
		Fault: FaultCode(getUint16BE(data[2:4])),
	}, nil
}

// GridVoltages is the decoded PF=0x14 frame: three-phase AC grid voltages.
type GridVoltages struct {
	U, V, W float64
}

// EncodeGridVoltages packs v into a PF=0x14 payload.
func EncodeGridVoltages(v GridVoltages) ([8]byte, error) {
	var out [8]byte
	for i, val := range []float64{v.U, v.V, v.W} {
		raw, ok := scaleToRawU16(val, 0.1)
		if !ok {
			return out, OutOfRange(PFGridVoltages, "phase_voltage")
		}
		putUint16BE(out[i*2:i*2+2], raw)
	}
	return out, nil
}

// DecodeGridVoltages decodes a PF=0x14 payload.
func DecodeGridVoltages(data []byte) (GridVoltages, error) {
	if err := requireLen(PFGridVoltages, data, 6); err != nil {
		return GridVoltages{}, err
	}
	return GridVoltages{
		U: rawToScaleU(uint32(getUint16BE(data[0:2])), 0.1),
		V: rawToScaleU(uint32(getUint16BE(data[2:4])), 0.1),
		W: rawToScaleU(uint32(getUint16BE(data[4:6])), 0.1),
	}, nil
}

// GridCurrents is the decoded PF=0x15 frame: three-phase AC grid currents
// and power factor. Currents are signed (regenerative flow reverses sign).
type GridCurrents struct {
	U, V, W     float64
	PowerFactor float64
}

// EncodeGridCurrents packs v into a PF=0x15 payload.
func EncodeGridCurrents(v GridCurrents) ([8]byte, error) {
	var out [8]byte
	for i, val := range []float64{v.U, v.V, v.W} {
		raw, ok := scaleToRawI16(val, 0.01)
		if !ok {
			return out, OutOfRange(PFGridCurrents, "phase_current")
		}
		putUint16BE(out[i*2:i*2+2], uint16(raw))
	}
	pfRaw, ok := scaleToRawI16(v.PowerFactor, 0.001)
	if !ok {
		return out, OutOfRange(PFGridCurrents, "power_factor")
	}
	putUint16BE(out[6:8], uint16(pfRaw))
	return out, nil
}

// DecodeGridCurrents decodes a PF=0x15 payload.
func DecodeGridCurrents(data []byte) (GridCurrents, error) {
	if err := requireLen(PFGridCurrents, data, 8); err != nil {
		return GridCurrents{}, err
	}
	return GridCurrents{
		U:           rawToScale(int32(getInt16BE(data[0:2])), 0.01),
		V:           rawToScale(int32(getInt16BE(data[2:4])), 0.01),
		W:           rawToScale(int32(getInt16BE(data[4:6])), 0.01),
		PowerFactor: rawToScale(int32(getInt16BE(data[6:8])), 0.001),
	}, nil
}

// SystemPower is the decoded PF=0x16 frame: aggregate AC-side power and
// grid frequency.
type SystemPower struct {
	ActivePowerW     float64
	ReactivePowerVar float64
	ApparentPowerVA  float64
	FrequencyHz      float64
}

// EncodeSystemPower packs v into a PF=0x16 payload.
func EncodeSystemPower(v SystemPower) ([8]byte, error) {
	var out [8]byte
	pRaw, ok := scaleToRawI16(v.ActivePowerW, 1)
	if !ok {
		return out, OutOfRange(PFSystemPower, "active_power")
	}
	putUint16BE(out[0:2], uint16(pRaw))

	qRaw, ok := scaleToRawI16(v.ReactivePowerVar, 1)
	if !ok {
		return out, OutOfRange(PFSystemPower, "reactive_power")
	}
	putUint16BE(out[2:4], uint16(qRaw))

	sRaw, ok := scaleToRawU16(v.ApparentPowerVA, 1)
	if !ok {
		return out, OutOfRange(PFSystemPower, "apparent_power")
	}
	putUint16BE(out[4:6], sRaw)

	fRaw, ok := scaleToRawU16(v.FrequencyHz, 0.01)
	if !ok {
		return out, OutOfRange(PFSystemPower, "frequency")
	}
	putUint16BE(out[6:8], fRaw)
	return out, nil
}

// DecodeSystemPower decodes a PF=0x16 payload.
func DecodeSystemPower(data []byte) (SystemPower, error) {
	if err := requireLen(PFSystemPower, data, 8); err != nil {
		return SystemPower{}, err
	}
	return SystemPower{
		ActivePowerW:     rawToScale(int32(getInt16BE(data[0:2])), 1),
		ReactivePowerVar: rawToScale(int32(getInt16BE(data[2:4])), 1),
		ApparentPowerVA:  rawToScaleU(uint32(getUint16BE(data[4:6])), 1),
		FrequencyHz:      rawToScaleU(uint32(getUint16BE(data[6:8])), 0.01),
	}, nil
}

// DCHighResolution is the decoded PF=0x39 frame: finer-grained DC bus
// voltage/current than PF=0x11 provides. Same sign convention as
// DCElectrical.
type DCHighResolution struct {
	VoltageV float64
	CurrentA float64
}

// EncodeDCHighResolution packs v into a PF=0x39 payload.
func EncodeDCHighResolution(v DCHighResolution) ([8]byte, error) {
	var out [8]byte
	vRaw, ok := scaleToRawU32(v.VoltageV, 0.0001)
	if !ok {
		return out, OutOfRange(PFDCHighResolution, "voltage")
	}
	putUint32BE(out[0:4], vRaw)

	iRaw, ok := scaleToRawI32(v.CurrentA, 0.0001)
	if !ok {
		return out, OutOfRange(PFDCHighResolution, "current")
	}
	putInt32BE(out[4:8], iRaw)
	return out, nil
}

// DecodeDCHighResolution decodes a PF=0x39 payload.
func DecodeDCHighResolution(data []byte) (DCHighResolution, error) {
	if err := requireLen(PFDCHighResolution, data, 8); err != nil {
		return DCHighResolution{}, err
	}
	return DCHighResolution{
		VoltageV: rawToScaleU(getUint32BE(data[0:4]), 0.0001),
		CurrentA: rawToScale(getInt32BE(data[4:8]), 0.0001),
	}, nil
}
