package frame

import "fmt"

// ModeCode identifies a PCS working mode. Only a subset of the 19 codes the
// PCS recognizes carry a documented parameter record; the rest decode as
// RawMode and cannot be encoded.
type ModeCode uint16

// Documented working modes (spec table, §3).
const (
	ModeDCConstantVoltage   ModeCode = 0x02
	ModeDCCVWithCurrentCap  ModeCode = 0x08
	ModeDCConstantCurrent   ModeCode = 0x21
	ModeDCConstantPower     ModeCode = 0x22
	ModeDCCCCV              ModeCode = 0x29
	ModeACConstantPower     ModeCode = 0x40
	ModeIndependentInverter ModeCode = 0x41
	ModeIdle                ModeCode = 0x91
	ModeStandby             ModeCode = 0x94
)

// Scale factors, raw -> engineering units.
const (
	scaleVoltage          = 0.001 // V
	scaleCurrent          = 0.001 // A
	scalePower            = 0.001 // W/var
	scaleInverterVoltage  = 0.1   // V
	scaleInverterFrequency = 0.01 // Hz
)

// DCConstantVoltage holds the parameters of ModeDCConstantVoltage.
type DCConstantVoltage struct {
	VoltageV float64
}

// DCCVWithCurrentCap holds the parameters of ModeDCCVWithCurrentCap. The
// current limits are magnitudes (unsigned on the wire).
type DCCVWithCurrentCap struct {
	VoltageV       float64
	MaxChargeAmpsA float64
	MaxDischargeA  float64
}

// DCConstantCurrent holds the parameters of ModeDCConstantCurrent. Negative
// CurrentA means charging, per the sign-convention invariant.
type DCConstantCurrent struct {
	CurrentA float64
}

// DCConstantPower holds the parameters of ModeDCConstantPower. Negative
// PowerW means charging.
type DCConstantPower struct {
	PowerW float64
}

// DCCCCV holds the parameters of ModeDCCCCV: constant current ramps the DC
// bus to VoltageV, then holds voltage until current tapers to EndCurrentA.
type DCCCCV struct {
	VoltageV     float64
	CurrentA     float64
	EndCurrentA  float64
}

// ACConstantPower holds the parameters of ModeACConstantPower. Both fields
// are signed.
type ACConstantPower struct {
	ActivePowerW     float64
	ReactivePowerVar float64
}

// IndependentInverter holds the parameters of ModeIndependentInverter.
type IndependentInverter struct {
	VoltageV    float64
	FrequencyHz float64
}

// ModeCommand is a typed working-mode command: Params holds the parameter
// record that matches Code. Idle and Standby carry no parameters.
type ModeCommand struct {
	Code   ModeCode
	Params any // one of the parameter record types above, RawMode, or nil
}

// RawMode is what an undocumented mode code decodes to: the code plus
// whatever raw bytes followed it, with no structured interpretation.
// Encoding a RawMode always fails with ErrUnknownMode, per spec.
type RawMode struct {
	Code ModeCode
	Raw  []byte
}

// needsSecondary reports whether a mode command spans the PF=0x0C frame.
func needsSecondary(code ModeCode) bool {
	switch code {
	case ModeDCCVWithCurrentCap, ModeDCCCCV, ModeACConstantPower:
		return true
	default:
		return false
	}
}

// EncodeSetMode builds the PF=0x0B primary frame for cmd, and the PF=0x0C
// secondary frame if the mode needs one (nil otherwise).
func EncodeSetMode(cmd ModeCommand) (primary [8]byte, secondary *[8]byte, err error) {
	putUint16BE(primary[:2], uint16(cmd.Code))

	switch cmd.Code {
	case ModeDCConstantVoltage:
		p, ok := cmd.Params.(DCConstantVoltage)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "params")
		}
		raw, ok := scaleToRawI32(p.VoltageV, scaleVoltage)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "voltage")
		}
		putInt32BE(primary[2:6], raw)

	case ModeDCCVWithCurrentCap:
		p, ok := cmd.Params.(DCCVWithCurrentCap)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "params")
		}
		raw, ok := scaleToRawI32(p.VoltageV, scaleVoltage)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "voltage")
		}
		putInt32BE(primary[2:6], raw)

		var sec [8]byte
		chargeRaw, ok := scaleToRawU32(p.MaxChargeAmpsA, scaleCurrent)
		if !ok {
			return primary, nil, OutOfRange(PFSetModeExt1, "max_charge_current")
		}
		putUint32BE(sec[0:4], chargeRaw)
		dischargeRaw, ok := scaleToRawU32(p.MaxDischargeA, scaleCurrent)
		if !ok {
			return primary, nil, OutOfRange(PFSetModeExt1, "max_discharge_current")
		}
		putUint32BE(sec[4:8], dischargeRaw)
		secondary = &sec

	case ModeDCConstantCurrent:
		p, ok := cmd.Params.(DCConstantCurrent)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "params")
		}
		raw, ok := scaleToRawI32(p.CurrentA, scaleCurrent)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "current")
		}
		putInt32BE(primary[2:6], raw)

	case ModeDCConstantPower:
		p, ok := cmd.Params.(DCConstantPower)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "params")
		}
		raw, ok := scaleToRawI32(p.PowerW, scalePower)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "power")
		}
		putInt32BE(primary[2:6], raw)

	case ModeDCCCCV:
		p, ok := cmd.Params.(DCCCCV)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "params")
		}
		raw, ok := scaleToRawI32(p.VoltageV, scaleVoltage)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "voltage")
		}
		putInt32BE(primary[2:6], raw)

		var sec [8]byte
		curRaw, ok := scaleToRawI32(p.CurrentA, scaleCurrent)
		if !ok {
			return primary, nil, OutOfRange(PFSetModeExt1, "current")
		}
		putInt32BE(sec[0:4], curRaw)
		endRaw, ok := scaleToRawI32(p.EndCurrentA, scaleCurrent)
		if !ok {
			return primary, nil, OutOfRange(PFSetModeExt1, "end_current")
		}
		putInt32BE(sec[4:8], endRaw)
		secondary = &sec

	case ModeACConstantPower:
		p, ok := cmd.Params.(ACConstantPower)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "params")
		}
		raw, ok := scaleToRawI32(p.ActivePowerW, scalePower)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "active_power")
		}
		putInt32BE(primary[2:6], raw)

		var sec [8]byte
		qRaw, ok := scaleToRawI32(p.ReactivePowerVar, scalePower)
		if !ok {
			return primary, nil, OutOfRange(PFSetModeExt1, "reactive_power")
		}
		putInt32BE(sec[0:4], qRaw)
		secondary = &sec

	case ModeIndependentInverter:
		p, ok := cmd.Params.(IndependentInverter)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "params")
		}
		vRaw, ok := scaleToRawI32(p.VoltageV, scaleInverterVoltage)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "voltage")
		}
		putInt32BE(primary[2:6], vRaw)
		fRaw, ok := scaleToRawI32(p.FrequencyHz, scaleInverterFrequency)
		if !ok {
			return primary, nil, OutOfRange(PFSetMode, "frequency")
		}
		putUint16BE(primary[6:8], uint16(fRaw))

	case ModeIdle, ModeStandby:
		// no parameters

	default:
		return primary, nil, fmt.Errorf("%w: code=0x%04X", ErrUnknownMode, uint16(cmd.Code))
	}

	return primary, secondary, nil
}

// DecodeSetMode decodes a PF=0x0B primary frame plus its PF=0x0C secondary
// frame (pass nil if the caller has not collected one yet or the mode does
// not need one). Undocumented codes decode to RawMode rather than erroring.
func DecodeSetMode(primary, secondary []byte) (ModeCommand, error) {
	if err := requireLen(PFSetMode, primary, 8); err != nil {
		return ModeCommand{}, err
	}
	code := ModeCode(getUint16BE(primary[0:2]))

	switch code {
	case ModeDCConstantVoltage:
		return ModeCommand{Code: code, Params: DCConstantVoltage{
			VoltageV: rawToScale(getInt32BE(primary[2:6]), scaleVoltage),
		}}, nil

	case ModeDCCVWithCurrentCap:
		if secondary == nil {
			return ModeCommand{}, ErrIncompleteModeCommand
		}
		if err := requireLen(PFSetModeExt1, secondary, 8); err != nil {
			return ModeCommand{}, err
		}
		return ModeCommand{Code: code, Params: DCCVWithCurrentCap{
			VoltageV:       rawToScale(getInt32BE(primary[2:6]), scaleVoltage),
			MaxChargeAmpsA: rawToScaleU(getUint32BE(secondary[0:4]), scaleCurrent),
			MaxDischargeA:  rawToScaleU(getUint32BE(secondary[4:8]), scaleCurrent),
		}}, nil

	case ModeDCConstantCurrent:
		return ModeCommand{Code: code, Params: DCConstantCurrent{
			CurrentA: rawToScale(getInt32BE(primary[2:6]), scaleCurrent),
		}}, nil

	case ModeDCConstantPower:
		return ModeCommand{Code: code, Params: DCConstantPower{
			PowerW: rawToScale(getInt32BE(primary[2:6]), scalePower),
		}}, nil

	case ModeDCCCCV:
		if secondary == nil {
			return ModeCommand{}, ErrIncompleteModeCommand
		}
		if err := requireLen(PFSetModeExt1, secondary, 8); err != nil {
			return ModeCommand{}, err
		}
		return ModeCommand{Code: code, Params: DCCCCV{
			VoltageV:    rawToScale(getInt32BE(primary[2:6]), scaleVoltage),
			CurrentA:    rawToScale(getInt32BE(secondary[0:4]), scaleCurrent),
			EndCurrentA: rawToScale(getInt32BE(secondary[4:8]), scaleCurrent),
		}}, nil

	case ModeACConstantPower:
		if secondary == nil {
			return ModeCommand{}, ErrIncompleteModeCommand
		}
		if err := requireLen(PFSetModeExt1, secondary, 8); err != nil {
			return ModeCommand{}, err
		}
		return ModeCommand{Code: code, Params: ACConstantPower{
			ActivePowerW:     rawToScale(getInt32BE(primary[2:6]), scalePower),
			ReactivePowerVar: rawToScale(getInt32BE(secondary[0:4]), scalePower),
		}}, nil

	case ModeIndependentInverter:
		return ModeCommand{Code: code, Params: IndependentInverter{
			VoltageV:    rawToScale(getInt32BE(primary[2:6]), scaleInverterVoltage),
			FrequencyHz: rawToScale(int32(getInt16BE(primary[6:8])), scaleInverterFrequency),
		}}, nil

	case ModeIdle, ModeStandby:
		return ModeCommand{Code: code}, nil

	default:
		raw := make([]byte, len(primary)-2)
		copy(raw, primary[2:])
		return ModeCommand{Code: code, Params: RawMode{Code: code, Raw: raw}}, nil
	}
}
