package frame

const (
	controlBitRun         uint8 = 1 << 0
	controlBitClearFaults uint8 = 1 << 1
)

// ControlBits is the decoded PF=0x0F payload: the run/stop and
// clear-faults flags the command surface drives, plus everything else the
// PCS carries in that byte vector untouched. The exact layout of bits
// beyond run/clear-faults is not documented; OtherBits and Tail exist so a
// caller can always carry them over verbatim rather than guessing at them.
type ControlBits struct {
	Run         bool
	ClearFaults bool
	OtherBits   uint8   // bits 2-7 of byte 0, preserved verbatim
	Tail        [7]byte // bytes 1..7, preserved verbatim
}

// DecodeControl decodes an observed PF=0x0F payload (sent by either side).
func DecodeControl(data []byte) (ControlBits, error) {
	if err := requireLen(PFControl, data, 1); err != nil {
		return ControlBits{}, err
	}
	var tail [7]byte
	copy(tail[:], data[1:])
	return ControlBits{
		Run:         data[0]&controlBitRun != 0,
		ClearFaults: data[0]&controlBitClearFaults != 0,
		OtherBits:   data[0] &^ (controlBitRun | controlBitClearFaults),
		Tail:        tail,
	}, nil
}

// EncodeControl overlays a requested run/clear-faults change onto prev and
// returns the resulting wire payload and the ControlBits it represents.
// prev is mandatory: a nil prev (no PF=0x0F state observed yet) fails with
// ErrMissingContextForControl rather than guessing at the other bits. Pass
// nil for setRun/setClearFaults to leave that flag unchanged.
func EncodeControl(prev *ControlBits, setRun, setClearFaults *bool) ([8]byte, ControlBits, error) {
	var out [8]byte
	if prev == nil {
		return out, ControlBits{}, ErrMissingContextForControl
	}
	next := *prev
	if setRun != nil {
		next.Run = *setRun
	}
	if setClearFaults != nil {
		next.ClearFaults = *setClearFaults
	}

	out[0] = next.OtherBits
	if next.Run {
		out[0] |= controlBitRun
	}
	if next.ClearFaults {
		out[0] |= controlBitClearFaults
	}
	copy(out[1:], next.Tail[:])
	return out, next, nil
}

// DecodeSetReply implements the set-command ACK rule: data[0]==0x01 or
// len(data)>=2 && data[1]==0x01 means acknowledged; an empty payload, or
// any other content, means not acknowledged.
func DecodeSetReply(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if data[0] == 0x01 {
		return true
	}
	return len(data) >= 2 && data[1] == 0x01
}

// EncodeSetReply builds the documented ACK/NACK payload for a set-command
// reply, as the simulator side of the protocol sends it.
func EncodeSetReply(ack bool) [8]byte {
	var out [8]byte
	if ack {
		out[0] = 0x01
	}
	return out
}

// FirmwareVersion is the decoded reply to the firmware-version query.
type FirmwareVersion struct {
	Major, Minor, Patch uint8
}

// EncodeFirmwareVersionQuery builds the (empty-bodied) query frame.
func EncodeFirmwareVersionQuery() [8]byte {
	return [8]byte{}
}

// DecodeFirmwareVersion decodes the firmware-version query reply.
func DecodeFirmwareVersion(data []byte) (FirmwareVersion, error) {
	if err := requireLen(PFFirmwareVersion, data, 3); err != nil {
		return FirmwareVersion{}, err
	}
	return FirmwareVersion{Major: data[0], Minor: data[1], Patch: data[2]}, nil
}

// EncodeFirmwareVersionReply builds the reply frame for v, as the
// simulator sends it.
func EncodeFirmwareVersionReply(v FirmwareVersion) [8]byte {
	var out [8]byte
	out[0], out[1], out[2] = v.Major, v.Minor, v.Patch
	return out
}

// ProtectionParams is the decoded reply to the protection-parameters
// query: raw device-reported bounds, returned unvalidated. Per spec, no
// bounds are invented here; an integrator-supplied range table is the
// documented extension point for interpreting these.
type ProtectionParams struct {
	MaxVoltageV float64
	MinVoltageV float64
	MaxCurrentA float64
}

// EncodeProtectionParamsQuery builds the (empty-bodied) query frame.
func EncodeProtectionParamsQuery() [8]byte {
	return [8]byte{}
}

// DecodeProtectionParams decodes the protection-parameters query reply.
func DecodeProtectionParams(data []byte) (ProtectionParams, error) {
	if err := requireLen(PFProtectionParams, data, 6); err != nil {
		return ProtectionParams{}, err
	}
	return ProtectionParams{
		MaxVoltageV: rawToScaleU(uint32(getUint16BE(data[0:2])), 0.1),
		MinVoltageV: rawToScaleU(uint32(getUint16BE(data[2:4])), 0.1),
		MaxCurrentA: rawToScaleU(uint32(getUint16BE(data[4:6])), 0.1),
	}, nil
}

// EncodeProtectionParamsReply builds the reply frame for v, as the
// simulator sends it.
func EncodeProtectionParamsReply(v ProtectionParams) ([8]byte, error) {
	var out [8]byte
	maxV, ok := scaleToRawU16(v.MaxVoltageV, 0.1)
	if !ok {
		return out, OutOfRange(PFProtectionParams, "max_voltage")
	}
	putUint16BE(out[0:2], maxV)
	minV, ok := scaleToRawU16(v.MinVoltageV, 0.1)
	if !ok {
		return out, OutOfRange(PFProtectionParams, "min_voltage")
	}
	putUint16BE(out[2:4], minV)
	maxI, ok := scaleToRawU16(v.MaxCurrentA, 0.1)
	if !ok {
		return out, OutOfRange(PFProtectionParams, "max_current")
	}
	putUint16BE(out[4:6], maxI)
	return out, nil
}

// RangeTable is an optional, nil-safe integrator-supplied bounds checker
// for ProtectionParams. A nil *RangeTable performs no validation; device
// bounds vary by deployment and are not invented here.
type RangeTable struct {
	MaxVoltageV float64
	MinVoltageV float64
	MaxCurrentA float64
}

// Validate reports whether p falls within t. A nil t always reports true.
func (t *RangeTable) Validate(p ProtectionParams) bool {
	if t == nil {
		return true
	}
	return p.MaxVoltageV <= t.MaxVoltageV && p.MinVoltageV >= t.MinVoltageV && p.MaxCurrentA <= t.MaxCurrentA
}
