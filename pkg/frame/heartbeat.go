package frame

// ExternalMirror carries operator-supplied battery-side values the
// controller mirrors into its heartbeat frame. The PCS treats a received
// heartbeat purely as a liveness signal; these values are informational.
type ExternalMirror struct {
	VoltageV float64
	CurrentA float64
}

// EncodeHeartbeat builds the PF=0x1A payload. A nil ext emits the
// documented all-zero fill pattern.
func EncodeHeartbeat(ext *ExternalMirror) ([8]byte, error) {
	var out [8]byte
	if ext == nil {
		return out, nil
	}
	vRaw, ok := scaleToRawU16(ext.VoltageV, 0.1)
	if !ok {
		return out, OutOfRange(PFHeartbeat, "external_voltage")
	}
	putUint16BE(out[0:2], vRaw)

	iRaw, ok := scaleToRawI16(ext.CurrentA, 0.01)
	if !ok {
		return out, OutOfRange(PFHeartbeat, "external_current")
	}
	putUint16BE(out[2:4], uint16(iRaw))
	return out, nil
}

// DecodeHeartbeat decodes a PF=0x1A payload. All zero bytes decode as no
// external mirror present.
func DecodeHeartbeat(data []byte) (*ExternalMirror, error) {
	if err := requireLen(PFHeartbeat, data, 4); err != nil {
		return nil, err
	}
	if data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 0 {
		return nil, nil
	}
	return &ExternalMirror{
		VoltageV: rawToScaleU(uint32(getUint16BE(data[0:2])), 0.1),
		CurrentA: rawToScale(int32(getInt16BE(data[2:4])), 0.01),
	}, nil
}
