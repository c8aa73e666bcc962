// Package frame implements the bit-exact codec for the YSTECH PCS
// application frames carried over the identifier scheme in pkg/identifier:
// fixed big-endian fields, explicit scale factors, and the sign convention
// that negative DC current/power means charging.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PF identifies a CAN application frame by PDU Format, the message type
// field of the 29-bit identifier (see pkg/identifier).
type PF uint8

// Documented PDU Formats.
const (
	PFSetMode            PF = 0x0B // set working mode, primary parameters
	PFSetModeExt1        PF = 0x0C // set working mode, secondary parameters
	PFSetModeExt2        PF = 0x0D // set working mode, reserved tertiary parameters
	PFControl            PF = 0x0F // start/stop/clear-faults
	PFDCElectrical       PF = 0x11 // DC voltage/current/power/temperature
	PFCapacityEnergy     PF = 0x12 // capacity and energy counters
	PFRunningState       PF = 0x13 // running state and fault code
	PFGridVoltages       PF = 0x14 // AC grid voltages U/V/W
	PFGridCurrents       PF = 0x15 // AC grid currents and power factor
	PFSystemPower        PF = 0x16 // system P/Q/S and frequency
	PFHeartbeat          PF = 0x1A // controller liveness signal
	PFFirmwareVersion    PF = 0x17 // firmware version query/reply
	PFProtectionParams   PF = 0x18 // protection parameter bounds query/reply
	PFDCHighResolution   PF = 0x39 // high-resolution DC voltage/current
)

// Frame-codec error kinds. These are recovered by the receive pump
// (logged and dropped) except where noted.
var (
	// ErrTruncatedFrame's wrapped message carries (pf, have, need); use
	// TruncatedFrame to construct one and errors.As to recover the detail.
	ErrTruncatedFrame = errors.New("frame: payload too short")
	ErrUnknownPF      = errors.New("frame: unknown PDU format")

	// ErrOutOfRange is returned by encoders when an engineering value does
	// not fit the raw integer width after scaling. Surfaced to callers.
	ErrOutOfRange = errors.New("frame: value out of range for wire encoding")
	// ErrUnknownMode is returned by SetMode encoders for an undocumented
	// mode code. Decoders never return it: unknown codes decode to
	// RawMode instead.
	ErrUnknownMode = errors.New("frame: unknown or unencodable working mode")
	// ErrMissingContextForControl is returned when encoding a PF=0x0F
	// control frame without the mandatory previous-state argument.
	ErrMissingContextForControl = errors.New("frame: control encode requires previous PF=0x0F state")
	// ErrIncompleteModeCommand is returned decoding a multi-frame mode
	// command (0x0B+0x0C) when the secondary frame is missing.
	ErrIncompleteModeCommand = errors.New("frame: mode command needs its secondary frame")
)

// TruncatedFrame builds the length-guard error for a given PF.
func TruncatedFrame(pf PF, have, need int) error {
	return fmt.Errorf("%w: pf=0x%02X have=%d need=%d", ErrTruncatedFrame, uint8(pf), have, need)
}

// OutOfRange builds the range error for a given PF/field.
func OutOfRange(pf PF, field string) error {
	return fmt.Errorf("%w: pf=0x%02X field=%s", ErrOutOfRange, uint8(pf), field)
}

func requireLen(pf PF, data []byte, need int) error {
	if len(data) < need {
		return TruncatedFrame(pf, len(data), need)
	}
	return nil
}

// scaleToRawI32 rounds value/scale to the nearest int32, failing with
// ErrOutOfRange (via the caller) if it does not fit.
func scaleToRawI32(value, scale float64) (int32, bool) {
	raw := math.Round(value / scale)
	if raw < math.MinInt32 || raw > math.MaxInt32 {
		return 0, false
	}
	return int32(raw), true
}

// scaleToRawU32 is the unsigned equivalent of scaleToRawI32.
func scaleToRawU32(value, scale float64) (uint32, bool) {
	raw := math.Round(value / scale)
	if raw < 0 || raw > math.MaxUint32 {
		return 0, false
	}
	return uint32(raw), true
}

// scaleToRawI16 and scaleToRawU16 are the 16-bit-width equivalents used by
// the telemetry frames, which pack four fields into 8 bytes.
func scaleToRawI16(value, scale float64) (int16, bool) {
	raw := math.Round(value / scale)
	if raw < math.MinInt16 || raw > math.MaxInt16 {
		return 0, false
	}
	return int16(raw), true
}

func scaleToRawU16(value, scale float64) (uint16, bool) {
	raw := math.Round(value / scale)
	if raw < 0 || raw > math.MaxUint16 {
		return 0, false
	}
	return uint16(raw), true
}

func rawToScale(raw int32, scale float64) float64 {
	return float64(raw) * scale
}

func rawToScaleU(raw uint32, scale float64) float64 {
	return float64(raw) * scale
}

func putInt32BE(b []byte, v int32) {
	binary.BigEndian.PutUint32(b, uint32(v))
}

func putUint32BE(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

func getInt32BE(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b))
}

func getUint32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func putUint16BE(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

func getUint16BE(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func getInt16BE(b []byte) int16 {
	return int16(getUint16BE(b))
}
