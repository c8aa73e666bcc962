package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const floatTolerance = 0.0006

func TestEncodeDecodeConstantVoltage(t *testing.T) {
	primary, secondary, err := EncodeSetMode(ModeCommand{
		Code:   ModeDCConstantVoltage,
		Params: DCConstantVoltage{VoltageV: 400.000},
	})
	require.NoError(t, err)
	assert.Nil(t, secondary)
	assert.Equal(t, []byte{0x00, 0x02, 0x00, 0x06, 0x1A, 0x80, 0x00, 0x00}, primary[:])

	decoded, err := DecodeSetMode(primary[:], nil)
	require.NoError(t, err)
	assert.Equal(t, ModeDCConstantVoltage, decoded.Code)
	params, ok := decoded.Params.(DCConstantVoltage)
	require.True(t, ok)
	assert.InDelta(t, 400.000, params.VoltageV, floatTolerance)
}

func TestDecodeSetReplyAckRule(t *testing.T) {
	assert.True(t, DecodeSetReply([]byte{0x01}))
	assert.True(t, DecodeSetReply([]byte{0x00, 0x01}))
	assert.False(t, DecodeSetReply([]byte{}))
	assert.False(t, DecodeSetReply([]byte{0x00, 0x00}))
}

func TestFaultMapping(t *testing.T) {
	data := []byte{0x00, 0x04, 0x80, 0x0D, 0x00, 0x00, 0x00, 0x00}
	v, err := DecodeRunningStateFault(data)
	require.NoError(t, err)
	assert.Equal(t, FaultCAN1Comm, v.Fault)
	assert.Equal(t, RunningFaulted, v.State)
}

func TestSignConventionDCConstantCurrent(t *testing.T) {
	primary, _, err := EncodeSetMode(ModeCommand{
		Code:   ModeDCConstantCurrent,
		Params: DCConstantCurrent{CurrentA: -50.000},
	})
	require.NoError(t, err)
	decoded, err := DecodeSetMode(primary[:], nil)
	require.NoError(t, err)
	params, ok := decoded.Params.(DCConstantCurrent)
	require.True(t, ok)
	assert.InDelta(t, -50.000, params.CurrentA, floatTolerance)

	primaryPos, _, err := EncodeSetMode(ModeCommand{
		Code:   ModeDCConstantCurrent,
		Params: DCConstantCurrent{CurrentA: 50.000},
	})
	require.NoError(t, err)
	decodedPos, err := DecodeSetMode(primaryPos[:], nil)
	require.NoError(t, err)
	paramsPos, ok := decodedPos.Params.(DCConstantCurrent)
	require.True(t, ok)
	assert.InDelta(t, 50.000, paramsPos.CurrentA, floatTolerance)
}

func TestSetModeRoundTrip(t *testing.T) {
	cases := []ModeCommand{
		{Code: ModeDCConstantVoltage, Params: DCConstantVoltage{VoltageV: 412.500}},
		{Code: ModeDCCVWithCurrentCap, Params: DCCVWithCurrentCap{VoltageV: 400, MaxChargeAmpsA: 120.5, MaxDischargeA: 130.25}},
		{Code: ModeDCConstantCurrent, Params: DCConstantCurrent{CurrentA: -12.345}},
		{Code: ModeDCConstantPower, Params: DCConstantPower{PowerW: -5000.5}},
		{Code: ModeDCCCCV, Params: DCCCCV{VoltageV: 400, CurrentA: 50, EndCurrentA: 2.5}},
		{Code: ModeACConstantPower, Params: ACConstantPower{ActivePowerW: 30000, ReactivePowerVar: -1500}},
		{Code: ModeIndependentInverter, Params: IndependentInverter{VoltageV: 230.5, FrequencyHz: 50.02}},
		{Code: ModeIdle},
		{Code: ModeStandby},
	}
	for _, c := range cases {
		primary, secondary, err := EncodeSetMode(c)
		require.NoError(t, err)

		var secBytes []byte
		if secondary != nil {
			secBytes = secondary[:]
		}
		decoded, err := DecodeSetMode(primary[:], secBytes)
		require.NoError(t, err)
		assert.Equal(t, c.Code, decoded.Code)

		switch want := c.Params.(type) {
		case DCConstantVoltage:
			got := decoded.Params.(DCConstantVoltage)
			assert.InDelta(t, want.VoltageV, got.VoltageV, floatTolerance)
		case DCCVWithCurrentCap:
			got := decoded.Params.(DCCVWithCurrentCap)
			assert.InDelta(t, want.VoltageV, got.VoltageV, floatTolerance)
			assert.InDelta(t, want.MaxChargeAmpsA, got.MaxChargeAmpsA, floatTolerance)
			assert.InDelta(t, want.MaxDischargeA, got.MaxDischargeA, floatTolerance)
		case DCConstantCurrent:
			got := decoded.Params.(DCConstantCurrent)
			assert.InDelta(t, want.CurrentA, got.CurrentA, floatTolerance)
		case DCConstantPower:
			got := decoded.Params.(DCConstantPower)
			assert.InDelta(t, want.PowerW, got.PowerW, floatTolerance)
		case DCCCCV:
			got := decoded.Params.(DCCCCV)
			assert.InDelta(t, want.VoltageV, got.VoltageV, floatTolerance)
			assert.InDelta(t, want.CurrentA, got.CurrentA, floatTolerance)
			assert.InDelta(t, want.EndCurrentA, got.EndCurrentA, floatTolerance)
		case ACConstantPower:
			got := decoded.Params.(ACConstantPower)
			assert.InDelta(t, want.ActivePowerW, got.ActivePowerW, floatTolerance)
			assert.InDelta(t, want.ReactivePowerVar, got.ReactivePowerVar, floatTolerance)
		case IndependentInverter:
			got := decoded.Params.(IndependentInverter)
			assert.InDelta(t, want.VoltageV, got.VoltageV, floatTolerance)
			assert.InDelta(t, want.FrequencyHz, got.FrequencyHz, floatTolerance)
		case nil:
			assert.Nil(t, decoded.Params)
		}
	}
}

func TestSetModeRejectsUnknownCode(t *testing.T) {
	_, _, err := EncodeSetMode(ModeCommand{Code: 0x7E})
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestDecodeUnknownModeIsRaw(t *testing.T) {
	primary := [8]byte{0x00, 0x7E, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	decoded, err := DecodeSetMode(primary[:], nil)
	require.NoError(t, err)
	assert.Equal(t, ModeCode(0x7E), decoded.Code)
	raw, ok := decoded.Params.(RawMode)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, raw.Raw)
}

func TestDecodeSetModeMissingSecondary(t *testing.T) {
	primary := [8]byte{0x00, 0x29, 0, 0, 0, 0, 0, 0}
	_, err := DecodeSetMode(primary[:], nil)
	assert.ErrorIs(t, err, ErrIncompleteModeCommand)
}

func TestLengthGuards(t *testing.T) {
	_, err := DecodeDCElectrical(nil)
	assert.ErrorIs(t, err, ErrTruncatedFrame)

	_, err = DecodeRunningStateFault([]byte{0x00})
	assert.ErrorIs(t, err, ErrTruncatedFrame)

	_, err = DecodeSetMode([]byte{0x00}, nil)
	assert.ErrorIs(t, err, ErrTruncatedFrame)

	assert.False(t, DecodeSetReply(nil))
}

func TestTelemetryRoundTrip(t *testing.T) {
	dc := DCElectrical{VoltageV: 412.3, CurrentA: -18.25, PowerW: -7530, TemperatureC: 36.5}
	encoded, err := EncodeDCElectrical(dc)
	require.NoError(t, err)
	decoded, err := DecodeDCElectrical(encoded[:])
	require.NoError(t, err)
	assert.InDelta(t, dc.VoltageV, decoded.VoltageV, floatTolerance)
	assert.InDelta(t, dc.CurrentA, decoded.CurrentA, floatTolerance)
	assert.InDelta(t, dc.PowerW, decoded.PowerW, floatTolerance)
	assert.InDelta(t, dc.TemperatureC, decoded.TemperatureC, floatTolerance)

	sf := RunningStateFault{State: RunningRunning, Fault: FaultNone}
	encSF := EncodeRunningStateFault(sf)
	decSF, err := DecodeRunningStateFault(encSF[:])
	require.NoError(t, err)
	assert.Equal(t, sf, decSF)

	gv := GridVoltages{U: 230.1, V: 229.8, W: 230.4}
	encGV, err := EncodeGridVoltages(gv)
	require.NoError(t, err)
	decGV, err := DecodeGridVoltages(encGV[:])
	require.NoError(t, err)
	assert.InDelta(t, gv.U, decGV.U, floatTolerance)
	assert.InDelta(t, gv.V, decGV.V, floatTolerance)
	assert.InDelta(t, gv.W, decGV.W, floatTolerance)

	gc := GridCurrents{U: -12.5, V: 12.3, W: -0.1, PowerFactor: -0.987}
	encGC, err := EncodeGridCurrents(gc)
	require.NoError(t, err)
	decGC, err := DecodeGridCurrents(encGC[:])
	require.NoError(t, err)
	assert.InDelta(t, gc.U, decGC.U, floatTolerance)
	assert.InDelta(t, gc.V, decGC.V, floatTolerance)
	assert.InDelta(t, gc.W, decGC.W, floatTolerance)
	assert.InDelta(t, gc.PowerFactor, decGC.PowerFactor, floatTolerance)

	sp := SystemPower{ActivePowerW: -30000, ReactivePowerVar: 1200, ApparentPowerVA: 30023, FrequencyHz: 49.98}
	encSP, err := EncodeSystemPower(sp)
	require.NoError(t, err)
	decSP, err := DecodeSystemPower(encSP[:])
	require.NoError(t, err)
	assert.InDelta(t, sp.ActivePowerW, decSP.ActivePowerW, floatTolerance)
	assert.InDelta(t, sp.ReactivePowerVar, decSP.ReactivePowerVar, floatTolerance)
	assert.InDelta(t, sp.ApparentPowerVA, decSP.ApparentPowerVA, floatTolerance)
	assert.InDelta(t, sp.FrequencyHz, decSP.FrequencyHz, floatTolerance)

	hr := DCHighResolution{VoltageV: 411.1234, CurrentA: -6.0001}
	encHR, err := EncodeDCHighResolution(hr)
	require.NoError(t, err)
	decHR, err := DecodeDCHighResolution(encHR[:])
	require.NoError(t, err)
	assert.InDelta(t, hr.VoltageV, decHR.VoltageV, 0.0001)
	assert.InDelta(t, hr.CurrentA, decHR.CurrentA, 0.0001)
}

func TestControlCarriesOverOtherBits(t *testing.T) {
	prev := ControlBits{OtherBits: 0x40, Tail: [7]byte{1, 2, 3, 4, 5, 6, 7}}
	run := true
	payload, next, err := EncodeControl(&prev, &run, nil)
	require.NoError(t, err)
	assert.True(t, next.Run)
	assert.Equal(t, prev.ClearFaults, next.ClearFaults)
	assert.Equal(t, prev.OtherBits, next.OtherBits)
	assert.Equal(t, prev.Tail, next.Tail)
	assert.Equal(t, uint8(0x40|controlBitRun), payload[0])

	decoded, err := DecodeControl(payload[:])
	require.NoError(t, err)
	assert.Equal(t, next, decoded)
}

func TestEncodeControlRequiresPrevState(t *testing.T) {
	run := true
	_, _, err := EncodeControl(nil, &run, nil)
	assert.ErrorIs(t, err, ErrMissingContextForControl)
}

func TestHeartbeatZeroFillWhenNoExternal(t *testing.T) {
	payload, err := EncodeHeartbeat(nil)
	require.NoError(t, err)
	assert.Equal(t, [8]byte{}, payload)

	mirror, err := DecodeHeartbeat(payload[:])
	require.NoError(t, err)
	assert.Nil(t, mirror)
}

func TestHeartbeatRoundTripWithExternal(t *testing.T) {
	ext := ExternalMirror{VoltageV: 51.2, CurrentA: -3.14}
	payload, err := EncodeHeartbeat(&ext)
	require.NoError(t, err)

	decoded, err := DecodeHeartbeat(payload[:])
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.InDelta(t, ext.VoltageV, decoded.VoltageV, floatTolerance)
	assert.InDelta(t, ext.CurrentA, decoded.CurrentA, floatTolerance)
}

func TestDispatchUnknownPF(t *testing.T) {
	_, err := Decode(PF(0xEE), []byte{0, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownPF)
}
