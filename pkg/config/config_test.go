package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Bitrate = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.RxTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "session-*.ini")
	require.NoError(t, err)
	_, err = f.WriteString("channel = can0\npcs_addr = 250\nheartbeat_period_ms = 200\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := LoadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "can0", cfg.Channel)
	assert.Equal(t, uint8(250), cfg.PCSAddr)
	assert.Equal(t, 200*time.Millisecond, cfg.HeartbeatPeriod)
	assert.Equal(t, 250000, cfg.Bitrate)
}

func TestLoadFileRejectsInvalidPCSAddr(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "session-*.ini")
	require.NoError(t, err)
	_, err = f.WriteString("pcs_addr = 9999\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = LoadFile(f.Name())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
