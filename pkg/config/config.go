// Package config holds session configuration: a plain struct with
// defaults, optionally loaded from an INI file with gopkg.in/ini.v1.
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// ErrInvalidConfig is returned by Validate (and therefore by LoadFile) for
// any out-of-range option.
var ErrInvalidConfig = errors.New("config: invalid option")

// Config holds the options table a session recognizes (spec §6).
type Config struct {
	Channel             string        // bus channel selector passed to the adapter
	Bitrate             int           // CAN bit rate; != 250000 is accepted but logged
	PCSAddr             uint8         // peer address
	RxTimeout           time.Duration // degraded threshold
	CommandTimeout      time.Duration // reply wait
	HeartbeatPeriod     time.Duration // TX cadence
	ReconnectBackoffCap time.Duration // adapter backoff ceiling
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Bitrate:             250000,
		PCSAddr:             0xFA,
		RxTimeout:           1 * time.Second,
		CommandTimeout:      3 * time.Second,
		HeartbeatPeriod:     200 * time.Millisecond,
		ReconnectBackoffCap: 5 * time.Second,
	}
}

// Validate reports ErrInvalidConfig for any option whose value cannot be
// used as-is. It never clamps or coerces.
func (c Config) Validate() error {
	if c.Bitrate <= 0 {
		return fmt.Errorf("%w: bitrate %d", ErrInvalidConfig, c.Bitrate)
	}
	if c.RxTimeout <= 0 {
		return fmt.Errorf("%w: rx_timeout %s", ErrInvalidConfig, c.RxTimeout)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("%w: command_timeout %s", ErrInvalidConfig, c.CommandTimeout)
	}
	if c.HeartbeatPeriod <= 0 {
		return fmt.Errorf("%w: heartbeat_period %s", ErrInvalidConfig, c.HeartbeatPeriod)
	}
	if c.ReconnectBackoffCap <= 0 {
		return fmt.Errorf("%w: reconnect_backoff_cap %s", ErrInvalidConfig, c.ReconnectBackoffCap)
	}
	return nil
}

// LoadFile loads a session config from an INI file, starting from
// Default() so an omitted key keeps its default. Recognized keys:
// channel, bitrate, pcs_addr, rx_timeout_ms, command_timeout_ms,
// heartbeat_period_ms, reconnect_backoff_cap_ms.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	iniFile, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	section := iniFile.Section("")

	if key, ok := sectionKey(section, "channel"); ok {
		cfg.Channel = key.String()
	}
	if key, ok := sectionKey(section, "bitrate"); ok {
		v, err := key.Int()
		if err != nil {
			return Config{}, fmt.Errorf("%w: bitrate: %v", ErrInvalidConfig, err)
		}
		cfg.Bitrate = v
	}
	if key, ok := sectionKey(section, "pcs_addr"); ok {
		v, err := key.Int()
		if err != nil || v < 0 || v > 0xFF {
			return Config{}, fmt.Errorf("%w: pcs_addr out of range", ErrInvalidConfig)
		}
		cfg.PCSAddr = uint8(v)
	}
	if key, ok := sectionKey(section, "rx_timeout_ms"); ok {
		v, err := key.Int()
		if err != nil {
			return Config{}, fmt.Errorf("%w: rx_timeout_ms: %v", ErrInvalidConfig, err)
		}
		cfg.RxTimeout = time.Duration(v) * time.Millisecond
	}
	if key, ok := sectionKey(section, "command_timeout_ms"); ok {
		v, err := key.Int()
		if err != nil {
			return Config{}, fmt.Errorf("%w: command_timeout_ms: %v", ErrInvalidConfig, err)
		}
		cfg.CommandTimeout = time.Duration(v) * time.Millisecond
	}
	if key, ok := sectionKey(section, "heartbeat_period_ms"); ok {
		v, err := key.Int()
		if err != nil {
			return Config{}, fmt.Errorf("%w: heartbeat_period_ms: %v", ErrInvalidConfig, err)
		}
		cfg.HeartbeatPeriod = time.Duration(v) * time.Millisecond
	}
	if key, ok := sectionKey(section, "reconnect_backoff_cap_ms"); ok {
		v, err := key.Int()
		if err != nil {
			return Config{}, fmt.Errorf("%w: reconnect_backoff_cap_ms: %v", ErrInvalidConfig, err)
		}
		cfg.ReconnectBackoffCap = time.Duration(v) * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func sectionKey(section *ini.Section, name string) (*ini.Key, bool) {
	if !section.HasKey(name) {
		return nil, false
	}
	return section.Key(name), true
}
