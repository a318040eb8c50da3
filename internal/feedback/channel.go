// Package feedback turns the raw encoder stream from the arm's ESP32 into
// calibrated, filtered, per-joint angle estimates with online/offline
// tracking. It does no I/O itself; the owning loop feeds it bytes already
// read from the serial line (or any other frame source).
package feedback

import (
	"errors"
	"time"
)

// ChannelID identifies one encoder behind the I2C multiplexer. IDs are
// assigned from the configured topology and are stable for the process
// lifetime.
type ChannelID int

// Channel describes one configured encoder channel.
type Channel struct {
	ID       ChannelID
	MuxIndex int    // TCA9548A port the AS5600 is wired to
	Name     string // joint name, e.g. "J1"
}

// Params holds the per-channel tuning supplied at startup.
type Params struct {
	// Alpha is the EMA smoothing constant, 0 < alpha <= 1.
	Alpha float64
	// Timeout is how long a channel may stay silent before it is
	// declared offline.
	Timeout time.Duration
}

var (
	// ErrUnknownChannel means a channel ID or joint name does not exist
	// in the configured topology. This is a configuration bug and should
	// abort startup, not be handled per sample.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrChannelOffline is returned when a calibration is requested for a
	// channel that has no recent valid reading to anchor on. The caller
	// should retry once the channel reports online.
	ErrChannelOffline = errors.New("channel offline")
)
