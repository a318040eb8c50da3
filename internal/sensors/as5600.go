package sensors

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/Patvscode/ARA6D/internal/feedback"
)

// AS5600 register map (the parts we use).
const (
	as5600Addr     = 0x36
	as5600RegState = 0x0B // STATUS: bit 5 = magnet detected
	as5600RegRaw   = 0x0C // RAW ANGLE, 12 bit big-endian across two bytes

	magnetDetected = 0x20
)

// AS5600Source reads the encoder chain directly from a host I2C bus through
// a TCA9548A multiplexer, bypassing the ESP32. Each cycle it selects every
// configured mux port in turn, reads the raw angle, and emits the same
// wire-format line the firmware would send, so the downstream pipeline is
// identical for both transports.
type AS5600Source struct {
	bus      i2c.BusCloser
	mux      i2c.Dev
	sensor   i2c.Dev
	channels []feedback.Channel
	interval time.Duration
}

// NewAS5600Source opens the I2C bus (empty busName selects the first one)
// and probes the multiplexer. Sampling is paced by interval.
func NewAS5600Source(busName string, muxAddr uint16, channels []feedback.Channel, interval time.Duration) (*AS5600Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", busName, err)
	}

	src := &AS5600Source{
		bus:      bus,
		mux:      i2c.Dev{Bus: bus, Addr: muxAddr},
		sensor:   i2c.Dev{Bus: bus, Addr: as5600Addr},
		channels: channels,
		interval: interval,
	}

	// Probe: select port 0 so a missing mux fails at startup, not in the
	// sampling loop.
	if err := src.selectPort(channels[0].MuxIndex); err != nil {
		bus.Close()
		return nil, fmt.Errorf("probe TCA9548A at 0x%02X: %w", muxAddr, err)
	}
	log.Printf("AS5600 chain open on I2C bus %s, mux at 0x%02X, %d channels", bus, muxAddr, len(channels))

	return src, nil
}

// Next samples every configured channel once and returns the formatted
// frame line. A channel whose sensor NACKs or reports no magnet gets the
// offline sentinel; the frame itself is still emitted.
func (s *AS5600Source) Next() ([]byte, error) {
	time.Sleep(s.interval)

	raws := make([]float64, len(s.channels))
	valid := make([]bool, len(s.channels))
	for i, ch := range s.channels {
		raw, err := s.readChannel(ch.MuxIndex)
		if err != nil {
			// Absent or unreadable sensor is a per-channel
			// condition, not a frame failure.
			continue
		}
		raws[i] = float64(raw)
		valid[i] = true
	}

	return formatFrame(raws, valid), nil
}

func (s *AS5600Source) readChannel(muxPort int) (uint16, error) {
	if err := s.selectPort(muxPort); err != nil {
		return 0, err
	}

	var status [1]byte
	if err := s.sensor.Tx([]byte{as5600RegState}, status[:]); err != nil {
		return 0, fmt.Errorf("read AS5600 status on port %d: %w", muxPort, err)
	}
	if status[0]&magnetDetected == 0 {
		return 0, fmt.Errorf("no magnet detected on port %d", muxPort)
	}

	var buf [2]byte
	if err := s.sensor.Tx([]byte{as5600RegRaw}, buf[:]); err != nil {
		return 0, fmt.Errorf("read AS5600 raw angle on port %d: %w", muxPort, err)
	}
	return uint16(buf[0]&0x0F)<<8 | uint16(buf[1]), nil
}

// selectPort enables exactly one downstream port on the TCA9548A.
func (s *AS5600Source) selectPort(port int) error {
	if port < 0 || port > 7 {
		return fmt.Errorf("mux port %d out of range 0-7", port)
	}
	if err := s.mux.Tx([]byte{1 << port}, nil); err != nil {
		return fmt.Errorf("select mux port %d: %w", port, err)
	}
	return nil
}

func (s *AS5600Source) Close() error {
	return s.bus.Close()
}
