package feedback

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// DefaultScale converts AS5600 raw counts (12 bit) to degrees.
const DefaultScale = 360.0 / 4096.0

// Calibration holds the affine raw-to-degrees transform for one channel.
type Calibration struct {
	ZeroOffset float64 `json:"zero_offset"` // raw units
	Scale      float64 `json:"scale"`       // degrees per raw unit, > 0
}

// CalibrationStore maps each configured channel to its calibration. It is
// mutated only by an explicit SetZero (the operator's calibrate action),
// never during normal sampling.
type CalibrationStore struct {
	entries map[ChannelID]Calibration
	names   map[ChannelID]string
	byName  map[string]ChannelID
}

// NewCalibrationStore creates a store for the given topology with zero
// offsets and a uniform scale.
func NewCalibrationStore(channels []Channel, scale float64) (*CalibrationStore, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("calibration scale must be > 0, got %g", scale)
	}
	s := &CalibrationStore{
		entries: make(map[ChannelID]Calibration, len(channels)),
		names:   make(map[ChannelID]string, len(channels)),
		byName:  make(map[string]ChannelID, len(channels)),
	}
	for _, ch := range channels {
		s.entries[ch.ID] = Calibration{Scale: scale}
		s.names[ch.ID] = ch.Name
		s.byName[ch.Name] = ch.ID
	}
	return s, nil
}

// Calibrated applies (raw - zero_offset) * scale and wraps the result into
// the canonical [0, 360) range.
func (s *CalibrationStore) Calibrated(id ChannelID, raw float64) (float64, error) {
	cal, ok := s.entries[id]
	if !ok {
		return 0, fmt.Errorf("channel %d: %w", id, ErrUnknownChannel)
	}
	return WrapDegrees((raw - cal.ZeroOffset) * cal.Scale), nil
}

// SetZero anchors the channel's zero offset so that raw maps to 0 degrees.
func (s *CalibrationStore) SetZero(id ChannelID, raw float64) error {
	cal, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("channel %d: %w", id, ErrUnknownChannel)
	}
	cal.ZeroOffset = raw
	s.entries[id] = cal
	return nil
}

// Get returns the calibration for a channel.
func (s *CalibrationStore) Get(id ChannelID) (Calibration, bool) {
	cal, ok := s.entries[id]
	return cal, ok
}

// Save writes the store as JSON keyed by joint name, so a hand-edited file
// stays readable.
func (s *CalibrationStore) Save(path string) error {
	out := make(map[string]Calibration, len(s.entries))
	for id, cal := range s.entries {
		out[s.names[id]] = cal
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return nil
}

// Load replaces calibrations from a JSON file written by Save. Entries for
// joints not in the topology are rejected; missing joints keep their current
// calibration.
func (s *CalibrationStore) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read calibration file: %w", err)
	}
	var in map[string]Calibration
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("parse calibration file: %w", err)
	}
	for name, cal := range in {
		id, ok := s.byName[name]
		if !ok {
			return fmt.Errorf("calibration file names joint %q: %w", name, ErrUnknownChannel)
		}
		if cal.Scale <= 0 {
			return fmt.Errorf("calibration for %s has scale %g, must be > 0", name, cal.Scale)
		}
		s.entries[id] = cal
	}
	return nil
}

// WrapDegrees normalizes an angle into the canonical [0, 360) range.
func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
