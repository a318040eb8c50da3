package feedback

import (
	"fmt"
	"time"
)

// Aggregator owns all per-channel state for one sampling session and runs
// the full pipeline each cycle: decode, liveness, calibration, filtering,
// snapshot. It is not safe for concurrent use; the owning loop must call
// Sample and Calibrate from a single goroutine and hand finished snapshots
// to other goroutines (see Latest).
type Aggregator struct {
	channels []Channel
	params   map[ChannelID]Params

	dec     *Decoder
	cal     *CalibrationStore
	filters *FilterBank
	live    *Tracker

	lastRaw map[ChannelID]float64
	lastCal map[ChannelID]float64
	haveRaw map[ChannelID]bool
}

// NewAggregator validates the topology and builds the pipeline. scale is the
// uniform raw-to-degrees factor (DefaultScale for an AS5600); per-channel
// scales can still arrive later via LoadCalibration.
func NewAggregator(channels []Channel, params map[ChannelID]Params, scale float64) (*Aggregator, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}

	ids := make([]ChannelID, len(channels))
	alphas := make(map[ChannelID]float64, len(channels))
	timeouts := make(map[ChannelID]time.Duration, len(channels))
	seenID := make(map[ChannelID]bool, len(channels))
	seenName := make(map[string]bool, len(channels))

	for i, ch := range channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("channel %d has no name", ch.ID)
		}
		if seenID[ch.ID] {
			return nil, fmt.Errorf("duplicate channel id %d", ch.ID)
		}
		if seenName[ch.Name] {
			return nil, fmt.Errorf("duplicate joint name %q", ch.Name)
		}
		seenID[ch.ID] = true
		seenName[ch.Name] = true
		ids[i] = ch.ID

		p, ok := params[ch.ID]
		if !ok {
			return nil, fmt.Errorf("no params for channel %d (%s): %w", ch.ID, ch.Name, ErrUnknownChannel)
		}
		if p.Timeout <= 0 {
			return nil, fmt.Errorf("channel %s: timeout must be > 0, got %v", ch.Name, p.Timeout)
		}
		alphas[ch.ID] = p.Alpha
		timeouts[ch.ID] = p.Timeout
	}

	cal, err := NewCalibrationStore(channels, scale)
	if err != nil {
		return nil, err
	}
	filters, err := NewFilterBank(alphas)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		channels: channels,
		params:   params,
		dec:      NewDecoder(ids),
		cal:      cal,
		filters:  filters,
		live:     NewTracker(timeouts),
		lastRaw:  make(map[ChannelID]float64, len(channels)),
		lastCal:  make(map[ChannelID]float64, len(channels)),
		haveRaw:  make(map[ChannelID]bool, len(channels)),
	}, nil
}

// Sample feeds a chunk of serial bytes through the pipeline and returns a
// fresh snapshot covering every configured channel. chunk may be nil to run
// only the timeout evaluation, e.g. from a ticker while the line is silent.
// Malformed bytes never surface here; the decoder absorbs them.
func (a *Aggregator) Sample(chunk []byte, now time.Time) *Snapshot {
	for _, frame := range a.dec.Push(chunk, now) {
		a.applyFrame(frame)
	}

	// Timeout check runs against now for all channels, including ones
	// the frames above did not mention.
	a.live.Evaluate(now)

	return a.snapshot(now)
}

func (a *Aggregator) applyFrame(frame Frame) {
	for _, rd := range frame.Readings {
		if !rd.Valid {
			a.live.MarkAbsent(rd.Channel)
			continue
		}

		if cameOnline := a.live.Touch(rd.Channel, rd.Time); cameOnline {
			// Do not blend across the offline gap.
			a.filters.Reset(rd.Channel)
		}

		deg, err := a.cal.Calibrated(rd.Channel, rd.Raw)
		if err != nil {
			// Decoder and store were built from the same topology,
			// so this is unreachable short of a programming error.
			continue
		}
		a.lastRaw[rd.Channel] = rd.Raw
		a.haveRaw[rd.Channel] = true
		a.lastCal[rd.Channel] = deg
		a.filters.Update(rd.Channel, deg)
	}
}

func (a *Aggregator) snapshot(now time.Time) *Snapshot {
	joints := make(map[string]JointReading, len(a.channels))
	for _, ch := range a.channels {
		rd := JointReading{Online: a.live.Online(ch.ID)}
		if a.haveRaw[ch.ID] {
			rd.HasData = true
			rd.Raw = a.lastRaw[ch.ID]
			rd.Calibrated = a.lastCal[ch.ID]
			// An offline channel keeps reporting its last filtered
			// value, tagged Online=false, never a synthesized zero.
			if v, ok := a.filters.Value(ch.ID); ok {
				rd.Filtered = v
			} else {
				rd.Filtered = a.lastCal[ch.ID]
			}
		}
		joints[ch.Name] = rd
	}
	return &Snapshot{Time: now, Joints: joints}
}

// Calibrate anchors the channel's zero on its most recent raw reading, so
// the calibrated angle at this instant becomes 0. The filter restarts from
// the next sample since the whole calibrated frame just moved.
func (a *Aggregator) Calibrate(id ChannelID) error {
	name, ok := a.nameOf(id)
	if !ok {
		return fmt.Errorf("calibrate channel %d: %w", id, ErrUnknownChannel)
	}
	if !a.live.Online(id) || !a.haveRaw[id] {
		return fmt.Errorf("calibrate %s: %w", name, ErrChannelOffline)
	}

	if err := a.cal.SetZero(id, a.lastRaw[id]); err != nil {
		return err
	}
	deg, err := a.cal.Calibrated(id, a.lastRaw[id])
	if err != nil {
		return err
	}
	a.lastCal[id] = deg
	a.filters.Reset(id)
	return nil
}

// CalibrateJoint is Calibrate addressed by joint name, for operator-facing
// surfaces (MQTT command topic, web UI).
func (a *Aggregator) CalibrateJoint(name string) error {
	for _, ch := range a.channels {
		if ch.Name == name {
			return a.Calibrate(ch.ID)
		}
	}
	return fmt.Errorf("calibrate joint %q: %w", name, ErrUnknownChannel)
}

// SaveCalibration persists the current calibrations as JSON.
func (a *Aggregator) SaveCalibration(path string) error {
	return a.cal.Save(path)
}

// LoadCalibration replaces calibrations from a JSON file.
func (a *Aggregator) LoadCalibration(path string) error {
	return a.cal.Load(path)
}

// DroppedFrames returns how many malformed frames the decoder has discarded.
func (a *Aggregator) DroppedFrames() int { return a.dec.Dropped() }

// Channels returns the configured topology in order.
func (a *Aggregator) Channels() []Channel { return a.channels }

func (a *Aggregator) nameOf(id ChannelID) (string, bool) {
	for _, ch := range a.channels {
		if ch.ID == id {
			return ch.Name, true
		}
	}
	return "", false
}
