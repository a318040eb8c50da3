package feedback

import "fmt"

type filterState struct {
	value       float64
	initialized bool
}

// FilterBank keeps one exponential moving average per channel. Angles are
// folded across the 0/360 boundary before blending so a joint hovering near
// zero does not drag the filter the long way around the circle.
type FilterBank struct {
	alpha  map[ChannelID]float64
	states map[ChannelID]*filterState
}

// NewFilterBank creates a bank with a fixed smoothing constant per channel.
func NewFilterBank(alphas map[ChannelID]float64) (*FilterBank, error) {
	b := &FilterBank{
		alpha:  make(map[ChannelID]float64, len(alphas)),
		states: make(map[ChannelID]*filterState, len(alphas)),
	}
	for id, a := range alphas {
		if a <= 0 || a > 1 {
			return nil, fmt.Errorf("channel %d: alpha must be in (0, 1], got %g", id, a)
		}
		b.alpha[id] = a
		b.states[id] = &filterState{}
	}
	return b, nil
}

// Update blends a new calibrated angle into the channel's EMA and returns
// the filtered value. The first sample after creation or Reset initializes
// the EMA directly.
func (b *FilterBank) Update(id ChannelID, angle float64) (float64, error) {
	st, ok := b.states[id]
	if !ok {
		return 0, fmt.Errorf("channel %d: %w", id, ErrUnknownChannel)
	}

	if !st.initialized {
		st.value = WrapDegrees(angle)
		st.initialized = true
		return st.value, nil
	}

	// Fold the sample across the wrap boundary if the direct delta is
	// more than half a turn, so the blend takes the short way around.
	prev := st.value
	if angle-prev > 180 {
		angle -= 360
	} else if angle-prev < -180 {
		angle += 360
	}

	a := b.alpha[id]
	st.value = WrapDegrees(a*angle + (1-a)*prev)
	return st.value, nil
}

// Reset clears the channel's EMA to uninitialized. The aggregator calls this
// on every offline-to-online transition so a fresh reading is not blended
// with a stale pre-gap value.
func (b *FilterBank) Reset(id ChannelID) error {
	st, ok := b.states[id]
	if !ok {
		return fmt.Errorf("channel %d: %w", id, ErrUnknownChannel)
	}
	st.value = 0
	st.initialized = false
	return nil
}

// Value returns the current EMA and whether the channel has received any
// sample since the last Reset.
func (b *FilterBank) Value(id ChannelID) (float64, bool) {
	st, ok := b.states[id]
	if !ok || !st.initialized {
		return 0, false
	}
	return st.value, true
}
