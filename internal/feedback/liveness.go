package feedback

import "time"

type livenessState struct {
	lastSeen time.Time
	online   bool
}

// Tracker decides, per channel, whether readings can currently be trusted.
// Every channel starts Offline. A valid reading flips it Online; an explicit
// absent sentinel from the decoder or a silence longer than the channel's
// timeout flips it back Offline.
type Tracker struct {
	timeout map[ChannelID]time.Duration
	states  map[ChannelID]*livenessState
}

// NewTracker creates a tracker with a per-channel silence timeout.
func NewTracker(timeouts map[ChannelID]time.Duration) *Tracker {
	t := &Tracker{
		timeout: make(map[ChannelID]time.Duration, len(timeouts)),
		states:  make(map[ChannelID]*livenessState, len(timeouts)),
	}
	for id, d := range timeouts {
		t.timeout[id] = d
		t.states[id] = &livenessState{}
	}
	return t
}

// Touch records a valid reading at now and reports whether this flipped the
// channel from Offline to Online. lastSeen moves only here, never during
// timeout evaluation.
func (t *Tracker) Touch(id ChannelID, now time.Time) (cameOnline bool) {
	st, ok := t.states[id]
	if !ok {
		return false
	}
	st.lastSeen = now
	if !st.online {
		st.online = true
		return true
	}
	return false
}

// MarkAbsent handles the decoder's explicit "no sensor" sentinel: the
// channel goes Offline immediately, without waiting for the timeout.
func (t *Tracker) MarkAbsent(id ChannelID) (wentOffline bool) {
	st, ok := t.states[id]
	if !ok {
		return false
	}
	if st.online {
		st.online = false
		return true
	}
	return false
}

// Evaluate applies the timeout rule against now for every channel and
// returns the ones that just went Offline. A channel that is already
// Offline stays Offline; the transition fires at most once per gap.
func (t *Tracker) Evaluate(now time.Time) []ChannelID {
	var wentOffline []ChannelID
	for id, st := range t.states {
		if !st.online {
			continue
		}
		if now.Sub(st.lastSeen) > t.timeout[id] {
			st.online = false
			wentOffline = append(wentOffline, id)
		}
	}
	return wentOffline
}

// Online reports the channel's current state.
func (t *Tracker) Online(id ChannelID) bool {
	st, ok := t.states[id]
	return ok && st.online
}

// LastSeen returns when the channel last produced a valid reading. The zero
// time means it never has.
func (t *Tracker) LastSeen(id ChannelID) time.Time {
	st, ok := t.states[id]
	if !ok {
		return time.Time{}
	}
	return st.lastSeen
}
