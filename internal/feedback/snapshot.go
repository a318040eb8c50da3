package feedback

import (
	"sync/atomic"
	"time"
)

// JointReading is one channel's entry in a snapshot.
type JointReading struct {
	Raw        float64 `json:"raw"`
	Calibrated float64 `json:"calibrated_deg"`
	Filtered   float64 `json:"filtered_deg"`
	Online     bool    `json:"online"`
	// HasData distinguishes "stale but remembered" (HasData true, Online
	// false) from "never went online" (HasData false). The numeric
	// fields are meaningless while HasData is false.
	HasData bool `json:"has_data"`
}

// Snapshot is an immutable view over every configured channel, produced
// fresh each sampling cycle. It is never mutated after construction, so any
// number of concurrent readers may hold one without synchronization.
type Snapshot struct {
	Time   time.Time               `json:"time"`
	Joints map[string]JointReading `json:"joints"`
}

// Latest is a single-slot cell for handing the newest snapshot from the
// sampling loop to concurrent consumers.
type Latest struct {
	p atomic.Pointer[Snapshot]
}

// Store publishes a new snapshot.
func (l *Latest) Store(s *Snapshot) { l.p.Store(s) }

// Load returns the most recent snapshot, or nil before the first Store.
func (l *Latest) Load() *Snapshot { return l.p.Load() }
