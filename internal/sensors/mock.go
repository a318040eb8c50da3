package sensors

import (
	"math"
	"time"

	"github.com/Patvscode/ARA6D/internal/feedback"
)

// MockSource generates smooth, deterministic encoder frames so the whole
// stack can run on a desk with no arm attached.
type MockSource struct {
	start    time.Time
	channels []feedback.Channel
	interval time.Duration
}

// NewMockSource creates a mock source emitting one frame per interval.
func NewMockSource(channels []feedback.Channel, interval time.Duration) *MockSource {
	return &MockSource{
		start:    time.Now(),
		channels: channels,
		interval: interval,
	}
}

// Next sleeps one interval and returns a frame where each joint sweeps a
// slow sinusoid around mid-range, each at a slightly different rate.
func (m *MockSource) Next() ([]byte, error) {
	time.Sleep(m.interval)
	elapsed := time.Since(m.start).Seconds()

	raws := make([]float64, len(m.channels))
	valid := make([]bool, len(m.channels))
	for i := range m.channels {
		rate := 0.3 + 0.1*float64(i)
		raws[i] = math.Round(2048 + 1024*math.Sin(elapsed*rate))
		valid[i] = true
	}

	return formatFrame(raws, valid), nil
}

func (m *MockSource) Close() error { return nil }
