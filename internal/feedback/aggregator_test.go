package feedback

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"
)

// newTestAggregator builds a single-channel aggregator with scale 1 and
// offset 0, so raw counts pass through as degrees.
func newTestAggregator(t *testing.T, alpha float64, timeout time.Duration) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(
		[]Channel{{ID: 0, MuxIndex: 0, Name: "J1"}},
		map[ChannelID]Params{0: {Alpha: alpha, Timeout: timeout}},
		1.0,
	)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return agg
}

func joint(t *testing.T, snap *Snapshot, name string) JointReading {
	t.Helper()
	rd, ok := snap.Joints[name]
	if !ok {
		t.Fatalf("snapshot missing joint %s", name)
	}
	return rd
}

func TestEndToEndScenario(t *testing.T) {
	// Channel 0, alpha=0.5, timeout=500ms. Frames raw 0, 100, 100 at
	// t=0,10,20ms give filtered 0, 50, 75. Silence until t=600ms drops
	// the channel offline, still reporting filtered 75. A frame at
	// t=610ms reinitializes the filter to 100, not a blend with 75.
	agg := newTestAggregator(t, 0.5, 500*time.Millisecond)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	steps := []struct {
		at       time.Duration
		raw      float64
		filtered float64
	}{
		{0, 0, 0},
		{10 * time.Millisecond, 100, 50},
		{20 * time.Millisecond, 100, 75},
	}
	for _, st := range steps {
		snap := agg.Sample([]byte(fmt.Sprintf("%g\n", st.raw)), start.Add(st.at))
		rd := joint(t, snap, "J1")
		if !rd.Online {
			t.Fatalf("t=%v: expected online", st.at)
		}
		if math.Abs(rd.Filtered-st.filtered) > 1e-9 {
			t.Errorf("t=%v: filtered = %g, want %g", st.at, rd.Filtered, st.filtered)
		}
	}

	// No frame until t=600ms: offline, last filtered value retained.
	snap := agg.Sample(nil, start.Add(600*time.Millisecond))
	rd := joint(t, snap, "J1")
	if rd.Online {
		t.Error("t=600ms: expected offline after 580ms of silence")
	}
	if !rd.HasData {
		t.Error("t=600ms: channel has history, HasData must stay true")
	}
	if math.Abs(rd.Filtered-75) > 1e-9 {
		t.Errorf("t=600ms: filtered = %g, want last known 75", rd.Filtered)
	}

	// Valid frame at t=610ms: back online, filter reinitialized.
	snap = agg.Sample([]byte("100\n"), start.Add(610*time.Millisecond))
	rd = joint(t, snap, "J1")
	if !rd.Online {
		t.Error("t=610ms: expected online again")
	}
	if math.Abs(rd.Filtered-100) > 1e-9 {
		t.Errorf("t=610ms: filtered = %g, want 100 (no blending across the gap)", rd.Filtered)
	}
}

func TestMalformedFrameLeavesStateUntouched(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run := func(frames []string) *Snapshot {
		agg := newTestAggregator(t, 0.5, time.Second)
		var snap *Snapshot
		for i, f := range frames {
			snap = agg.Sample([]byte(f), start.Add(time.Duration(i)*10*time.Millisecond))
		}
		return snap
	}

	clean := run([]string{"10\n", "30\n"})
	corrupt := run([]string{"10\n", "ga<rbage,,\n", "30\n"})

	if !reflect.DeepEqual(clean.Joints, corrupt.Joints) {
		t.Errorf("corrupt frame changed state:\nclean:   %+v\ncorrupt: %+v", clean.Joints, corrupt.Joints)
	}
}

func TestSentinelDropsChannelImmediately(t *testing.T) {
	agg := newTestAggregator(t, 0.5, time.Hour)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	agg.Sample([]byte("42\n"), start)
	snap := agg.Sample([]byte("-1\n"), start.Add(10*time.Millisecond))
	rd := joint(t, snap, "J1")
	if rd.Online {
		t.Error("explicit sentinel should take the channel offline before any timeout")
	}
	if math.Abs(rd.Filtered-42) > 1e-9 {
		t.Errorf("offline channel filtered = %g, want last known 42", rd.Filtered)
	}

	// Re-entry reinitializes the filter.
	snap = agg.Sample([]byte("100\n"), start.Add(20*time.Millisecond))
	rd = joint(t, snap, "J1")
	if !rd.Online {
		t.Error("expected online after sentinel clears")
	}
	if math.Abs(rd.Filtered-100) > 1e-9 {
		t.Errorf("filtered after re-entry = %g, want 100", rd.Filtered)
	}
}

func TestNeverOnlineChannelHasNoData(t *testing.T) {
	agg := newTestAggregator(t, 0.5, time.Second)
	snap := agg.Sample(nil, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	rd := joint(t, snap, "J1")
	if rd.HasData {
		t.Error("channel that never went online must report HasData=false")
	}
	if rd.Online {
		t.Error("channel that never went online must report Online=false")
	}
}

func TestSnapshotCoversAllChannels(t *testing.T) {
	agg, err := NewAggregator(
		[]Channel{
			{ID: 0, MuxIndex: 0, Name: "J1"},
			{ID: 1, MuxIndex: 1, Name: "J2"},
			{ID: 2, MuxIndex: 2, Name: "J3"},
		},
		map[ChannelID]Params{
			0: {Alpha: 0.5, Timeout: time.Second},
			1: {Alpha: 0.5, Timeout: time.Second},
			2: {Alpha: 0.5, Timeout: time.Second},
		},
		1.0,
	)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	// Only J1 and J2 deliver data; J3 sends the sentinel.
	snap := agg.Sample([]byte("10,20,-1\n"), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if len(snap.Joints) != 3 {
		t.Fatalf("snapshot has %d joints, want 3", len(snap.Joints))
	}
	if !snap.Joints["J1"].Online || !snap.Joints["J2"].Online {
		t.Error("J1/J2 should be online")
	}
	if snap.Joints["J3"].Online || snap.Joints["J3"].HasData {
		t.Error("J3 should be offline with no data")
	}
}

func TestCalibrateZeroesCurrentAngle(t *testing.T) {
	agg := newTestAggregator(t, 0.5, time.Second)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	agg.Sample([]byte("123\n"), start)
	if err := agg.Calibrate(0); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	snap := agg.Sample([]byte("123\n"), start.Add(10*time.Millisecond))
	rd := joint(t, snap, "J1")
	if math.Abs(rd.Calibrated) > 1e-9 {
		t.Errorf("calibrated angle after Calibrate = %g, want 0", rd.Calibrated)
	}
	if math.Abs(rd.Filtered) > 1e-9 {
		t.Errorf("filtered after Calibrate = %g, want 0 (filter restarted in the new frame)", rd.Filtered)
	}
}

func TestCalibrateOfflineFails(t *testing.T) {
	agg := newTestAggregator(t, 0.5, time.Second)

	if err := agg.Calibrate(0); !errors.Is(err, ErrChannelOffline) {
		t.Errorf("Calibrate on never-online channel: err = %v, want ErrChannelOffline", err)
	}

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	agg.Sample([]byte("10\n"), start)
	agg.Sample(nil, start.Add(2*time.Second))
	if err := agg.Calibrate(0); !errors.Is(err, ErrChannelOffline) {
		t.Errorf("Calibrate on timed-out channel: err = %v, want ErrChannelOffline", err)
	}
}

func TestCalibrateJointByName(t *testing.T) {
	agg := newTestAggregator(t, 0.5, time.Second)
	agg.Sample([]byte("50\n"), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	if err := agg.CalibrateJoint("J1"); err != nil {
		t.Errorf("CalibrateJoint(J1): %v", err)
	}
	if err := agg.CalibrateJoint("J9"); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("CalibrateJoint(J9): err = %v, want ErrUnknownChannel", err)
	}
}

func TestNewAggregatorValidation(t *testing.T) {
	ch := []Channel{{ID: 0, Name: "J1"}}
	good := map[ChannelID]Params{0: {Alpha: 0.5, Timeout: time.Second}}

	cases := []struct {
		name     string
		channels []Channel
		params   map[ChannelID]Params
		scale    float64
	}{
		{"no channels", nil, good, 1},
		{"missing params", ch, map[ChannelID]Params{}, 1},
		{"bad alpha", ch, map[ChannelID]Params{0: {Alpha: 0, Timeout: time.Second}}, 1},
		{"bad timeout", ch, map[ChannelID]Params{0: {Alpha: 0.5, Timeout: 0}}, 1},
		{"bad scale", ch, good, 0},
		{"duplicate id", []Channel{{ID: 0, Name: "J1"}, {ID: 0, Name: "J2"}}, good, 1},
		{"duplicate name", []Channel{{ID: 0, Name: "J1"}, {ID: 1, Name: "J1"}},
			map[ChannelID]Params{0: {Alpha: 0.5, Timeout: time.Second}, 1: {Alpha: 0.5, Timeout: time.Second}}, 1},
		{"unnamed channel", []Channel{{ID: 0}}, good, 1},
	}
	for _, tc := range cases {
		if _, err := NewAggregator(tc.channels, tc.params, tc.scale); err == nil {
			t.Errorf("%s: expected configuration error", tc.name)
		}
	}
}

func TestLatestPublish(t *testing.T) {
	var latest Latest
	if latest.Load() != nil {
		t.Error("Latest should be nil before the first Store")
	}

	snap := &Snapshot{Time: time.Now()}
	latest.Store(snap)
	if latest.Load() != snap {
		t.Error("Load did not return the stored snapshot")
	}
}
