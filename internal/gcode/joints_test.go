package gcode

import (
	"reflect"
	"testing"
)

func TestJointAxisMapping(t *testing.T) {
	var m Move
	for joint, want := range map[int]Axis{1: AxisX, 2: AxisY, 3: AxisZ, 4: AxisA, 5: AxisB, 6: AxisC} {
		if err := m.SetJoint(joint, 1); err != nil {
			t.Fatalf("SetJoint(%d): %v", joint, err)
		}
		if _, ok := m.Axes[want]; !ok {
			t.Errorf("joint J%d did not map to axis %s", joint, want)
		}
	}

	if err := m.SetJoint(7, 1); err == nil {
		t.Error("SetJoint(7) should fail")
	}
	if err := m.SetJoint(0, 1); err == nil {
		t.Error("SetJoint(0) should fail")
	}
}

func TestJointOverridesAxis(t *testing.T) {
	var m Move
	m.SetAxis(AxisX, 5)
	if err := m.SetJoint(1, 12); err != nil {
		t.Fatalf("SetJoint: %v", err)
	}
	if m.Axes[AxisX] != 12 {
		t.Errorf("X = %g, want joint value 12 to override", m.Axes[AxisX])
	}
}

func TestCommandsAbsoluteMove(t *testing.T) {
	m := Move{Feed: 400}
	m.SetJoint(1, 5)

	got, err := m.Commands()
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	want := []string{"G1 X5 F400"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Commands() = %v, want %v", got, want)
	}
}

func TestCommandsRelativeWrap(t *testing.T) {
	m := Move{Feed: 1200, Relative: true}
	m.SetAxis(AxisY, -2.5)

	got, err := m.Commands()
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	want := []string{"G91", "G1 Y-2.5 F1200", "G90"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Commands() = %v, want %v", got, want)
	}
}

func TestCommandsFakeHomeFirst(t *testing.T) {
	m := Move{Feed: 400, Relative: true, FakeHomeFirst: true}
	m.SetJoint(2, 10)

	got, err := m.Commands()
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	want := []string{"FAKE_HOME", "G91", "G1 Y10 F400", "G90"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Commands() = %v, want %v", got, want)
	}
}

func TestCommandsAxisOrderIsStable(t *testing.T) {
	m := Move{Feed: 400}
	m.SetAxis(AxisC, 3)
	m.SetAxis(AxisX, 1)
	m.SetAxis(AxisZ, 2)

	got, err := m.Commands()
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	want := []string{"G1 X1 Z2 C3 F400"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Commands() = %v, want %v", got, want)
	}
}

func TestCommandsNoAxesFails(t *testing.T) {
	m := Move{Feed: 400}
	if _, err := m.Commands(); err == nil {
		t.Error("expected error when no axis values are set")
	}
}
