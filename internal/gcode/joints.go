// Package gcode builds and delivers the G-code the motion controller
// understands. It is a thin formatter: joint values map onto printer axes
// and become a single G1 move, sent either to Moonraker over HTTP or
// straight to the controller's serial port. No planning or kinematics
// happens here.
package gcode

import (
	"fmt"
	"strconv"
	"strings"
)

// Axis is a motion-controller axis letter.
type Axis string

const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"
	AxisA Axis = "A"
	AxisB Axis = "B"
	AxisC Axis = "C"
)

// axisOrder fixes the emission order so generated commands are stable.
var axisOrder = []Axis{AxisX, AxisY, AxisZ, AxisA, AxisB, AxisC}

// jointAxes maps J1..J6 onto X,Y,Z,A,B,C, matching the printer.cfg axis
// assignment on the controller.
var jointAxes = map[int]Axis{
	1: AxisX,
	2: AxisY,
	3: AxisZ,
	4: AxisA,
	5: AxisB,
	6: AxisC,
}

// Move describes one G1 move in axis space.
type Move struct {
	Axes map[Axis]float64
	// Feed is the feed rate in mm/min for the generated G1.
	Feed float64
	// Relative wraps the move in G91/G90 so values are offsets.
	Relative bool
	// FakeHomeFirst prepends the FAKE_HOME macro (defined in
	// printer.cfg) so Klipper accepts moves without a real homing run.
	FakeHomeFirst bool
}

// SetAxis sets a target for one axis.
func (m *Move) SetAxis(axis Axis, value float64) {
	if m.Axes == nil {
		m.Axes = make(map[Axis]float64)
	}
	m.Axes[axis] = value
}

// SetJoint sets a target for joint 1..6, overriding any direct value on the
// mapped axis.
func (m *Move) SetJoint(joint int, value float64) error {
	axis, ok := jointAxes[joint]
	if !ok {
		return fmt.Errorf("joint J%d does not exist (valid: J1..J6)", joint)
	}
	m.SetAxis(axis, value)
	return nil
}

// Commands renders the move as a list of G-code lines.
func (m Move) Commands() ([]string, error) {
	var parts []string
	for _, axis := range axisOrder {
		if v, ok := m.Axes[axis]; ok {
			parts = append(parts, string(axis)+formatValue(v))
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no axis or joint values provided")
	}

	var commands []string
	if m.FakeHomeFirst {
		commands = append(commands, "FAKE_HOME")
	}
	if m.Relative {
		commands = append(commands, "G91")
	}
	commands = append(commands, fmt.Sprintf("G1 %s F%s", strings.Join(parts, " "), formatValue(m.Feed)))
	if m.Relative {
		commands = append(commands, "G90")
	}
	return commands, nil
}

// formatValue renders numbers the compact way controllers expect: no
// trailing zeros, no exponent for ordinary magnitudes.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
