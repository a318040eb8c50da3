// Package sensors provides the frame sources that feed the feedback
// pipeline: the ESP32 serial link, a host-attached AS5600 chain read
// directly over I2C, and a mock generator for bench runs without hardware.
// All sources speak the same line protocol, so the rest of the stack never
// cares where the bytes came from.
package sensors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Patvscode/ARA6D/internal/feedback"
)

// FrameSource yields raw frame bytes for the feedback aggregator.
type FrameSource interface {
	// Next blocks until the next chunk of frame bytes is available.
	Next() ([]byte, error)
	Close() error
}

// formatFrame renders one wire-format line: comma-separated raw values (or
// the -1 sentinel for absent channels) plus the XOR checksum suffix the
// decoder validates.
func formatFrame(raws []float64, valid []bool) []byte {
	fields := make([]string, len(raws))
	for i := range raws {
		if valid[i] {
			fields[i] = strconv.FormatFloat(raws[i], 'g', -1, 64)
		} else {
			fields[i] = "-1"
		}
	}
	payload := strings.Join(fields, ",")
	return []byte(fmt.Sprintf("%s*%02X\n", payload, feedback.Checksum(payload)))
}
