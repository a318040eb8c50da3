package feedback

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// Wire format, one line per sampling period:
//
//	<raw0>,<raw1>,...,<rawN>[*HH]\n
//
// One comma-separated field per configured channel, in topology order. A
// field is either the raw AS5600 count (0..4095) or the sentinel "-1" (the
// firmware may also send a bare "-") for a channel whose magnet or sensor is
// absent. The optional *HH suffix is an NMEA-style XOR checksum over the
// payload and is validated when present. Anything else (wrong field count,
// junk field, bad checksum) discards the whole line; a corrupt value must
// never reach the filter state.

// RawReading is one decoded sample for one channel.
type RawReading struct {
	Channel ChannelID
	Raw     float64
	Time    time.Time
	// Valid is false when the frame carried the offline sentinel for
	// this channel. Downstream stages rely on this flag rather than
	// inspecting the raw number.
	Valid bool
}

// Frame is one complete, well-formed record: exactly one reading per
// configured channel.
type Frame struct {
	Time     time.Time
	Readings []RawReading
}

// maxLineLen bounds the unparsed buffer so a stream that never delivers a
// newline cannot grow it without limit.
const maxLineLen = 4096

// Decoder accumulates serial bytes and yields complete frames. It is pure
// with respect to calibration and filter state; its only state is the
// unparsed tail of the byte stream.
type Decoder struct {
	ids     []ChannelID
	buf     []byte
	dropped int
}

// NewDecoder creates a decoder expecting one field per entry of ids, in
// order.
func NewDecoder(ids []ChannelID) *Decoder {
	return &Decoder{ids: ids}
}

// Push appends chunk to the internal buffer and returns all complete frames
// it now contains. Trailing partial bytes stay buffered for the next call.
// Malformed lines are dropped without emitting any per-channel update.
func (d *Decoder) Push(chunk []byte, now time.Time) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			break
		}
		line := strings.TrimSpace(string(d.buf[:nl]))
		d.buf = d.buf[nl+1:]

		if line == "" {
			continue
		}
		frame, err := d.parseLine(line, now)
		if err != nil {
			d.dropped++
			log.Printf("feedback: dropped malformed frame: %v", err)
			continue
		}
		frames = append(frames, frame)
	}

	// No newline in sight and the buffer is past any plausible line
	// length: the stream is garbage or we joined mid-line. Start over.
	if len(d.buf) > maxLineLen {
		d.buf = d.buf[:0]
		d.dropped++
		log.Printf("feedback: dropped oversized partial frame")
	}

	return frames
}

// Dropped returns how many malformed frames have been discarded so far.
func (d *Decoder) Dropped() int { return d.dropped }

func (d *Decoder) parseLine(line string, now time.Time) (Frame, error) {
	payload := line
	if star := strings.LastIndexByte(line, '*'); star >= 0 {
		payload = line[:star]
		sum, err := strconv.ParseUint(line[star+1:], 16, 8)
		if err != nil {
			return Frame{}, fmt.Errorf("bad checksum field %q", line[star+1:])
		}
		if byte(sum) != Checksum(payload) {
			return Frame{}, fmt.Errorf("checksum mismatch: got %02X want %02X", sum, Checksum(payload))
		}
	}

	fields := strings.Split(payload, ",")
	if len(fields) != len(d.ids) {
		return Frame{}, fmt.Errorf("field count %d, want %d", len(fields), len(d.ids))
	}

	readings := make([]RawReading, len(fields))
	for i, field := range fields {
		field = strings.TrimSpace(field)
		rd := RawReading{Channel: d.ids[i], Time: now}

		if field == "-" || field == "-1" {
			// explicit "no sensor" sentinel
			readings[i] = rd
			continue
		}
		raw, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Frame{}, fmt.Errorf("field %d not numeric: %q", i, field)
		}
		rd.Raw = raw
		rd.Valid = true
		readings[i] = rd
	}

	return Frame{Time: now, Readings: readings}, nil
}

// Checksum computes the NMEA-style XOR checksum of a frame payload. Exported
// so frame producers (the I2C source, tests) can emit lines the decoder
// accepts.
func Checksum(payload string) byte {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return sum
}
