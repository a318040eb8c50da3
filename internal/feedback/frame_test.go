package feedback

import (
	"fmt"
	"testing"
	"time"
)

var testIDs = []ChannelID{0, 1, 2}

func pushAll(t *testing.T, d *Decoder, chunks ...string) []Frame {
	t.Helper()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var frames []Frame
	for _, c := range chunks {
		frames = append(frames, d.Push([]byte(c), now)...)
	}
	return frames
}

func TestDecodeSingleFrame(t *testing.T) {
	d := NewDecoder(testIDs)
	frames := pushAll(t, d, "100,200,300\n")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	fr := frames[0]
	if len(fr.Readings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(fr.Readings))
	}
	want := []float64{100, 200, 300}
	for i, rd := range fr.Readings {
		if !rd.Valid {
			t.Errorf("reading %d should be valid", i)
		}
		if rd.Raw != want[i] {
			t.Errorf("reading %d = %g, want %g", i, rd.Raw, want[i])
		}
		if rd.Channel != testIDs[i] {
			t.Errorf("reading %d channel = %d, want %d", i, rd.Channel, testIDs[i])
		}
	}
}

func TestDecodePartialChunks(t *testing.T) {
	d := NewDecoder(testIDs)

	frames := pushAll(t, d, "10,2")
	if len(frames) != 0 {
		t.Fatalf("expected no frames from partial line, got %d", len(frames))
	}

	frames = pushAll(t, d, "0,30\n40,50,6")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame once newline arrived, got %d", len(frames))
	}
	if frames[0].Readings[1].Raw != 20 {
		t.Errorf("split field parsed as %g, want 20", frames[0].Readings[1].Raw)
	}

	// Trailing partial bytes must survive to the next push.
	frames = pushAll(t, d, "0\n")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame from completed tail, got %d", len(frames))
	}
	if frames[0].Readings[2].Raw != 60 {
		t.Errorf("tail frame field = %g, want 60", frames[0].Readings[2].Raw)
	}
}

func TestDecodeMultipleFramesPerChunk(t *testing.T) {
	d := NewDecoder(testIDs)
	frames := pushAll(t, d, "1,2,3\n4,5,6\n7,8,9\n")
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[2].Readings[0].Raw != 7 {
		t.Errorf("third frame first field = %g, want 7", frames[2].Readings[0].Raw)
	}
}

func TestDecodeSentinelMarksInvalid(t *testing.T) {
	for _, sentinel := range []string{"-1", "-"} {
		d := NewDecoder(testIDs)
		frames := pushAll(t, d, fmt.Sprintf("100,%s,300\n", sentinel))
		if len(frames) != 1 {
			t.Fatalf("sentinel %q: expected 1 frame, got %d", sentinel, len(frames))
		}
		rds := frames[0].Readings
		if rds[1].Valid {
			t.Errorf("sentinel %q: channel 1 should be invalid", sentinel)
		}
		if !rds[0].Valid || !rds[2].Valid {
			t.Errorf("sentinel %q: neighboring channels should stay valid", sentinel)
		}
	}
}

func TestDecodeMalformedFramesDropped(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"too few fields", "1,2\n"},
		{"too many fields", "1,2,3,4\n"},
		{"non-numeric field", "1,abc,3\n"},
		{"bad checksum value", "1,2,3*ZZ\n"},
		{"checksum mismatch", "1,2,3*00\n"},
	}

	for _, tc := range cases {
		d := NewDecoder(testIDs)
		frames := pushAll(t, d, tc.line)
		if len(frames) != 0 {
			t.Errorf("%s: expected frame to be dropped, got %d frames", tc.name, len(frames))
		}
		if d.Dropped() != 1 {
			t.Errorf("%s: expected dropped count 1, got %d", tc.name, d.Dropped())
		}
	}
}

func TestDecodeValidChecksum(t *testing.T) {
	payload := "100,200,300"
	line := fmt.Sprintf("%s*%02X\n", payload, Checksum(payload))

	d := NewDecoder(testIDs)
	frames := pushAll(t, d, line)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame from checksummed line, got %d", len(frames))
	}
	if d.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", d.Dropped())
	}
}

func TestDecodeCRLFAndBlankLines(t *testing.T) {
	d := NewDecoder(testIDs)
	frames := pushAll(t, d, "\r\n1,2,3\r\n\n")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if d.Dropped() != 0 {
		t.Errorf("blank lines must not count as drops, got %d", d.Dropped())
	}
}

func TestDecodeOversizedPartialReset(t *testing.T) {
	d := NewDecoder(testIDs)
	junk := make([]byte, maxLineLen+1)
	for i := range junk {
		junk[i] = 'x'
	}
	frames := pushAll(t, d, string(junk))
	if len(frames) != 0 {
		t.Fatalf("expected no frames from junk, got %d", len(frames))
	}
	if d.Dropped() != 1 {
		t.Errorf("expected oversized buffer to count as 1 drop, got %d", d.Dropped())
	}

	// Decoder must recover once sane lines resume.
	frames = pushAll(t, d, "1,2,3\n")
	if len(frames) != 1 {
		t.Fatalf("decoder did not recover after reset, got %d frames", len(frames))
	}
}

func TestChecksum(t *testing.T) {
	// XOR of "AB" is 0x41 ^ 0x42 = 0x03.
	if got := Checksum("AB"); got != 0x03 {
		t.Errorf("Checksum(\"AB\") = %02X, want 03", got)
	}
	if got := Checksum(""); got != 0 {
		t.Errorf("Checksum(\"\") = %02X, want 00", got)
	}
}
