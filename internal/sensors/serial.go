package sensors

import (
	"bufio"
	"fmt"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"
)

// SerialSource reads encoder frames from the ESP32 over USB serial, one
// line per sampling period.
type SerialSource struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader
}

// NewSerialSource opens the encoder serial port. Typical ports are
// /dev/ttyUSB0 or /dev/ttyACM0 at 115200 baud, matching the firmware.
func NewSerialSource(portName string, baudRate uint) (*SerialSource, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open encoder serial port %s: %w", portName, err)
	}
	log.Printf("encoder serial port opened on %s at %d baud", portName, baudRate)

	return &SerialSource{port: port, reader: bufio.NewReader(port)}, nil
}

// Next returns the next raw line from the port, terminator included. The
// decoder handles framing and validation, so partial or noisy lines are
// passed through as-is.
func (s *SerialSource) Next() ([]byte, error) {
	line, err := s.reader.ReadBytes('\n')
	if len(line) > 0 {
		return line, nil
	}
	return nil, err
}

func (s *SerialSource) Close() error {
	return s.port.Close()
}
