package gcode

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// LineEndings maps the human-friendly option names to the terminators
// controller firmwares expect.
var LineEndings = map[string]string{
	"lf":   "\n",
	"cr":   "\r",
	"crlf": "\r\n",
}

// SerialSender streams G-code lines straight to a controller's serial port,
// for setups without Moonraker in between.
type SerialSender struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader

	// LineEnding terminates each command ("\n" by default).
	LineEnding string
	// Wait is the pause between commands, giving the controller's input
	// buffer room to drain.
	Wait time.Duration
	// Verbose echoes each command and the controller's response line.
	Verbose bool
}

// NewSerialSender opens the controller port. The read timeout lets Verbose
// mode poll for a response without hanging on a silent controller.
func NewSerialSender(portName string, baudRate uint) (*SerialSender, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 500, // milliseconds
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open controller serial port %s: %w", portName, err)
	}

	return &SerialSender{
		port:       port,
		reader:     bufio.NewReader(port),
		LineEnding: "\n",
		Wait:       100 * time.Millisecond,
	}, nil
}

// Send streams each command with the configured pacing.
func (s *SerialSender) Send(commands []string) error {
	for _, cmd := range commands {
		if s.Verbose {
			log.Printf(">> %s", cmd)
		}
		if _, err := s.port.Write([]byte(cmd + s.LineEnding)); err != nil {
			return fmt.Errorf("write %q: %w", cmd, err)
		}
		time.Sleep(s.Wait)

		if s.Verbose {
			if resp, err := s.reader.ReadString('\n'); err == nil {
				if resp = strings.TrimSpace(resp); resp != "" {
					log.Printf("<< %s", resp)
				}
			}
		}
	}
	return nil
}

func (s *SerialSender) Close() error {
	return s.port.Close()
}
