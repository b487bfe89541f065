package sensor

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.bug.st/serial"

	"github.com/banshee-data/fusion.report/internal/monitoring"
)

// SerialSource reads measurement lines from a sensor gateway attached over
// a serial port, one line per measurement in the ParseLine format.
type SerialSource struct {
	port io.ReadCloser
	name string
}

// NewSerialSource opens the named serial port at the gateway's fixed
// framing (115200 8N1).
func NewSerialSource(portName string) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	return &SerialSource{port: port, name: portName}, nil
}

// NewSerialSourceFromReader wraps an already-open stream; tests and the
// dev-mode fixture path use it.
func NewSerialSourceFromReader(r io.ReadCloser) *SerialSource {
	return &SerialSource{port: r, name: "reader"}
}

// Monitor scans lines off the port and delivers parsed measurements until
// EOF or context cancellation. Malformed lines are logged and skipped so a
// glitched serial read does not stop acquisition.
func (s *SerialSource) Monitor(ctx context.Context, handle Handler) error {
	scan := bufio.NewScanner(s.port)
	for scan.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		m, err := ParseLine(line)
		if err != nil {
			monitoring.Logf("serial %s: skipping line: %v", s.name, err)
			continue
		}
		if err := handle(m); err != nil {
			return err
		}
	}
	return scan.Err()
}

// Close closes the serial port.
func (s *SerialSource) Close() error {
	return s.port.Close()
}
