package sensor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/fusion.report/internal/monitoring"
)

// Handler receives canonical measurements from an acquisition source.
type Handler func(Measurement) error

// UDPListener receives measurement lines over UDP from live sensor
// gateways. Each datagram carries one or more newline-separated
// measurement-log lines in the same format ParseLine accepts.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	handler     Handler

	packets   atomic.Int64
	malformed atomic.Int64
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Handler     Handler
}

// NewUDPListener creates a UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		handler:     config.Handler,
	}
}

// Start listens for measurement datagrams until the context is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	monitoring.Logf("measurement listener started on %s", l.address)

	go l.startStatsLogging(ctx)

	buffer := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("measurement listener stopping: context cancelled")
			return ctx.Err()
		default:
			// Read deadline keeps the loop responsive to cancellation.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, from, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			if err := l.handleDatagram(buffer[:n]); err != nil {
				monitoring.Logf("error handling datagram from %v: %v", from, err)
			}
		}
	}
}

// handleDatagram parses each newline-separated line of the payload and
// delivers the measurements in order. Malformed lines are counted and
// skipped; a handler error aborts the datagram.
func (l *UDPListener) handleDatagram(payload []byte) error {
	l.packets.Add(1)
	scan := bufio.NewScanner(bytes.NewReader(payload))
	for scan.Scan() {
		line := bytes.TrimSpace(scan.Bytes())
		if len(line) == 0 {
			continue
		}
		m, err := ParseLine(string(line))
		if err != nil {
			l.malformed.Add(1)
			continue
		}
		if l.handler != nil {
			if err := l.handler(m); err != nil {
				return fmt.Errorf("measurement handler: %w", err)
			}
		}
	}
	return scan.Err()
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitoring.Logf("measurement listener: %d packets, %d malformed lines",
				l.packets.Load(), l.malformed.Load())
		}
	}
}
