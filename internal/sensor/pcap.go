//go:build pcap
// +build pcap

package sensor

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/fusion.report/internal/monitoring"
)

// ReadPCAPFile replays recorded sensor UDP traffic from a PCAP capture,
// parsing each datagram payload as measurement lines and delivering them
// to handle. Only available when building with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handle Handler) error {
	h, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer h.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := h.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}

	source := gopacket.NewPacketSource(h, h.LinkType())
	packetCount := 0
	measurementCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP reader stopping: context cancelled (%d packets)", packetCount)
			return ctx.Err()
		case packet := <-source.Packets():
			if packet == nil {
				monitoring.Logf("PCAP replay complete: %d packets, %d measurements in %v",
					packetCount, measurementCount, time.Since(startTime))
				return nil
			}
			packetCount++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			for _, line := range bytes.Split(udp.Payload, []byte("\n")) {
				line = bytes.TrimSpace(line)
				if len(line) == 0 {
					continue
				}
				m, err := ParseLine(string(line))
				if err != nil {
					continue
				}
				measurementCount++
				if err := handle(m); err != nil {
					return err
				}
			}
		}
	}
}
