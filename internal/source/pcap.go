package source

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PcapSource turns the connection attempts (TCP SYN without ACK) of a
// capture file into traffic lines. The file is re-read on every window.
type PcapSource struct {
	path string
}

func NewPcapSource(path string) *PcapSource {
	return &PcapSource{path: path}
}

func (s *PcapSource) Name() string {
	return "pcap:" + s.path
}

func (s *PcapSource) Open(ctx context.Context) (Stream, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, unavailable(s.Name(), err)
	}

	return &pcapStream{
		name:    s.Name(),
		file:    f,
		packets: gopacket.NewPacketSource(reader, reader.LinkType()),
	}, nil
}

func (s *PcapSource) Close() error {
	return nil
}

type pcapStream struct {
	name    string
	file    *os.File
	packets *gopacket.PacketSource
}

func (p *pcapStream) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		packet, err := p.packets.NextPacket()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", unavailable(p.name, err)
		}

		if line, ok := connectionAttempt(packet); ok {
			return line, nil
		}
	}
}

func (p *pcapStream) Close() error {
	return p.file.Close()
}

func connectionAttempt(packet gopacket.Packet) (string, bool) {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return "", false
	}
	tcp, _ := tcpLayer.(*layers.TCP)
	if tcp == nil || !tcp.SYN || tcp.ACK {
		return "", false
	}

	var src, dst string
	if ip4, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		src, dst = ip4.SrcIP.String(), ip4.DstIP.String()
	} else if ip6, ok := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		src, dst = ip6.SrcIP.String(), ip6.DstIP.String()
	} else {
		return "", false
	}

	return FormatLine("tcp", src, int(tcp.DstPort), dst), true
}
