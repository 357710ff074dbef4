package icmp

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Origin describes the datagram quoted inside an ICMP error message
type Origin struct {
	IPProto  int
	Protocol string
	Src      net.IP
	Dst      net.IP
	SrcPort  int
	DstPort  int
	EchoID   int
	EchoSeq  int
}

// parseOrigin decodes the quoted IPv4 header plus leading transport bytes.
// Routers only quote 8 bytes past the IP header, so TCP is read by hand.
func parseOrigin(b []byte) *Origin {
	if len(b) < ipv4Len {
		return nil
	}

	pkt := gopacket.NewPacket(b, layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ipLayer, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return nil
	}

	o := &Origin{
		IPProto:  int(ipLayer.Protocol),
		Protocol: ipLayer.Protocol.String(),
		Src:      ipLayer.SrcIP,
		Dst:      ipLayer.DstIP,
	}

	switch ipLayer.Protocol {
	case layers.IPProtocolICMPv4:
		if echo, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
			o.EchoID = int(echo.Id)
			o.EchoSeq = int(echo.Seq)
		}
	case layers.IPProtocolUDP:
		if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			o.SrcPort = int(udp.SrcPort)
			o.DstPort = int(udp.DstPort)
		}
	case layers.IPProtocolTCP:
		if p := ipLayer.Payload; len(p) >= 4 {
			o.SrcPort = int(binary.BigEndian.Uint16(p[0:2]))
			o.DstPort = int(binary.BigEndian.Uint16(p[2:4]))
		}
	}
	return o
}

// quotesOtherEcho reports whether the quoted datagram is an echo request
// that does not belong to id/seq
func (o *Origin) quotesOtherEcho(id, seq uint16) bool {
	if o == nil || o.IPProto != int(layers.IPProtocolICMPv4) {
		return false
	}
	return o.EchoID != int(id) || o.EchoSeq != int(seq)
}
