// Package protocol decodes captured packets into network behavior events.
package protocol

import (
	"BehaviorSpectra/internal/model"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNoEvent is returned for packets that do not open a connection.
var ErrNoEvent = errors.New("packet does not describe a connection")

type endpoints struct {
	client, server         net.IP
	clientPort, serverPort uint16
	proto                  string
}

// ParsePacket decodes a raw Ethernet frame. See ParseEvent.
func ParsePacket(data []byte, ci gopacket.CaptureInfo) (*model.Event, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	packet.Metadata().CaptureInfo = ci
	return ParseEvent(packet)
}

// ParseEvent turns a packet that opens a connection into an fd event. A TCP SYN becomes a
// "connect" from its source, a SYN-ACK an "accept" on its source and every UDP datagram a
// "connect" to its destination. Other packets yield ErrNoEvent.
func ParseEvent(packet gopacket.Packet) (*model.Event, error) {
	evt := &model.Event{Timestamp: time.Now()}
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		evt.Timestamp = meta.Timestamp
	}

	var (
		src, dst net.IP
		family   string
	)
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		src, dst, family = ip.SrcIP, ip.DstIP, "ipv4"
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		src, dst, family = ip.SrcIP, ip.DstIP, "ipv6"
	} else {
		return nil, fmt.Errorf("%w: not an IP packet", ErrNoEvent)
	}

	var ep endpoints
	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		switch {
		case tcp.SYN && !tcp.ACK:
			evt.Type = "connect"
			ep = endpoints{client: src, server: dst, clientPort: uint16(tcp.SrcPort), serverPort: uint16(tcp.DstPort)}
		case tcp.SYN && tcp.ACK:
			evt.Type = "accept"
			ep = endpoints{client: dst, server: src, clientPort: uint16(tcp.DstPort), serverPort: uint16(tcp.SrcPort)}
		default:
			return nil, fmt.Errorf("%w: tcp segment without SYN", ErrNoEvent)
		}
		ep.proto = "tcp"
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		evt.Type = "connect"
		ep = endpoints{client: src, server: dst, clientPort: uint16(udp.SrcPort), serverPort: uint16(udp.DstPort), proto: "udp"}
	} else {
		return nil, fmt.Errorf("%w: not a TCP or UDP packet", ErrNoEvent)
	}

	evt.Attributes = ep.attributes(family)
	return evt, nil
}

func (ep endpoints) attributes(family string) map[string]string {
	cport := strconv.Itoa(int(ep.clientPort))
	sport := strconv.Itoa(int(ep.serverPort))
	name := net.JoinHostPort(ep.client.String(), cport) + "->" + net.JoinHostPort(ep.server.String(), sport)
	return map[string]string{
		"fd.type":    family,
		"fd.l4proto": ep.proto,
		"fd.cip":     ep.client.String(),
		"fd.sip":     ep.server.String(),
		"fd.cport":   cport,
		"fd.sport":   sport,
		"fd.dip":     ep.server.String(),
		"fd.dport":   sport,
		"fd.name":    name,
		"fd.nameraw": name,
	}
}
