package protocol

import (
	"BehaviorSpectra/internal/model"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func serialize(t *testing.T, transport gopacket.SerializableLayer, proto layers.IPProtocol) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	switch l := transport.(type) {
	case *layers.TCP:
		l.SetNetworkLayerForChecksum(ip)
	case *layers.UDP:
		l.SetNetworkLayerForChecksum(ip)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(nil)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParsePacket_TCPConnect(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data := serialize(t, &layers.TCP{SrcPort: 40000, DstPort: 443, SYN: true, Window: 1024}, layers.IPProtocolTCP)
	evt, err := ParsePacket(data, gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)})
	if err != nil {
		t.Fatal(err)
	}
	expected := &model.Event{
		Type:      "connect",
		Timestamp: ts,
		Attributes: map[string]string{
			"fd.type":    "ipv4",
			"fd.l4proto": "tcp",
			"fd.cip":     "10.0.0.1",
			"fd.sip":     "10.0.0.2",
			"fd.cport":   "40000",
			"fd.sport":   "443",
			"fd.dip":     "10.0.0.2",
			"fd.dport":   "443",
			"fd.name":    "10.0.0.1:40000->10.0.0.2:443",
			"fd.nameraw": "10.0.0.1:40000->10.0.0.2:443",
		},
	}
	if diff := cmp.Diff(expected, evt); diff != "" {
		t.Error(diff)
	}
}

func TestParsePacket_TCPAccept(t *testing.T) {
	data := serialize(t, &layers.TCP{SrcPort: 22, DstPort: 51000, SYN: true, ACK: true, Window: 1024}, layers.IPProtocolTCP)
	evt, err := ParsePacket(data, gopacket.CaptureInfo{CaptureLength: len(data), Length: len(data)})
	if err != nil {
		t.Fatal(err)
	}
	if evt.Type != "accept" || evt.Attr("fd.sip") != "10.0.0.1" || evt.Attr("fd.sport") != "22" || evt.Attr("fd.cport") != "51000" {
		t.Errorf("unexpected accept event %+v", evt)
	}
}

func TestParsePacket_UDP(t *testing.T) {
	data := serialize(t, &layers.UDP{SrcPort: 5353, DstPort: 53}, layers.IPProtocolUDP)
	evt, err := ParsePacket(data, gopacket.CaptureInfo{CaptureLength: len(data), Length: len(data)})
	if err != nil {
		t.Fatal(err)
	}
	if evt.Type != "connect" || evt.Attr("fd.l4proto") != "udp" || evt.Attr("fd.dport") != "53" {
		t.Errorf("unexpected udp event %+v", evt)
	}
}

func TestParsePacket_NoEvent(t *testing.T) {
	data := serialize(t, &layers.TCP{SrcPort: 40000, DstPort: 443, ACK: true, Window: 1024}, layers.IPProtocolTCP)
	if _, err := ParsePacket(data, gopacket.CaptureInfo{CaptureLength: len(data), Length: len(data)}); !errors.Is(err, ErrNoEvent) {
		t.Errorf("ParsePacket(ack) error = %v, want ErrNoEvent", err)
	}
	if _, err := ParsePacket([]byte{0x01, 0x02}, gopacket.CaptureInfo{}); !errors.Is(err, ErrNoEvent) {
		t.Errorf("ParsePacket(garbage) error = %v, want ErrNoEvent", err)
	}
}
