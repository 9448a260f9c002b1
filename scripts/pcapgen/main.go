package main

import (
	"flag"
	"log"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// service is a destination the simulated host talks to routinely.
type service struct {
	ip   net.IP
	port uint16
	udp  bool
}

var routine = []service{
	{ip: net.IP{10, 0, 0, 53}, port: 53, udp: true},
	{ip: net.IP{10, 0, 1, 10}, port: 443},
	{ip: net.IP{10, 0, 1, 11}, port: 5432},
	{ip: net.IP{10, 0, 2, 20}, port: 6379},
	{ip: net.IP{10, 0, 3, 30}, port: 4222},
}

func main() {
	outputFile := flag.String("o", "behavior.pcap", "Output pcap file path")
	connCount := flag.Int("c", 10000, "Number of connection attempts to generate")
	rareRatio := flag.Float64("rare", 0.005, "Fraction of connections to random, never repeated destinations")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	log.Printf("Generating %d connection attempts into %s...", *connCount, *outputFile)

	host := net.IP{10, 0, 9, 9}
	ts := time.Now().Add(-time.Duration(*connCount) * 10 * time.Millisecond)
	rare := 0
	for i := 0; i < *connCount; i++ {
		svc := routine[rand.IntN(len(routine))]
		if rand.Float64() < *rareRatio {
			svc = service{ip: net.IP{byte(rand.IntN(223) + 1), byte(rand.IntN(256)), byte(rand.IntN(256)), byte(rand.IntN(254) + 1)}, port: uint16(rand.IntN(64511) + 1024)}
			rare++
		}

		data, err := connectPacket(host, uint16(rand.IntN(28232)+32768), svc)
		if err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}
		ts = ts.Add(10 * time.Millisecond)
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
		if err := pcapWriter.WritePacket(ci, data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d connection attempts (%d rare) into %s.", *connCount, rare, *outputFile)
}

// connectPacket builds the first packet of a connection from host:port to svc.
func connectPacket(host net.IP, port uint16, svc service) ([]byte, error) {
	ethLayer := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:   host,
		DstIP:   svc.ip,
		Version: 4,
		IHL:     5,
		TTL:     64,
	}

	var transport gopacket.SerializableLayer
	if svc.udp {
		ipLayer.Protocol = layers.IPProtocolUDP
		udpLayer := &layers.UDP{SrcPort: layers.UDPPort(port), DstPort: layers.UDPPort(svc.port)}
		udpLayer.SetNetworkLayerForChecksum(ipLayer)
		transport = udpLayer
	} else {
		ipLayer.Protocol = layers.IPProtocolTCP
		tcpLayer := &layers.TCP{
			SrcPort: layers.TCPPort(port),
			DstPort: layers.TCPPort(svc.port),
			Seq:     rand.Uint32(),
			SYN:     true,
			Window:  14600,
		}
		tcpLayer.SetNetworkLayerForChecksum(ipLayer)
		transport = tcpLayer
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, transport); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
