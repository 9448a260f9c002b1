package pcap

import (
	"BehaviorSpectra/internal/engine/protocol"
	"BehaviorSpectra/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// Reader replays a pcap capture as network behavior events.
type Reader struct {
	source *pcapgo.Reader
	file   *os.File
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	r, err := NewReaderFrom(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

// NewReaderFrom reads a capture from an arbitrary stream.
func NewReaderFrom(in io.Reader) (*Reader, error) {
	source, err := pcapgo.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{source: source}, nil
}

// Close closes the underlying file, if any.
func (r *Reader) Close() {
	if r.file != nil {
		r.file.Close()
	}
}

// ReadEvents decodes every packet and sends the events it yields to out. Packets carry no thread
// id, so each event's Tid is the 1-based ordinal of its packet in the capture. ReadEvents closes
// out when the capture ends or ctx is done and returns the number of events sent.
func (r *Reader) ReadEvents(ctx context.Context, out chan<- *model.Event) (int, error) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())

	var ordinal int64
	sent := 0
	for {
		packet, err := packetSource.NextPacket()
		if err == io.EOF {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("failed to read packet %d: %w", ordinal+1, err)
		}
		ordinal++

		evt, err := protocol.ParseEvent(packet)
		if err != nil {
			if !errors.Is(err, protocol.ErrNoEvent) {
				log.Printf("Error parsing packet %d: %v", ordinal, err)
			}
			continue
		}
		evt.Tid = ordinal

		select {
		case out <- evt:
			sent++
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
}
