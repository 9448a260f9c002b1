package probe

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/model"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing events to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("bs-probe"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish serializes an event to Protobuf and publishes it to the configured NATS subject.
func (p *Publisher) Publish(evt *model.Event) error {
	data, err := EncodeEvent(evt)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			log.Printf("Error draining NATS connection: %v", err)
		}
		log.Println("NATS connection drained and closed.")
	}
}
