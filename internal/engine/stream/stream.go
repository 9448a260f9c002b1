package stream

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/engine/manager"
	"BehaviorSpectra/internal/metrics"
	"BehaviorSpectra/internal/probe"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

// Stream consumes events from NATS and hands them to a manager.
type Stream struct {
	nc          *nats.Conn
	sub         *nats.Subscription
	closed      chan struct{}
	manager     *manager.Manager
	natsURL     string
	natsSubject string
}

// New creates a new event stream feeding mgr.
func New(cfg config.ProbeConfig, mgr *manager.Manager) *Stream {
	return &Stream{
		manager:     mgr,
		natsURL:     cfg.NATSURL,
		natsSubject: cfg.Subject,
		closed:      make(chan struct{}),
	}
}

// Start connects to NATS and begins processing messages. The manager must already be started.
func (s *Stream) Start() error {
	log.Println("Stream starting for nats: ", s.natsURL)
	nc, err := nats.Connect(s.natsURL,
		nats.Name("bs-engine"),
		nats.ClosedHandler(func(*nats.Conn) { close(s.closed) }),
	)
	if err != nil {
		return fmt.Errorf("stream failed to connect to NATS: %w", err)
	}
	s.nc = nc

	s.sub, err = s.nc.Subscribe(s.natsSubject, s.handleEvent)
	if err != nil {
		s.nc.Close()
		return fmt.Errorf("stream failed to subscribe: %w", err)
	}
	log.Printf("Stream subscribed to '%s'", s.natsSubject)
	return nil
}

// Stop unsubscribes and waits for in-flight messages. It does not stop the manager.
func (s *Stream) Stop() {
	log.Println("Stream stopping...")
	if s.nc != nil {
		// Drain unsubscribes, lets pending callbacks finish and closes the connection.
		if err := s.nc.Drain(); err != nil {
			log.Printf("Error draining NATS connection: %v", err)
			s.nc.Close()
		}
		<-s.closed
	}
	log.Println("Stream stopped.")
}

// handleEvent decodes the message and passes it to the manager's channel.
func (s *Stream) handleEvent(msg *nats.Msg) {
	evt, err := probe.DecodeEvent(msg.Data)
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("decode").Inc()
		log.Printf("Error unmarshalling protobuf: %v", err)
		return
	}
	s.manager.Submit(evt)
}
