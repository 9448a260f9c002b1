package model

import "time"

// Writer defines a generic interface for persisting anomaly records.
type Writer interface {
	// Write persists a batch of anomaly records. An empty batch is a no-op.
	Write(records []AnomalyRecord) error

	// GetInterval returns the configured flush interval for this writer.
	GetInterval() time.Duration

	// Close releases the writer's resources.
	Close() error
}

// Notifier delivers a human readable anomaly summary, e.g. by email.
type Notifier interface {
	Send(subject, body string) error
}
