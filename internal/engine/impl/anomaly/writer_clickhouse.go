package anomaly

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/model"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createAnomaliesTableStatement = `
CREATE TABLE IF NOT EXISTS behavior_anomalies (
    Timestamp     DateTime64(3),
    ProfileIndex  UInt32,
    EventType     LowCardinality(String),
    Tid           Int64,
    ProfileKey    String,
    Estimate      UInt64,
    DurationNs    Int64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (ProfileIndex, Timestamp);
`

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter connects to ClickHouse and ensures the anomalies table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (model.Writer, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createAnomaliesTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create behavior_anomalies table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured behavior_anomalies table exists.")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

// Write inserts records as one batch.
func (w *ClickHouseWriter) Write(records []model.AnomalyRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO behavior_anomalies")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range records {
		if err := batch.Append(recordTime(r), uint32(r.ProfileIndex), r.EventType, r.Tid, r.Key, r.Estimate, r.DurationNs); err != nil {
			return fmt.Errorf("failed to append anomaly to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d anomalies to ClickHouse", len(records))
	return nil
}

func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
