package query

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/model"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// DefaultLimit caps the number of anomalies returned when a query sets none.
const DefaultLimit = 100

// AnomalyQuery selects stored anomaly records. Zero values do not filter.
type AnomalyQuery struct {
	Profile *int
	Since   time.Time
	Until   time.Time
	Key     string
	Limit   int
}

// Querier defines the interface for querying stored anomalies.
type Querier interface {
	Anomalies(ctx context.Context, q AnomalyQuery) ([]model.AnomalyRecord, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
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

// buildAnomalyQuery returns the statement and arguments selecting q, newest first.
func buildAnomalyQuery(q AnomalyQuery) (string, []any) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT Timestamp, ProfileIndex, EventType, Tid, ProfileKey, Estimate, DurationNs
		FROM behavior_anomalies
	`)

	var whereClauses []string
	args := []any{}

	if q.Profile != nil {
		whereClauses = append(whereClauses, "ProfileIndex = ?")
		args = append(args, uint32(*q.Profile))
	}
	if !q.Since.IsZero() {
		whereClauses = append(whereClauses, "Timestamp >= ?")
		args = append(args, q.Since)
	}
	if !q.Until.IsZero() {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, q.Until)
	}
	if q.Key != "" {
		whereClauses = append(whereClauses, "ProfileKey = ?")
		args = append(args, q.Key)
	}

	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	queryBuilder.WriteString(fmt.Sprintf(" ORDER BY Timestamp DESC LIMIT %d", limit))
	return queryBuilder.String(), args
}

// Anomalies executes q against the behavior_anomalies table.
func (c *clickhouseQuerier) Anomalies(ctx context.Context, q AnomalyQuery) ([]model.AnomalyRecord, error) {
	statement, args := buildAnomalyQuery(q)
	rows, err := c.conn.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var records []model.AnomalyRecord
	for rows.Next() {
		var (
			r       model.AnomalyRecord
			profile uint32
		)
		if err := rows.Scan(&r.Timestamp, &profile, &r.EventType, &r.Tid, &r.Key, &r.Estimate, &r.DurationNs); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		r.ProfileIndex = int(profile)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read anomalies: %w", err)
	}
	return records, nil
}
