package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"

	"tcc-gateway/internal/database"
	"tcc-gateway/internal/models"
)

// Writer records parameter samples in ClickHouse
type Writer struct {
	conn    driver.Conn
	config  Config
	batcher *database.Batcher[models.ParameterSample]
}

// Open connects to ClickHouse with the settings in config
func Open(config Config) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", config.Host, config.Port)},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return conn, nil
}

// New creates the samples table if needed and returns a writer on conn
func New(conn driver.Conn, config Config, batchSize int, logger zerolog.Logger) (*Writer, error) {
	if err := createTable(conn, config.Table); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", config.Table, err)
	}

	w := &Writer{conn: conn, config: config}
	w.batcher = database.NewBatcher(batchSize, time.Second, w.flush,
		logger.With().Str("recorder", "clickhouse").Logger())
	return w, nil
}

func createTable(conn driver.Conn, tableName string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp DateTime64(6),
			interface LowCardinality(String),
			parameter LowCardinality(String),
			id UInt16,
			can_id UInt32,
			value Float64
		) ENGINE = MergeTree()
		ORDER BY (parameter, timestamp)
		PARTITION BY toYYYYMMDD(timestamp)
		TTL toDateTime(timestamp) + INTERVAL 1 MONTH
		SETTINGS index_granularity = 8192
	`, tableName)

	return conn.Exec(context.Background(), query)
}

func (w *Writer) Start() { w.batcher.Start() }

func (w *Writer) Write(sample models.ParameterSample) { w.batcher.Add(sample) }

func (w *Writer) flush(ctx context.Context, samples []models.ParameterSample) error {
	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", w.config.Table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, s := range samples {
		if err := batch.Append(s.Timestamp, s.Interface, s.Parameter, s.ID, s.CANID, s.Value); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// QuerySamples returns recorded samples, newest first
func (w *Writer) QuerySamples(ctx context.Context, q models.SampleQuery) ([]models.ParameterSample, error) {
	query, args := buildSampleQuery(w.config.Table, q)

	rows, err := w.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	samples := []models.ParameterSample{}
	for rows.Next() {
		var s models.ParameterSample
		if err := rows.Scan(&s.Timestamp, &s.Interface, &s.Parameter, &s.ID, &s.CANID, &s.Value); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return samples, nil
}

func buildSampleQuery(table string, q models.SampleQuery) (string, []any) {
	query := fmt.Sprintf("SELECT timestamp, interface, parameter, id, can_id, value FROM %s WHERE 1=1", table)
	args := []any{}

	if q.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, *q.StartTime)
	}
	if q.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, *q.EndTime)
	}
	if q.Parameter != "" {
		query += " AND parameter = ?"
		args = append(args, q.Parameter)
	}

	query += " ORDER BY timestamp DESC"

	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return query, args
}

// Close flushes pending samples. The connection is owned by the caller.
func (w *Writer) Close() error {
	w.batcher.Close()
	return nil
}
