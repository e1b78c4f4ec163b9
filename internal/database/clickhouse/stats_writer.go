package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"

	"tcc-gateway/internal/database"
	"tcc-gateway/internal/models"
)

// StatsWriter records bus health snapshots in ClickHouse
type StatsWriter struct {
	conn    driver.Conn
	table   string
	batcher *database.Batcher[models.BusStats]
}

// NewStatsWriter creates the stats table if needed and returns a started writer
func NewStatsWriter(conn driver.Conn, table string, batchSize int, logger zerolog.Logger) (*StatsWriter, error) {
	if err := CreateStatsTable(conn, table); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	w := &StatsWriter{conn: conn, table: table}
	w.batcher = database.NewBatcher(batchSize, 5*time.Second, w.flush,
		logger.With().Str("recorder", "clickhouse-stats").Logger())
	w.batcher.Start()
	return w, nil
}

// CreateStatsTable creates the bus statistics table in ClickHouse
func CreateStatsTable(conn driver.Conn, tableName string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp DateTime64(6),
			interface String,
			state String,
			mtu UInt32,
			bitrate UInt32,
			bus_state String,
			rx_error_counter UInt32,
			tx_error_counter UInt32,
			restart_ms UInt32,
			rx_packets UInt64,
			rx_bytes UInt64,
			rx_errors UInt64,
			rx_dropped UInt64,
			tx_packets UInt64,
			tx_bytes UInt64,
			tx_errors UInt64,
			tx_dropped UInt64,
			bus_off_restarts UInt64,
			arbitration_lost UInt64,
			error_warning UInt64,
			error_passive UInt64,
			bus_off UInt64
		) ENGINE = MergeTree()
		ORDER BY (interface, timestamp)
		PARTITION BY toYYYYMMDD(timestamp)
		TTL toDateTime(timestamp) + INTERVAL 3 MONTH
	`, tableName)

	return conn.Exec(context.Background(), query)
}

func (w *StatsWriter) WriteStats(stats models.BusStats) { w.batcher.Add(stats) }

func (w *StatsWriter) flush(ctx context.Context, snapshots []models.BusStats) error {
	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", w.table))
	if err != nil {
		return fmt.Errorf("failed to prepare stats batch: %w", err)
	}

	for _, s := range snapshots {
		err := batch.Append(
			s.Timestamp, s.Interface, s.State,
			uint32(s.MTU), uint32(s.Bitrate), s.BusState,
			uint32(s.RXErrorCounter), uint32(s.TXErrorCounter), uint32(s.RestartMS),
			s.RXPackets, s.RXBytes, s.RXErrors, s.RXDropped,
			s.TXPackets, s.TXBytes, s.TXErrors, s.TXDropped,
			s.BusOffRestarts, s.ArbitrationLost, s.ErrorWarning, s.ErrorPassive, s.BusOff,
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append stats: %w", err)
		}
	}
	return batch.Send()
}

func (w *StatsWriter) Close() error {
	w.batcher.Close()
	return nil
}
