package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
	"github.com/rs/zerolog"

	"tcc-gateway/internal/database"
	"tcc-gateway/internal/models"
)

// Measurement is the InfluxDB measurement samples are written to
const Measurement = "tcc_parameters"

// Writer records parameter samples in InfluxDB 3
type Writer struct {
	client  *influxdb3.Client
	batcher *database.Batcher[models.ParameterSample]
}

// New creates a new InfluxDB writer
func New(config Config, batchSize int, logger zerolog.Logger) (*Writer, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     config.URL,
		Token:    config.Token,
		Database: config.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client: %w", err)
	}

	w := &Writer{client: client}
	w.batcher = database.NewBatcher(batchSize, time.Second, w.flush,
		logger.With().Str("recorder", "influxdb").Logger())
	return w, nil
}

func (w *Writer) Start() { w.batcher.Start() }

func (w *Writer) Write(sample models.ParameterSample) { w.batcher.Add(sample) }

func samplePoint(s models.ParameterSample) *influxdb3.Point {
	return influxdb3.NewPoint(
		Measurement,
		map[string]string{
			"interface": s.Interface,
			"parameter": s.Parameter,
		},
		map[string]any{
			"value":  s.Value,
			"id":     int64(s.ID),
			"can_id": "0x" + strconv.FormatUint(uint64(s.CANID), 16),
		},
		s.Timestamp,
	)
}

func (w *Writer) flush(ctx context.Context, samples []models.ParameterSample) error {
	points := make([]*influxdb3.Point, 0, len(samples))
	for _, s := range samples {
		points = append(points, samplePoint(s))
	}

	if err := w.client.WritePoints(ctx, points); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}
	return nil
}

// Close flushes pending samples and closes the client
func (w *Writer) Close() error {
	w.batcher.Close()
	if err := w.client.Close(); err != nil {
		return fmt.Errorf("failed to close InfluxDB client: %w", err)
	}
	return nil
}
