package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tcc-gateway/internal/can"
	"tcc-gateway/internal/config"
	"tcc-gateway/internal/database"
	"tcc-gateway/internal/database/clickhouse"
	"tcc-gateway/internal/database/influxdb"
	"tcc-gateway/internal/logging"
	"tcc-gateway/internal/manager"
	"tcc-gateway/internal/message"
	"tcc-gateway/internal/server"
	"tcc-gateway/internal/tcc"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the CAN bus and serve clients",
	Long: `Open the configured CAN transport, apply the startup timeouts and serve
clients until SIGINT or SIGTERM.

Runs:
  - the TCP client protocol server (TCP_ADDR)
  - the HTTP API and WebSocket endpoint (HTTP_ADDR)
  - parameter recorders for ClickHouse and InfluxDB when configured
  - the SocketCAN bus statistics collector (STATS_INTERVAL)

On shutdown the root timeouts are set to zero before the bus is closed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	logger.Info().
		Str("transport", cfg.CANTransport).
		Str("channel", cfg.Channel()).
		Str("tcp", cfg.TCPAddr).
		Str("http", cfg.HTTPAddr).
		Msg("starting TCC gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := openRecorders(cfg, logger)
	if err != nil {
		return err
	}
	defer rec.close(logger)
	rec.samples.Start()

	registry := tcc.Default()
	codec := message.NewCodec(registry)
	channel := cfg.Channel()

	// assigned before Open, the change listener only runs once the bus is up
	var hub *server.Hub
	m := manager.New(manager.Options{
		Registry:       registry,
		Opener:         openerFor(cfg, logger),
		Logger:         logger,
		JoinTimeout:    cfg.JoinTimeout(),
		ReceiveTimeout: cfg.ReceiveTimeout(),
		OnParameterChange: func(c manager.Change) {
			rec.samples.Write(c.Sample(channel))
			hub.PublishChange(c)
		},
	})

	dispatcher := server.NewDispatcher(m, codec, logger)
	hub = server.NewHub(dispatcher, codec, logger)

	if err := m.Open(channel); err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close CAN bus")
		}
	}()

	var health *can.HealthCollector
	if cfg.CANTransport == config.TransportSocketCAN && cfg.StatsInterval > 0 {
		health = can.NewHealthCollector(cfg.CANInterface, cfg.StatsPeriod(), logging.Component(logger, "health"))
		if rec.stats != nil {
			health.Forward(rec.stats.WriteStats)
		}
		health.Start(ctx)
	}

	tcpServer := server.NewTCPServer(cfg.TCPAddr, dispatcher, logger)
	httpOpts := server.HTTPOptions{
		Addr:    cfg.HTTPAddr,
		Manager: m,
		Hub:     hub,
		History: rec.samples.History(),
		Logger:  logger,
	}
	if health != nil {
		httpOpts.Health = health
	}
	httpServer := server.NewHTTPServer(httpOpts)

	errCh := make(chan error, 2)
	go func() { errCh <- tcpServer.Serve() }()
	go func() { errCh <- httpServer.ListenAndServe() }()

	logger.Info().Msg("gateway started, press Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tcpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("TCP shutdown")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown")
	}
	return runErr
}

func openerFor(cfg *config.Config, logger zerolog.Logger) can.Opener {
	if cfg.CANTransport == config.TransportSLCAN {
		return can.SLCANOpener(can.SLCANOptions{
			Baud:    cfg.SLCANBaud,
			Bitrate: cfg.SLCANBitrate,
			Logger:  logging.Component(logger, "slcan"),
		})
	}
	return can.SocketCANOpener(cfg.CANFilters)
}

type recorders struct {
	samples database.Fanout
	stats   *clickhouse.StatsWriter
	conn    driver.Conn
}

// openRecorders connects the configured databases. A database that is
// configured but unreachable is a startup error.
func openRecorders(cfg *config.Config, logger zerolog.Logger) (*recorders, error) {
	rec := &recorders{}

	if cfg.ClickHouseHost != "" {
		chConfig := clickhouse.Config{
			Host:       cfg.ClickHouseHost,
			Port:       cfg.ClickHousePort,
			Database:   cfg.ClickHouseDatabase,
			Username:   cfg.ClickHouseUsername,
			Password:   cfg.ClickHousePassword,
			Table:      cfg.ClickHouseTable,
			StatsTable: cfg.ClickHouseStatsTable,
		}
		conn, err := clickhouse.Open(chConfig)
		if err != nil {
			return nil, err
		}
		rec.conn = conn

		writer, err := clickhouse.New(conn, chConfig, cfg.BatchSize, logger)
		if err != nil {
			rec.close(logger)
			return nil, err
		}
		rec.samples = append(rec.samples, writer)

		if cfg.StatsInterval > 0 && cfg.CANTransport == config.TransportSocketCAN {
			stats, err := clickhouse.NewStatsWriter(conn, chConfig.StatsTable, max(cfg.BatchSize/10, 1), logger)
			if err != nil {
				rec.close(logger)
				return nil, err
			}
			rec.stats = stats
		}
		logger.Info().
			Str("addr", fmt.Sprintf("%s:%d", cfg.ClickHouseHost, cfg.ClickHousePort)).
			Str("table", cfg.ClickHouseTable).
			Msg("ClickHouse recorder enabled")
	}

	if cfg.InfluxDBURL != "" {
		writer, err := influxdb.New(influxdb.Config{
			URL:      cfg.InfluxDBURL,
			Token:    cfg.InfluxDBToken,
			Database: cfg.InfluxDBDatabase,
		}, cfg.BatchSize, logger)
		if err != nil {
			rec.close(logger)
			return nil, err
		}
		rec.samples = append(rec.samples, writer)
		logger.Info().Str("url", cfg.InfluxDBURL).Str("database", cfg.InfluxDBDatabase).Msg("InfluxDB recorder enabled")
	}

	return rec, nil
}

func (r *recorders) close(logger zerolog.Logger) {
	var errs []error
	if err := r.samples.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.stats != nil {
		if err := r.stats.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn().Err(err).Msg("failed to close recorders")
	}
}
