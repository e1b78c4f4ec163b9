package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	TransportSocketCAN = "socketcan"
	TransportSLCAN     = "slcan"
)

// Config holds all application configuration
type Config struct {
	// CAN bus
	CANInterface string   `toml:"can_interface"`
	CANTransport string   `toml:"can_transport"`
	CANFilters   []uint32 `toml:"can_filters"`
	SLCANPort    string   `toml:"slcan_port"`
	SLCANBaud    int      `toml:"slcan_baud"`
	SLCANBitrate int      `toml:"slcan_bitrate"`

	ReceiveTimeoutMS int `toml:"receive_timeout_ms"`
	JoinTimeoutMS    int `toml:"join_timeout_ms"`
	StatsInterval    int `toml:"stats_interval"` // seconds, 0 disables bus stats

	// Client servers
	TCPAddr  string `toml:"tcp_addr"`
	HTTPAddr string `toml:"http_addr"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// ClickHouse recorder, disabled when host is empty
	ClickHouseHost       string `toml:"clickhouse_host"`
	ClickHousePort       int    `toml:"clickhouse_port"`
	ClickHouseDatabase   string `toml:"clickhouse_database"`
	ClickHouseUsername   string `toml:"clickhouse_username"`
	ClickHousePassword   string `toml:"clickhouse_password"`
	ClickHouseTable      string `toml:"clickhouse_table"`
	ClickHouseStatsTable string `toml:"clickhouse_stats_table"`

	// InfluxDB recorder, disabled when URL is empty
	InfluxDBURL      string `toml:"influxdb_url"`
	InfluxDBToken    string `toml:"influxdb_token"`
	InfluxDBDatabase string `toml:"influxdb_database"`

	BatchSize int `toml:"batch_size"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		CANInterface:         "vcan0",
		CANTransport:         TransportSocketCAN,
		SLCANBaud:            115200,
		SLCANBitrate:         500000,
		ReceiveTimeoutMS:     1000,
		JoinTimeoutMS:        1000,
		StatsInterval:        10,
		TCPAddr:              ":5050",
		HTTPAddr:             ":8080",
		LogLevel:             "info",
		LogFormat:            "console",
		ClickHousePort:       9000,
		ClickHouseDatabase:   "default",
		ClickHouseUsername:   "default",
		ClickHouseTable:      "tcc_parameters",
		ClickHouseStatsTable: "tcc_bus_stats",
		InfluxDBDatabase:     "tcc",
		BatchSize:            1000,
	}
}

// LoadConfig loads configuration from path. A missing file yields the
// defaults; .toml files are decoded as TOML, anything else as KEY=VALUE lines.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("error opening config file: %w", err)
	}

	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = loadTOML(path, config)
	} else {
		err = loadEnv(path, config)
	}
	if err != nil {
		return nil, err
	}
	return config, nil
}

func loadTOML(path string, config *Config) error {
	if _, err := toml.DecodeFile(path, config); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func loadEnv(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if err := config.set(key, value); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}
	return nil
}

func (c *Config) set(key, value string) error {
	atoi := func(dst *int) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		*dst = n
		return nil
	}

	switch key {
	case "CAN_INTERFACE":
		c.CANInterface = value
	case "CAN_TRANSPORT":
		c.CANTransport = strings.ToLower(value)
	case "CAN_FILTERS":
		c.CANFilters = parseFilters(value)
	case "SLCAN_PORT":
		c.SLCANPort = value
	case "SLCAN_BAUD":
		return atoi(&c.SLCANBaud)
	case "SLCAN_BITRATE":
		return atoi(&c.SLCANBitrate)
	case "RECEIVE_TIMEOUT_MS":
		return atoi(&c.ReceiveTimeoutMS)
	case "JOIN_TIMEOUT_MS":
		return atoi(&c.JoinTimeoutMS)
	case "STATS_INTERVAL":
		return atoi(&c.StatsInterval)
	case "TCP_ADDR":
		c.TCPAddr = value
	case "HTTP_ADDR":
		c.HTTPAddr = value
	case "LOG_LEVEL":
		c.LogLevel = value
	case "LOG_FORMAT":
		c.LogFormat = value
	case "CLICKHOUSE_HOST":
		c.ClickHouseHost = value
	case "CLICKHOUSE_PORT":
		return atoi(&c.ClickHousePort)
	case "CLICKHOUSE_DATABASE":
		c.ClickHouseDatabase = value
	case "CLICKHOUSE_USERNAME":
		c.ClickHouseUsername = value
	case "CLICKHOUSE_PASSWORD":
		c.ClickHousePassword = value
	case "CLICKHOUSE_TABLE":
		c.ClickHouseTable = value
	case "CLICKHOUSE_STATS_TABLE":
		c.ClickHouseStatsTable = value
	case "INFLUXDB_URL":
		c.InfluxDBURL = value
	case "INFLUXDB_TOKEN":
		c.InfluxDBToken = value
	case "INFLUXDB_DATABASE":
		c.InfluxDBDatabase = value
	case "BATCH_SIZE":
		return atoi(&c.BatchSize)
	}
	return nil
}

// parseFilters parses comma-separated hexadecimal CAN IDs
func parseFilters(filterStr string) []uint32 {
	if filterStr == "" {
		return nil
	}

	parts := strings.Split(filterStr, ",")
	filters := make([]uint32, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(part)), "0x")
		if part == "" {
			continue
		}

		id, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			continue
		}
		filters = append(filters, uint32(id))
	}

	return filters
}

// Validate rejects configurations the gateway cannot start with
func (c *Config) Validate() error {
	switch c.CANTransport {
	case TransportSocketCAN:
		if c.CANInterface == "" {
			return fmt.Errorf("CAN_INTERFACE is required for socketcan")
		}
	case TransportSLCAN:
		if c.SLCANPort == "" {
			return fmt.Errorf("SLCAN_PORT is required for slcan")
		}
	default:
		return fmt.Errorf("unknown CAN transport %q", c.CANTransport)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	return nil
}

// Channel is the name handed to the CAN opener for the configured transport
func (c *Config) Channel() string {
	if c.CANTransport == TransportSLCAN {
		return c.SLCANPort
	}
	return c.CANInterface
}

func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.ReceiveTimeoutMS) * time.Millisecond
}

func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.JoinTimeoutMS) * time.Millisecond
}

func (c *Config) StatsPeriod() time.Duration {
	return time.Duration(c.StatsInterval) * time.Second
}
