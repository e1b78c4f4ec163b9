package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	path := writeFile(t, ".env", `
# bus
CAN_INTERFACE=can1
CAN_TRANSPORT=SLCAN
SLCAN_PORT="/dev/ttyACM0"
CAN_FILTERS=0x514, 57C,zz,
JOIN_TIMEOUT_MS=250
TCP_ADDR=127.0.0.1:6000
CLICKHOUSE_HOST=db
not a pair
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CANInterface != "can1" || cfg.CANTransport != TransportSLCAN || cfg.SLCANPort != "/dev/ttyACM0" {
		t.Errorf("bus config = %+v", cfg)
	}
	if want := []uint32{0x514, 0x57C}; !reflect.DeepEqual(cfg.CANFilters, want) {
		t.Errorf("filters = %v, want %v", cfg.CANFilters, want)
	}
	if cfg.JoinTimeout() != 250*time.Millisecond {
		t.Errorf("join timeout = %v", cfg.JoinTimeout())
	}
	if cfg.TCPAddr != "127.0.0.1:6000" || cfg.ClickHouseHost != "db" {
		t.Errorf("addresses = %q %q", cfg.TCPAddr, cfg.ClickHouseHost)
	}
	if cfg.HTTPAddr != ":8080" || cfg.ClickHousePort != 9000 {
		t.Errorf("defaults lost: %q %d", cfg.HTTPAddr, cfg.ClickHousePort)
	}
	if cfg.Channel() != "/dev/ttyACM0" {
		t.Errorf("channel = %q", cfg.Channel())
	}
}

func TestLoadConfigEnvBadNumber(t *testing.T) {
	path := writeFile(t, "gateway.env", "BATCH_SIZE=many\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for non-numeric BATCH_SIZE")
	}
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeFile(t, "gateway.toml", `
can_interface = "can0"
can_filters = [1303, 1404]
receive_timeout_ms = 200
log_level = "debug"
influxdb_url = "http://influx:8181"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CANInterface != "can0" || cfg.ReceiveTimeout() != 200*time.Millisecond || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CANFilters, []uint32{1303, 1404}) {
		t.Errorf("filters = %v", cfg.CANFilters)
	}
	if cfg.InfluxDBURL != "http://influx:8181" || cfg.InfluxDBDatabase != "tcc" {
		t.Errorf("influx = %q %q", cfg.InfluxDBURL, cfg.InfluxDBDatabase)
	}
	if cfg.CANTransport != TransportSocketCAN {
		t.Errorf("transport default lost: %q", cfg.CANTransport)
	}
}

func TestLoadConfigTOMLSyntaxError(t *testing.T) {
	path := writeFile(t, "gateway.toml", "can_interface = \n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown transport", func(c *Config) { c.CANTransport = "usb" }, true},
		{"empty interface", func(c *Config) { c.CANInterface = "" }, true},
		{"slcan without port", func(c *Config) { c.CANTransport = TransportSLCAN }, true},
		{"slcan", func(c *Config) { c.CANTransport = TransportSLCAN; c.SLCANPort = "/dev/ttyUSB0" }, false},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
