package can

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tcc-gateway/internal/models"
)

const sampleIPOutput = `3: can0: <NOARP,UP,LOWER_UP,ECHO> mtu 16 qdisc pfifo_fast state UP mode DEFAULT group default qlen 10
    link/can  promiscuity 0 minmtu 0 maxmtu 0
    can <BERR-REPORTING> state ERROR-PASSIVE (berr-counter tx 128 rx 3) restart-ms 100
	  bitrate 500000 sample-point 0.875
	  tq 125 prop-seg 6 phase-seg1 7 phase-seg2 2 sjw 1 brp 1
	  mcp251x: tseg1 3..16 tseg2 2..8 sjw 1..4 brp 1..64 brp-inc 1
	  clock 8000000
	  re-started bus-errors arbit-lost error-warn error-pass bus-off
	  2          17         4          5          6          1
    RX: bytes  packets  errors  dropped overrun mcast
    8000       1000     3       2       0       0
    TX: bytes  packets  errors  dropped carrier collsns
    4000       500      1       0       0       0
`

func TestParseIPOutput(t *testing.T) {
	stats := parseIPOutput(sampleIPOutput)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"state", stats.State, "UP"},
		{"mtu", stats.MTU, 16},
		{"bitrate", stats.Bitrate, 500000},
		{"bus state", stats.BusState, "ERROR-PASSIVE"},
		{"tx errors", stats.TXErrorCounter, 128},
		{"rx errors", stats.RXErrorCounter, 3},
		{"restart ms", stats.RestartMS, 100},
		{"restarts", stats.BusOffRestarts, uint64(2)},
		{"arbitration lost", stats.ArbitrationLost, uint64(4)},
		{"bus off", stats.BusOff, uint64(1)},
		{"rx bytes", stats.RXBytes, uint64(8000)},
		{"rx packets", stats.RXPackets, uint64(1000)},
		{"rx dropped", stats.RXDropped, uint64(2)},
		{"tx packets", stats.TXPackets, uint64(500)},
		{"tx errors total", stats.TXErrors, uint64(1)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestParseIPOutputDown(t *testing.T) {
	stats := parseIPOutput("4: can1: <NOARP,ECHO> mtu 16 qdisc noop state DOWN mode DEFAULT group default qlen 10\n")
	if stats.State != "DOWN" {
		t.Errorf("state = %q, want DOWN", stats.State)
	}
}

func TestHealthCollectorLatest(t *testing.T) {
	hc := NewHealthCollector("can0", time.Hour, zerolog.Nop())
	if _, ok := hc.Latest(); ok {
		t.Fatal("Latest reported a snapshot before any collection")
	}

	hc.run = func(ctx context.Context, ifname string) (string, error) {
		return "", errors.New("ip: not found")
	}
	hc.collect(context.Background())
	if _, ok := hc.Latest(); ok {
		t.Fatal("failed collection produced a snapshot")
	}

	var forwarded []models.BusStats
	hc.Forward(func(s models.BusStats) { forwarded = append(forwarded, s) })
	hc.run = func(ctx context.Context, ifname string) (string, error) {
		return sampleIPOutput, nil
	}
	hc.collect(context.Background())
	stats, ok := hc.Latest()
	if !ok || stats.Interface != "can0" || stats.Bitrate != 500000 {
		t.Errorf("Latest = %+v, %v", stats, ok)
	}
	if len(forwarded) != 1 || !forwarded[0].Timestamp.Equal(stats.Timestamp) {
		t.Errorf("forwarded = %d snapshots, want 1", len(forwarded))
	}
}
