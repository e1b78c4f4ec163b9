package can

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcc-gateway/internal/models"
)

var (
	reFlags      = regexp.MustCompile(`<([^>]+)>`)
	reMTU        = regexp.MustCompile(`mtu (\d+)`)
	reBitrate    = regexp.MustCompile(`bitrate (\d+)`)
	reCANState   = regexp.MustCompile(`can (?:<[^>]*> )?state ([A-Z-]+)`)
	reBerr       = regexp.MustCompile(`berr-counter tx (\d+) rx (\d+)`)
	reRestartMS  = regexp.MustCompile(`restart-ms (\d+)`)
	reCANCounter = regexp.MustCompile(`^re-started\s+bus-errors\s+arbit-lost\s+error-warn\s+error-pass\s+bus-off`)
)

// HealthCollector periodically samples SocketCAN interface statistics
type HealthCollector struct {
	ifname   string
	interval time.Duration
	logger   zerolog.Logger
	run      func(ctx context.Context, ifname string) (string, error)
	sink     func(models.BusStats)

	mu     sync.RWMutex
	latest models.BusStats
	valid  bool
}

// NewHealthCollector creates a collector for ifname sampling every interval
func NewHealthCollector(ifname string, interval time.Duration, logger zerolog.Logger) *HealthCollector {
	return &HealthCollector{
		ifname:   ifname,
		interval: interval,
		logger:   logger,
		run:      runIP,
	}
}

// Forward hands every collected snapshot to fn. Call before Start.
func (hc *HealthCollector) Forward(fn func(models.BusStats)) {
	hc.sink = fn
}

// Start collects until ctx is cancelled
func (hc *HealthCollector) Start(ctx context.Context) {
	go hc.collectLoop(ctx)
}

// Latest returns the most recent snapshot
func (hc *HealthCollector) Latest() (models.BusStats, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.latest, hc.valid
}

func (hc *HealthCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	// Collect immediately on start
	hc.collect(ctx)

	for {
		select {
		case <-ticker.C:
			hc.collect(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (hc *HealthCollector) collect(ctx context.Context) {
	output, err := hc.run(ctx, hc.ifname)
	if err != nil {
		hc.logger.Warn().Err(err).Str("interface", hc.ifname).Msg("failed to collect bus stats")
		return
	}

	stats := parseIPOutput(output)
	stats.Timestamp = time.Now()
	stats.Interface = hc.ifname

	hc.mu.Lock()
	hc.latest = stats
	hc.valid = true
	hc.mu.Unlock()

	hc.logger.Debug().
		Str("interface", hc.ifname).
		Str("bus_state", stats.BusState).
		Uint64("rx_packets", stats.RXPackets).
		Uint64("tx_packets", stats.TXPackets).
		Msg("collected bus stats")
	if hc.sink != nil {
		hc.sink(stats)
	}
}

func runIP(ctx context.Context, ifname string) (string, error) {
	cmd := exec.CommandContext(ctx, "ip", "-details", "-statistics", "link", "show", ifname)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to execute ip command: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// parseIPOutput parses the text output of 'ip -details -statistics link show'
func parseIPOutput(output string) models.BusStats {
	var stats models.BusStats
	lines := strings.Split(output, "\n")

	counters := func(i int) []uint64 {
		if i+1 >= len(lines) {
			return nil
		}
		fields := strings.Fields(lines[i+1])
		out := make([]uint64, len(fields))
		for j, f := range fields {
			out[j], _ = strconv.ParseUint(f, 10, 64)
		}
		return out
	}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)

		if i == 0 {
			// "3: can0: <NOARP,UP,LOWER_UP,ECHO> mtu 16 qdisc pfifo_fast state UP ..."
			stats.State = "DOWN"
			if m := reFlags.FindStringSubmatch(line); len(m) > 1 {
				for _, flag := range strings.Split(m[1], ",") {
					if flag == "UP" {
						stats.State = "UP"
					}
				}
			}
			if m := reMTU.FindStringSubmatch(line); len(m) > 1 {
				stats.MTU, _ = strconv.Atoi(m[1])
			}
			continue
		}

		if m := reCANState.FindStringSubmatch(line); len(m) > 1 {
			// "can state ERROR-ACTIVE (berr-counter tx 0 rx 0) restart-ms 0"
			stats.BusState = m[1]
			if m := reBerr.FindStringSubmatch(line); len(m) > 2 {
				stats.TXErrorCounter, _ = strconv.Atoi(m[1])
				stats.RXErrorCounter, _ = strconv.Atoi(m[2])
			}
			if m := reRestartMS.FindStringSubmatch(line); len(m) > 1 {
				stats.RestartMS, _ = strconv.Atoi(m[1])
			}
		}

		if m := reBitrate.FindStringSubmatch(line); len(m) > 1 && strings.HasPrefix(line, "bitrate") {
			stats.Bitrate, _ = strconv.Atoi(m[1])
		}

		switch {
		case reCANCounter.MatchString(line):
			if c := counters(i); len(c) >= 6 {
				stats.BusOffRestarts = c[0]
				stats.ArbitrationLost = c[2]
				stats.ErrorWarning = c[3]
				stats.ErrorPassive = c[4]
				stats.BusOff = c[5]
			}
		case strings.HasPrefix(line, "RX:"):
			// "RX: bytes  packets  errors  dropped overrun mcast"
			if c := counters(i); len(c) >= 4 {
				stats.RXBytes, stats.RXPackets, stats.RXErrors, stats.RXDropped = c[0], c[1], c[2], c[3]
			}
		case strings.HasPrefix(line, "TX:"):
			if c := counters(i); len(c) >= 4 {
				stats.TXBytes, stats.TXPackets, stats.TXErrors, stats.TXDropped = c[0], c[1], c[2], c[3]
			}
		}
	}

	return stats
}
