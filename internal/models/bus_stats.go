package models

import "time"

// BusStats is a snapshot of CAN interface health as reported by iproute2
type BusStats struct {
	Interface string    `json:"interface"`
	Timestamp time.Time `json:"timestamp"`

	State   string `json:"state"` // UP, DOWN
	MTU     int    `json:"mtu"`
	Bitrate int    `json:"bitrate"`

	BusState       string `json:"bus_state"` // ERROR-ACTIVE, ERROR-PASSIVE, BUS-OFF
	RXErrorCounter int    `json:"rx_error_counter"`
	TXErrorCounter int    `json:"tx_error_counter"`
	RestartMS      int    `json:"restart_ms"`

	RXPackets uint64 `json:"rx_packets"`
	RXBytes   uint64 `json:"rx_bytes"`
	RXErrors  uint64 `json:"rx_errors"`
	RXDropped uint64 `json:"rx_dropped"`
	TXPackets uint64 `json:"tx_packets"`
	TXBytes   uint64 `json:"tx_bytes"`
	TXErrors  uint64 `json:"tx_errors"`
	TXDropped uint64 `json:"tx_dropped"`

	BusOffRestarts  uint64 `json:"bus_off_restarts"`
	ArbitrationLost uint64 `json:"arbitration_lost"`
	ErrorWarning    uint64 `json:"error_warning"`
	ErrorPassive    uint64 `json:"error_passive"`
	BusOff          uint64 `json:"bus_off"`
}
