//go:build !linux

package can

import (
	"errors"
	"time"

	"tcc-gateway/internal/models"
)

var errNoSocketCAN = errors.New("can: SocketCAN is only available on linux")

// SocketCAN is unavailable on this platform
type SocketCAN struct{}

func OpenSocketCAN(ifname string, filters ...uint32) (*SocketCAN, error) {
	return nil, errNoSocketCAN
}

func SocketCANOpener(filters []uint32) Opener {
	return func(channel string) (Bus, error) {
		return nil, errNoSocketCAN
	}
}

func (*SocketCAN) Send(models.CANFrame) error { return errNoSocketCAN }

func (*SocketCAN) Receive(time.Duration) (models.CANFrame, error) {
	return models.CANFrame{}, errNoSocketCAN
}

func (*SocketCAN) Close() error { return nil }
