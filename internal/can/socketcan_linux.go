//go:build linux

package can

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"tcc-gateway/internal/models"
)

// SocketCAN is a raw CAN socket bound to one interface
type SocketCAN struct {
	socket int
	ifname string
	closed atomic.Bool

	mu      sync.Mutex // guards timeout
	timeout time.Duration
}

// OpenSocketCAN creates a raw CAN socket bound to ifname. When filters are
// given only frames with those exact standard ids are delivered.
func OpenSocketCAN(ifname string, filters ...uint32) (*SocketCAN, error) {
	// Create a CAN socket
	socket, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("failed to create CAN socket: %w", err)
	}

	// Get interface index
	ifreq, err := unix.NewIfreq(ifname)
	if err != nil {
		unix.Close(socket)
		return nil, fmt.Errorf("failed to create ifreq for %s: %w", ifname, err)
	}

	if err := unix.IoctlIfreq(socket, unix.SIOCGIFINDEX, ifreq); err != nil {
		unix.Close(socket)
		return nil, fmt.Errorf("failed to get index of %s: %w", ifname, err)
	}

	addr := &unix.SockaddrCAN{Ifindex: int(ifreq.Uint32())}
	if err := unix.Bind(socket, addr); err != nil {
		unix.Close(socket)
		return nil, fmt.Errorf("failed to bind socket to %s: %w", ifname, err)
	}

	s := &SocketCAN{socket: socket, ifname: ifname, timeout: -1}
	if err := s.SetFilter(filters); err != nil {
		unix.Close(socket)
		return nil, err
	}
	return s, nil
}

// SocketCANOpener returns an Opener binding raw sockets with the given filters
func SocketCANOpener(filters []uint32) Opener {
	return func(channel string) (Bus, error) {
		s, err := OpenSocketCAN(channel, filters...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// SetFilter sets exact-match CAN id filters
func (s *SocketCAN) SetFilter(filters []uint32) error {
	if len(filters) == 0 {
		return nil
	}

	rules := make([]unix.CanFilter, len(filters))
	for i, id := range filters {
		rules[i] = unix.CanFilter{Id: id, Mask: unix.CAN_SFF_MASK}
	}
	if err := unix.SetsockoptCanRawFilter(s.socket, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, rules); err != nil {
		return fmt.Errorf("failed to set filter on %s: %w", s.ifname, err)
	}
	return nil
}

func (s *SocketCAN) Send(frame models.CANFrame) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := validateFrame(frame); err != nil {
		return err
	}

	buf := encodeRawFrame(frame)
	n, err := unix.Write(s.socket, buf)
	if err != nil {
		return fmt.Errorf("write to %s: %w", s.ifname, err)
	}
	if n != rawFrameSize {
		return fmt.Errorf("short write to %s: %d bytes", s.ifname, n)
	}
	return nil
}

func (s *SocketCAN) Receive(timeout time.Duration) (models.CANFrame, error) {
	if s.closed.Load() {
		return models.CANFrame{}, ErrClosed
	}
	if err := s.setReadTimeout(timeout); err != nil {
		return models.CANFrame{}, err
	}

	buf := make([]byte, rawFrameSize)
	for {
		n, err := unix.Read(s.socket, buf)
		if err != nil {
			switch {
			case s.closed.Load(), errors.Is(err, unix.EBADF):
				return models.CANFrame{}, ErrClosed
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
				return models.CANFrame{}, ErrTimeout
			}
			return models.CANFrame{}, fmt.Errorf("read from %s: %w", s.ifname, err)
		}
		frame, ok, err := decodeRawFrame(buf[:n])
		if err != nil {
			return models.CANFrame{}, err
		}
		if ok {
			return frame, nil
		}
	}
}

func (s *SocketCAN) setReadTimeout(timeout time.Duration) error {
	if timeout < 0 {
		timeout = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeout == timeout {
		return nil
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.socket, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("failed to set receive timeout on %s: %w", s.ifname, err)
	}
	s.timeout = timeout
	return nil
}

// Close closes the CAN socket. Closing twice is a no-op.
func (s *SocketCAN) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(s.socket)
}
