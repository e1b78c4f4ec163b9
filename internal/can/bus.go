// Package can provides the CAN transports the TCC manager talks through.
package can

import (
	"errors"
	"fmt"
	"time"

	"tcc-gateway/internal/models"
)

var (
	// ErrTimeout is returned by Receive when no frame arrived in time
	ErrTimeout = errors.New("can: receive timeout")
	// ErrClosed is returned once the bus has been closed
	ErrClosed = errors.New("can: bus closed")
	// ErrFrame reports a frame the transport cannot carry
	ErrFrame = errors.New("can: invalid frame")
)

// MaxStandardID is the largest 11-bit arbitration id
const MaxStandardID = 0x7FF

// Bus is a CAN channel able to send and receive standard frames.
// Send and Receive may be called from different goroutines.
type Bus interface {
	Send(frame models.CANFrame) error
	// Receive blocks for at most timeout. A non-positive timeout blocks
	// until a frame arrives or the bus is closed.
	Receive(timeout time.Duration) (models.CANFrame, error)
	Close() error
}

// Opener opens a bus on the named channel (interface or serial port)
type Opener func(channel string) (Bus, error)

func validateFrame(frame models.CANFrame) error {
	if frame.ID > MaxStandardID {
		return fmt.Errorf("%w: id 0x%X is not a standard identifier", ErrFrame, frame.ID)
	}
	if frame.DLC > 8 {
		return fmt.Errorf("%w: dlc %d", ErrFrame, frame.DLC)
	}
	return nil
}
