package models

import (
	"encoding/hex"
	"fmt"
)

// CANFrame represents a CAN 2.0 frame with a standard 11-bit identifier
type CANFrame struct {
	ID   uint32
	DLC  uint8
	Data [8]byte
}

// NewFrame builds a full 8-byte frame
func NewFrame(id uint32, data [8]byte) CANFrame {
	return CANFrame{ID: id, DLC: 8, Data: data}
}

// Payload returns the first DLC bytes of the frame
func (f CANFrame) Payload() []byte {
	n := int(f.DLC)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	return f.Data[:n]
}

func (f CANFrame) String() string {
	return fmt.Sprintf("%03X#%s", f.ID, hex.EncodeToString(f.Payload()))
}
