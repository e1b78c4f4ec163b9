package can

import (
	"encoding/binary"
	"fmt"

	"tcc-gateway/internal/models"
)

// struct can_frame layout and can_id flag bits from linux/can.h
const (
	rawFrameSize = 16

	rawEFFFlag = 0x80000000
	rawRTRFlag = 0x40000000
	rawERRFlag = 0x20000000
	rawSFFMask = 0x000007FF
)

// decodeRawFrame parses a struct can_frame. Extended, remote and error frames
// are reported as not ok: the TCC bus only carries standard data frames.
func decodeRawFrame(buf []byte) (models.CANFrame, bool, error) {
	if len(buf) < rawFrameSize {
		return models.CANFrame{}, false, fmt.Errorf("incomplete CAN frame received: %d bytes", len(buf))
	}
	id := binary.LittleEndian.Uint32(buf[0:4])
	if id&(rawEFFFlag|rawRTRFlag|rawERRFlag) != 0 {
		return models.CANFrame{}, false, nil
	}
	frame := models.CANFrame{ID: id & rawSFFMask, DLC: buf[4]}
	copy(frame.Data[:], buf[8:16])
	return frame, true, nil
}

func encodeRawFrame(frame models.CANFrame) []byte {
	buf := make([]byte, rawFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], frame.ID)
	buf[4] = frame.DLC
	copy(buf[8:16], frame.Data[:])
	return buf
}
