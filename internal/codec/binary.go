// Package codec implements the big-endian fixed-width encodings shared by the
// CAN frames and the client wire messages.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrLength is returned when a fixed-size decode receives the wrong number of bytes.
	ErrLength = errors.New("invalid length")
	// ErrRange is returned when a value does not fit the requested encoding.
	ErrRange = errors.New("value out of range")
)

// DecodeFloat decodes a big-endian IEEE-754 single precision float
func DecodeFloat(data []byte) (float32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d: %w", len(data), ErrLength)
	}
	return math.Float32frombits(binary.BigEndian.Uint32(data)), nil
}

// DecodeInt32 decodes a big-endian signed 32-bit integer
func DecodeInt32(data []byte) (int32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d: %w", len(data), ErrLength)
	}
	return int32(binary.BigEndian.Uint32(data)), nil
}

// DecodeUint16 decodes a big-endian unsigned 16-bit integer
func DecodeUint16(data []byte) (uint16, error) {
	if len(data) != 2 {
		return 0, fmt.Errorf("expected 2 bytes, got %d: %w", len(data), ErrLength)
	}
	return binary.BigEndian.Uint16(data), nil
}

// EncodeFloat encodes a float as 4 big-endian bytes
func EncodeFloat(value float32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(value))
	return buf
}

// EncodeUint16 encodes an unsigned 16-bit integer as 2 big-endian bytes
func EncodeUint16(value uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, value)
	return buf
}

// EncodeInt encodes value as a signed big-endian integer of width bytes.
// It fails with ErrRange when value does not fit in width bytes.
func EncodeInt(value int64, width int) ([]byte, error) {
	if width < 1 || width > 8 {
		return nil, fmt.Errorf("unsupported width %d: %w", width, ErrLength)
	}
	if width < 8 {
		limit := int64(1) << (uint(width)*8 - 1)
		if value < -limit || value >= limit {
			return nil, fmt.Errorf("%d does not fit in %d bytes: %w", value, width, ErrRange)
		}
	}

	var full [8]byte
	binary.BigEndian.PutUint64(full[:], uint64(value))

	buf := make([]byte, width)
	copy(buf, full[8-width:])
	return buf, nil
}
