package tcc

import (
	"errors"

	"tcc-gateway/internal/codec"
)

// Error taxonomy shared by the CAN manager and the client codec.
var (
	ErrLength            = codec.ErrLength
	ErrRange             = codec.ErrRange
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrTransport         = errors.New("transport failure")
	ErrConfiguration     = errors.New("invalid configuration")
)
