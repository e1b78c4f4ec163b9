// Package server exposes the CAN manager to clients over TCP, HTTP and
// WebSocket using the 8-byte client protocol.
package server

import (
	"math"

	"github.com/rs/zerolog"

	"tcc-gateway/internal/message"
	"tcc-gateway/internal/tcc"
)

// Gateway is the part of the CAN manager the dispatcher drives
type Gateway interface {
	IsOpen() bool
	ExecuteCommand(cmd tcc.Command, arg *float64) error
	Parameter(p tcc.Parameter) (tcc.Value, bool)
	Timeout(t tcc.Timeout) (int, bool)
	SetTimeout(t tcc.Timeout, value int) error
}

// Dispatcher answers decoded client messages against a Gateway
type Dispatcher struct {
	gateway Gateway
	codec   *message.Codec
	logger  zerolog.Logger
}

func NewDispatcher(gateway Gateway, codec *message.Codec, logger zerolog.Logger) *Dispatcher {
	if codec == nil {
		codec = message.NewCodec(tcc.Default())
	}
	return &Dispatcher{
		gateway: gateway,
		codec:   codec,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Handle executes req and returns the response. The response echoes the
// request type and argument; Status reports success.
func (d *Dispatcher) Handle(req message.Message) message.Message {
	resp := message.Message{Type: req.Type, Argument: req.Argument}

	switch req.Type {
	case message.TypeCheck:
		resp.Status = d.gateway.IsOpen()

	case message.TypeCommand:
		cmd, ok := req.Argument.(tcc.Command)
		if !ok {
			return resp
		}
		var arg *float64
		if req.Value.Valid {
			arg = &req.Value.Number
		}
		if err := d.gateway.ExecuteCommand(cmd, arg); err != nil {
			d.logger.Debug().Err(err).Stringer("command", cmd).Msg("command rejected")
			return resp
		}
		resp.Value = req.Value
		resp.Status = true

	case message.TypeGetParameter:
		p, ok := req.Argument.(tcc.Parameter)
		if !ok {
			return resp
		}
		v, ok := d.gateway.Parameter(p)
		if !ok {
			return resp
		}
		resp.Value = message.Some(v.Float())
		resp.Status = true

	case message.TypeSetParameter:
		// telemetry parameters are read-only
		resp.Value = req.Value

	case message.TypeGetTimeout:
		t, ok := req.Argument.(tcc.Timeout)
		if !ok {
			return resp
		}
		v, ok := d.gateway.Timeout(t)
		if !ok {
			return resp
		}
		resp.Value = message.Some(float64(v))
		resp.Status = true

	case message.TypeSetTimeout:
		t, ok := req.Argument.(tcc.Timeout)
		if !ok || !req.Value.Valid || math.IsNaN(req.Value.Number) {
			return resp
		}
		ms := int(math.Round(req.Value.Number))
		if err := d.gateway.SetTimeout(t, ms); err != nil {
			d.logger.Debug().Err(err).Stringer("timeout", t).Int("value", ms).Msg("set timeout rejected")
			return resp
		}
		resp.Value = message.Some(float64(ms))
		resp.Status = true

	default:
		return message.Undefined
	}
	return resp
}

// HandleBytes decodes a request, handles it and encodes the response.
// Undecodable input yields an encoded UNDEFINED message.
func (d *Dispatcher) HandleBytes(b []byte) []byte {
	req, err := d.codec.Decode(b)
	if err != nil {
		d.logger.Debug().Err(err).Hex("request", b).Msg("malformed request")
	}
	return d.codec.Encode(d.Handle(req))
}
