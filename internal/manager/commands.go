package manager

import (
	"fmt"
	"math"

	"tcc-gateway/internal/can"
	"tcc-gateway/internal/codec"
	"tcc-gateway/internal/models"
	"tcc-gateway/internal/tcc"
)

// ExecuteCommand sends cmd with the optional argument. A nil argument
// encodes 0 and skips the range check.
func (m *Manager) ExecuteCommand(cmd tcc.Command, arg *float64) error {
	spec, ok := m.registry.Command(cmd)
	if !ok {
		return fmt.Errorf("%w: command %d", tcc.ErrUnknownIdentifier, cmd.ID())
	}

	payload, err := commandPayload(cmd, spec, arg)
	if err != nil {
		m.logger.Warn().Err(err).Str("command", cmd.String()).Msg("rejected command")
		return err
	}

	if err := m.sendFrame(models.NewFrame(spec.CANID, payload)); err != nil {
		m.logger.Error().Err(err).Str("command", cmd.String()).Msg("failed to send command")
		return err
	}
	m.logger.Debug().Str("command", cmd.String()).Uint32("can_id", spec.CANID).Msg("command sent")
	return nil
}

func commandPayload(cmd tcc.Command, spec tcc.CommandSpec, arg *float64) ([8]byte, error) {
	var payload [8]byte
	payload[1] = byte(spec.Kind)

	var value float64
	if arg != nil {
		value = *arg
		if math.IsNaN(value) || !spec.InRange(value) {
			return payload, fmt.Errorf("%w: %s argument %g outside [%g, %g]", tcc.ErrRange, cmd, value, spec.Min, spec.Max)
		}
	}

	switch spec.Kind {
	case tcc.CommandSimple:
		if value != math.Trunc(value) {
			return payload, fmt.Errorf("%w: %s argument %g is not an integer", tcc.ErrRange, cmd, value)
		}
		b, err := codec.EncodeInt(int64(value), 1)
		if err != nil {
			return payload, fmt.Errorf("%s argument: %w", cmd, err)
		}
		payload[4] = b[0]
	default:
		copy(payload[4:8], codec.EncodeFloat(float32(value)))
	}
	return payload, nil
}

// SendData sends one raw 8-byte frame on the open bus
func (m *Manager) SendData(id uint32, payload [8]byte) error {
	return m.sendFrame(models.NewFrame(id, payload))
}

func (m *Manager) sendFrame(frame models.CANFrame) error {
	bus, err := m.currentBus()
	if err != nil {
		return err
	}
	return send(bus, frame)
}

func send(bus can.Bus, frame models.CANFrame) error {
	if err := bus.Send(frame); err != nil {
		return transportError(fmt.Errorf("send %s: %w", frame, err))
	}
	return nil
}
