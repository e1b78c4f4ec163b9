package manager

import (
	"errors"
	"time"

	"tcc-gateway/internal/can"
	"tcc-gateway/internal/codec"
	"tcc-gateway/internal/models"
	"tcc-gateway/internal/tcc"
)

const receiveErrorBackoff = 100 * time.Millisecond

func (m *Manager) receiveLoop(bus can.Bus, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	m.logger.Debug().Msg("receive loop started")

	for {
		select {
		case <-stop:
			m.logger.Debug().Msg("receive loop stopped")
			return
		default:
		}

		frame, err := bus.Receive(m.receiveTimeout)
		switch {
		case err == nil:
			m.HandleFrame(frame)
		case errors.Is(err, can.ErrTimeout):
		case errors.Is(err, can.ErrClosed):
			m.logger.Debug().Msg("bus closed, receive loop exiting")
			return
		default:
			m.logger.Warn().Err(err).Msg("receive failed")
			select {
			case <-stop:
				return
			case <-time.After(receiveErrorBackoff):
			}
		}
	}
}

// HandleFrame decodes an inbound frame into the live parameter table. It
// reports whether a live value changed; unknown and unassigned ids are ignored.
func (m *Manager) HandleFrame(frame models.CANFrame) bool {
	param, spec, ok := m.registry.ParameterByCANID(frame.ID)
	if !ok || spec.Kind == tcc.DecodeUnassigned {
		return false
	}

	value, err := decodeValue(spec, frame)
	if err != nil {
		m.logger.Debug().Err(err).Str("parameter", param.String()).Stringer("frame", frame).Msg("dropping frame")
		return false
	}

	m.mu.Lock()
	previous := m.parameters[param]
	changed := !previous.Equal(value)
	if changed {
		m.parameters[param] = value
	}
	m.mu.Unlock()

	if changed && m.onChange != nil {
		m.onChange(Change{
			Parameter: param,
			Previous:  previous,
			Value:     value,
			CANID:     frame.ID,
			Time:      time.Now(),
		})
	}
	return changed
}

func decodeValue(spec tcc.ParameterSpec, frame models.CANFrame) (tcc.Value, error) {
	data := frame.Payload()
	switch spec.Kind {
	case tcc.DecodeInt, tcc.DecodeBool:
		if len(data) < 5 {
			return tcc.Value{}, codec.ErrLength
		}
		if spec.Kind == tcc.DecodeBool {
			return tcc.BoolValue(data[4] != 0), nil
		}
		return tcc.IntValue(int64(data[4])), nil
	case tcc.DecodeFloat:
		if len(data) < 8 {
			return tcc.Value{}, codec.ErrLength
		}
		f, err := codec.DecodeFloat(data[4:8])
		if err != nil {
			return tcc.Value{}, err
		}
		return tcc.FloatValue(float64(f)), nil
	case tcc.DecodeBigInt, tcc.DecodeBigIntDiv:
		if len(data) < 8 {
			return tcc.Value{}, codec.ErrLength
		}
		i, err := codec.DecodeInt32(data[4:8])
		if err != nil {
			return tcc.Value{}, err
		}
		if spec.Kind == tcc.DecodeBigInt {
			return tcc.IntValue(int64(i)), nil
		}
		return tcc.FloatValue(float64(i) / spec.Divider), nil
	}
	return tcc.Value{}, tcc.ErrUnknownIdentifier
}
