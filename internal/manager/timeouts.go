package manager

import (
	"errors"
	"fmt"

	"tcc-gateway/internal/can"
	"tcc-gateway/internal/codec"
	"tcc-gateway/internal/models"
	"tcc-gateway/internal/tcc"
)

// TimeoutCANID is the arbitration id of the timeout configuration frame
const TimeoutCANID = 2000

const (
	timeoutOpcode = 0x0C
	timeoutSubOp  = 0x05
)

// SetTimeout sets t to value milliseconds. Groups propagate the value to all
// of their children; every child is attempted and the failures are joined.
func (m *Manager) SetTimeout(t tcc.Timeout, value int) error {
	if _, ok := m.registry.Timeout(t); !ok {
		return fmt.Errorf("%w: timeout %d", tcc.ErrUnknownIdentifier, t.ID())
	}
	bus, err := m.currentBus()
	if err != nil {
		return err
	}
	if err := m.setTimeout(bus, t, value); err != nil {
		m.logger.Warn().Err(err).Str("timeout", t.String()).Int("value", value).Msg("failed to set timeout")
		return err
	}
	return nil
}

func (m *Manager) setTimeout(bus can.Bus, t tcc.Timeout, value int) error {
	spec, ok := m.registry.Timeout(t)
	if !ok {
		return fmt.Errorf("%w: timeout %d", tcc.ErrUnknownIdentifier, t.ID())
	}
	if value < 0 {
		return fmt.Errorf("%w: timeout %s value %d is negative", tcc.ErrRange, t, value)
	}
	if spec.Range != nil && !spec.Range.Contains(value) {
		return fmt.Errorf("%w: timeout %s value %d outside [%d, %d]", tcc.ErrRange, t, value, spec.Range.Min, spec.Range.Max)
	}

	if spec.IsCombine() {
		var errs []error
		for _, child := range spec.Children {
			if err := m.setTimeout(bus, child, value); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", child, err))
			}
		}
		return errors.Join(errs...)
	}

	frame, err := m.timeoutFrame(t, spec, value)
	if err != nil {
		return err
	}
	if err := send(bus, frame); err != nil {
		return err
	}

	m.mu.Lock()
	m.timeouts[t] = value
	m.mu.Unlock()
	return nil
}

func (m *Manager) timeoutFrame(t tcc.Timeout, spec tcc.TimeoutSpec, value int) (models.CANFrame, error) {
	param, ok := m.registry.Parameter(spec.Parameter)
	if !ok {
		return models.CANFrame{}, fmt.Errorf("%w: timeout %s parameter %s", tcc.ErrUnknownIdentifier, t, spec.Parameter)
	}
	// bytes 6-7 carry a signed 2-byte value, so 32767 ms is the largest timeout
	encoded, err := codec.EncodeInt(int64(value), 2)
	if err != nil {
		return models.CANFrame{}, fmt.Errorf("timeout %s value %d: %w", t, value, err)
	}

	var payload [8]byte
	payload[0] = byte(spec.Kind)
	payload[1] = timeoutOpcode
	payload[2] = timeoutSubOp
	copy(payload[4:6], codec.EncodeUint16(uint16(param.CANID)))
	copy(payload[6:8], encoded)
	return models.NewFrame(TimeoutCANID, payload), nil
}
