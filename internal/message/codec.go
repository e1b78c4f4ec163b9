package message

import (
	"fmt"
	"math"

	"tcc-gateway/internal/codec"
	"tcc-gateway/internal/tcc"
)

// Codec translates between wire bytes and messages using a registry to
// resolve argument ids.
type Codec struct {
	registry *tcc.Registry
}

func NewCodec(registry *tcc.Registry) *Codec {
	if registry == nil {
		registry = tcc.Default()
	}
	return &Codec{registry: registry}
}

var defaultCodec = NewCodec(nil)

// Decode decodes b with the default registry
func Decode(b []byte) (Message, error) { return defaultCodec.Decode(b) }

// Encode encodes m with the default registry
func Encode(m Message) []byte { return defaultCodec.Encode(m) }

// Decode always returns a well-formed message. Input of the wrong size or
// with an unknown type decodes to Undefined; an argument id the registry
// does not know keeps the type but drops argument, value and status.
func (c *Codec) Decode(b []byte) (Message, error) {
	if len(b) != Size {
		return Undefined, fmt.Errorf("%w: message is %d bytes, want %d", tcc.ErrLength, len(b), Size)
	}
	t := Type(b[0])
	if !t.valid() {
		return Undefined, fmt.Errorf("%w: message type 0x%02X", tcc.ErrUnknownIdentifier, b[0])
	}
	if t == TypeUndefined {
		return Undefined, nil
	}

	id, _ := codec.DecodeUint16(b[1:3])
	m := Message{Type: t, Status: b[7] != 0}

	if t != TypeCheck {
		arg, ok := c.resolve(t, id)
		if !ok {
			return Message{Type: t}, fmt.Errorf("%w: %s argument %d", tcc.ErrUnknownIdentifier, t, id)
		}
		m.Argument = arg

		if t.isTimeout() {
			v, _ := codec.DecodeInt32(b[3:7])
			m.Value = Some(float64(v))
		} else {
			v, _ := codec.DecodeFloat(b[3:7])
			m.Value = Some(float64(v))
		}
	}
	return m, nil
}

func (c *Codec) resolve(t Type, id uint16) (tcc.Identifier, bool) {
	switch t {
	case TypeCommand:
		if cmd, ok := c.registry.LookupCommand(id); ok {
			return cmd, true
		}
	case TypeGetParameter, TypeSetParameter:
		if p, ok := c.registry.LookupParameter(id); ok {
			return p, true
		}
	case TypeGetTimeout, TypeSetTimeout:
		if tm, ok := c.registry.LookupTimeout(id); ok {
			return tm, true
		}
	}
	return nil, false
}

// Encode always produces Size bytes
func (c *Codec) Encode(m Message) []byte {
	out := make([]byte, Size)
	if !m.Type.valid() {
		m.Type = TypeUndefined
	}
	out[0] = byte(m.Type)
	if m.Argument != nil {
		copy(out[1:3], codec.EncodeUint16(m.Argument.ID()))
	}
	if m.Value.Valid {
		if m.Type.isTimeout() {
			copy(out[3:7], encodeInt32(m.Value.Number))
		} else {
			copy(out[3:7], codec.EncodeFloat(float32(m.Value.Number)))
		}
	}
	if m.Status {
		out[7] = 1
	}
	return out
}

// encodeInt32 truncates toward zero and saturates at the int32 limits
func encodeInt32(f float64) []byte {
	switch {
	case math.IsNaN(f):
		f = 0
	case f > math.MaxInt32:
		f = math.MaxInt32
	case f < math.MinInt32:
		f = math.MinInt32
	}
	b, _ := codec.EncodeInt(int64(f), 4)
	return b
}
