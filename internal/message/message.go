// Package message implements the 8-byte client protocol spoken by TCC
// gateway clients.
package message

import (
	"fmt"
	"strconv"

	"tcc-gateway/internal/tcc"
)

// Size is the length of every wire message
const Size = 8

// Type is the message kind carried in byte 0
type Type uint8

const (
	TypeCheck        Type = 0x00
	TypeCommand      Type = 0x01
	TypeGetParameter Type = 0x02
	TypeGetTimeout   Type = 0x03
	TypeSetParameter Type = 0x04
	TypeSetTimeout   Type = 0x05
	TypeUndefined    Type = 0xFF
)

func (t Type) String() string {
	switch t {
	case TypeCheck:
		return "CHECK"
	case TypeCommand:
		return "COMMAND"
	case TypeGetParameter:
		return "GET_PARAMETER"
	case TypeGetTimeout:
		return "GET_TIMEOUT"
	case TypeSetParameter:
		return "SET_PARAMETER"
	case TypeSetTimeout:
		return "SET_TIMEOUT"
	case TypeUndefined:
		return "UNDEFINED"
	default:
		return fmt.Sprintf("Type(0x%02X)", uint8(t))
	}
}

func (t Type) valid() bool {
	return t <= TypeSetTimeout || t == TypeUndefined
}

// isTimeout reports whether the value field is an integer millisecond count
func (t Type) isTimeout() bool {
	return t == TypeGetTimeout || t == TypeSetTimeout
}

// ParseType resolves a message type by name, case sensitive
func ParseType(name string) (Type, bool) {
	for _, t := range []Type{TypeCheck, TypeCommand, TypeGetParameter, TypeGetTimeout, TypeSetParameter, TypeSetTimeout, TypeUndefined} {
		if t.String() == name {
			return t, true
		}
	}
	return TypeUndefined, false
}

// Value is an optional number. The zero Value is absent.
type Value struct {
	Number float64
	Valid  bool
}

func Some(n float64) Value { return Value{Number: n, Valid: true} }

var None = Value{}

func (v Value) String() string {
	if !v.Valid {
		return "none"
	}
	return strconv.FormatFloat(v.Number, 'g', -1, 64)
}

// Message is one client request or response. Messages are comparable with ==.
type Message struct {
	Type     Type
	Argument tcc.Identifier // tcc.Command, tcc.Parameter, tcc.Timeout or nil
	Value    Value
	Status   bool
}

// Undefined is the message returned for undecodable input
var Undefined = Message{Type: TypeUndefined}

func (m Message) String() string {
	arg := "-"
	if m.Argument != nil {
		arg = m.Argument.String()
	}
	return fmt.Sprintf("%s(%s, %s, %t)", m.Type, arg, m.Value, m.Status)
}
