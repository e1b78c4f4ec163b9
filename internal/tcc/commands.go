package tcc

import "fmt"

// Command identifies a TCC control command. The numeric value is the
// argument id used on the client wire.
type Command uint16

const (
	CmdYawPosition Command = iota + 1
	CmdYawVelocity
	CmdYawRelativePosition
	CmdYawMotionMode
	CmdPitchPosition
	CmdPitchVelocity
	CmdPitchRelativePosition
	CmdPitchMotionMode
	CmdControlCover
	CmdControlFan
	CmdControlChargeBattery
	CmdControlOESHeater
	CmdControlDrivesHeater
	CmdYawMinPosition
	CmdYawMaxPosition
	CmdPitchMinPosition
	CmdPitchMaxPosition
)

var commandNames = map[Command]string{
	CmdYawPosition:           "YAW_POSITION",
	CmdYawVelocity:           "YAW_VELOCITY",
	CmdYawRelativePosition:   "YAW_RELATIVE_POSITION",
	CmdYawMotionMode:         "YAW_MOTION_MODE",
	CmdPitchPosition:         "PITCH_POSITION",
	CmdPitchVelocity:         "PITCH_VELOCITY",
	CmdPitchRelativePosition: "PITCH_RELATIVE_POSITION",
	CmdPitchMotionMode:       "PITCH_MOTION_MODE",
	CmdControlCover:          "CONTROL_COVER",
	CmdControlFan:            "CONTROL_FAN",
	CmdControlChargeBattery:  "CONTROL_CHARGE_BATTERY",
	CmdControlOESHeater:      "CONTROL_OES_HEATER",
	CmdControlDrivesHeater:   "CONTROL_DRIVES_HEATER",
	CmdYawMinPosition:        "YAW_MIN_POSITION",
	CmdYawMaxPosition:        "YAW_MAX_POSITION",
	CmdPitchMinPosition:      "PITCH_MIN_POSITION",
	CmdPitchMaxPosition:      "PITCH_MAX_POSITION",
}

func (c Command) ID() uint16 { return uint16(c) }

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND(%d)", uint16(c))
}

// ParseCommand resolves a command by its upper-case name
func ParseCommand(name string) (Command, bool) {
	for c, n := range commandNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// CommandKind selects the argument encoding of a command frame. The
// numeric value is the tag written to byte 1 of the frame.
type CommandKind uint8

const (
	CommandWithValue CommandKind = 0x02 // 4-byte float argument in bytes 4-7
	CommandSimple    CommandKind = 0x0A // single signed byte argument in byte 4
)

func (k CommandKind) String() string {
	switch k {
	case CommandWithValue:
		return "WITH_VALUE"
	case CommandSimple:
		return "SIMPLE"
	default:
		return fmt.Sprintf("CommandKind(0x%02X)", uint8(k))
	}
}

// CommandSpec is the static configuration of a command
type CommandSpec struct {
	CANID uint32
	Kind  CommandKind
	Min   float64
	Max   float64
}

// InRange reports whether v lies in the inclusive range [Min, Max]
func (s CommandSpec) InRange(v float64) bool {
	return v >= s.Min && v <= s.Max
}

func defaultCommands() map[Command]CommandSpec {
	return map[Command]CommandSpec{
		CmdYawPosition:           {CANID: 1300, Kind: CommandWithValue, Min: -180, Max: 180},
		CmdYawVelocity:           {CANID: 1301, Kind: CommandWithValue, Min: -80, Max: 80},
		CmdYawRelativePosition:   {CANID: 1302, Kind: CommandWithValue, Min: -180, Max: 180},
		CmdYawMotionMode:         {CANID: 1307, Kind: CommandSimple, Min: 0, Max: 2}, // 0=free run, 1=no brakes, 2=auto brakes
		CmdPitchPosition:         {CANID: 1310, Kind: CommandWithValue, Min: -20, Max: 90},
		CmdPitchVelocity:         {CANID: 1311, Kind: CommandWithValue, Min: -80, Max: 80},
		CmdPitchRelativePosition: {CANID: 1312, Kind: CommandWithValue, Min: -20, Max: 90},
		CmdPitchMotionMode:       {CANID: 1317, Kind: CommandSimple, Min: 0, Max: 2},
		CmdControlCover:          {CANID: 1400, Kind: CommandSimple, Min: 0, Max: 1},
		CmdControlFan:            {CANID: 1403, Kind: CommandSimple, Min: 0, Max: 1},
		CmdControlChargeBattery:  {CANID: 1414, Kind: CommandSimple, Min: 0, Max: 1},
		CmdControlOESHeater:      {CANID: 1430, Kind: CommandSimple, Min: 0, Max: 1},
		CmdControlDrivesHeater:   {CANID: 1432, Kind: CommandSimple, Min: 0, Max: 1},
		CmdYawMinPosition:        {CANID: 1653, Kind: CommandWithValue, Min: -180, Max: 180},
		CmdYawMaxPosition:        {CANID: 1655, Kind: CommandWithValue, Min: -180, Max: 180},
		CmdPitchMinPosition:      {CANID: 1703, Kind: CommandWithValue, Min: -20, Max: 90},
		CmdPitchMaxPosition:      {CANID: 1705, Kind: CommandWithValue, Min: -20, Max: 90},
	}
}
