package tcc

import "fmt"

// Parameter identifies a telemetry value reported by the TCC
type Parameter uint16

const (
	// yaw-response
	ParamYawPosition Parameter = iota + 1
	ParamYawVelocity
	ParamYawEngine
	ParamYawMotionMode
	ParamYawPower

	// pitch-response
	ParamPitchPosition
	ParamPitchVelocity
	ParamPitchEngine
	ParamPitchMotionMode
	ParamPitchPower

	// states
	ParamFanState
	ParamCaseTemperature
	ParamCoverState
	ParamChargingCurrent
	ParamChargingState
	ParamGlobalShotCounter
	ParamYawCurrentStatus

	// rover-gnss
	ParamRovGNSSHeading
	ParamRovGNSSAccuracy
	ParamRovGNSSYaw

	// base-gnss
	ParamBaseGNSSLatitude
	ParamBaseGNSSLongitude
	ParamBaseGNSSSeaLevel
	ParamBaseGNSSAccuracy

	// global-pos
	ParamGlobalPitchPositionIncl
	ParamGlobalRollPositionIncl
)

var parameterNames = map[Parameter]string{
	ParamYawPosition:             "YAW_POSITION",
	ParamYawVelocity:             "YAW_VELOCITY",
	ParamYawEngine:               "YAW_ENGINE",
	ParamYawMotionMode:           "YAW_MOTION_MODE",
	ParamYawPower:                "YAW_POWER",
	ParamPitchPosition:           "PITCH_POSITION",
	ParamPitchVelocity:           "PITCH_VELOCITY",
	ParamPitchEngine:             "PITCH_ENGINE",
	ParamPitchMotionMode:         "PITCH_MOTION_MODE",
	ParamPitchPower:              "PITCH_POWER",
	ParamFanState:                "FAN_STATE",
	ParamCaseTemperature:         "CASE_TEMPERATURE",
	ParamCoverState:              "COVER_STATE",
	ParamChargingCurrent:         "CHARGING_CURRENT",
	ParamChargingState:           "CHARGING_STATE",
	ParamGlobalShotCounter:       "GLOBAL_SHOT_COUNTER",
	ParamYawCurrentStatus:        "YAW_CURRENT_STATUS",
	ParamRovGNSSHeading:          "ROV_GNSS_HEADING",
	ParamRovGNSSAccuracy:         "ROV_GNSS_ACCURACY",
	ParamRovGNSSYaw:              "ROV_GNSS_YAW",
	ParamBaseGNSSLatitude:        "BASE_GNSS_LATITUDE",
	ParamBaseGNSSLongitude:       "BASE_GNSS_LONGITUDE",
	ParamBaseGNSSSeaLevel:        "BASE_GNSS_SEA_LEVEL",
	ParamBaseGNSSAccuracy:        "BASE_GNSS_ACCURACY",
	ParamGlobalPitchPositionIncl: "GLOBAL_PITCH_POSITION_INCL",
	ParamGlobalRollPositionIncl:  "GLOBAL_ROLL_POSITION_INCL",
}

func (p Parameter) ID() uint16 { return uint16(p) }

func (p Parameter) String() string {
	if name, ok := parameterNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PARAMETER(%d)", uint16(p))
}

// ParseParameter resolves a parameter by its upper-case name
func ParseParameter(name string) (Parameter, bool) {
	for p, n := range parameterNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

// DecodeKind describes how an inbound frame payload maps to a value
type DecodeKind uint8

const (
	DecodeUnassigned DecodeKind = iota // recognised id, payload ignored
	DecodeFloat                        // float32 from bytes 4-7
	DecodeInt                          // unsigned byte 4
	DecodeBigInt                       // int32 from bytes 4-7
	DecodeBigIntDiv                    // int32 from bytes 4-7 divided by Divider
	DecodeBool                         // byte 4 != 0
)

func (k DecodeKind) String() string {
	switch k {
	case DecodeUnassigned:
		return "UNASSIGNED"
	case DecodeFloat:
		return "FLOAT"
	case DecodeInt:
		return "INT"
	case DecodeBigInt:
		return "BIG_INT"
	case DecodeBigIntDiv:
		return "BIG_INT_DIV"
	case DecodeBool:
		return "BOOL"
	default:
		return fmt.Sprintf("DecodeKind(%d)", uint8(k))
	}
}

// ParameterSpec is the static configuration of a parameter
type ParameterSpec struct {
	CANID   uint32
	Kind    DecodeKind
	Divider float64
	Default Value
}

func defaultParameters() map[Parameter]ParameterSpec {
	float := func(id uint32) ParameterSpec {
		return ParameterSpec{CANID: id, Kind: DecodeFloat, Default: FloatValue(0)}
	}
	scaled := func(id uint32, divider float64) ParameterSpec {
		return ParameterSpec{CANID: id, Kind: DecodeBigIntDiv, Divider: divider, Default: FloatValue(0)}
	}
	boolean := func(id uint32) ParameterSpec {
		return ParameterSpec{CANID: id, Kind: DecodeBool, Default: BoolValue(false)}
	}

	return map[Parameter]ParameterSpec{
		ParamYawPosition:   float(1303), // degrees
		ParamYawVelocity:   float(1304), // degrees/s
		ParamYawEngine:     {CANID: 1305, Kind: DecodeUnassigned, Default: FloatValue(0)},
		ParamYawMotionMode: {CANID: 1308, Kind: DecodeInt, Default: IntValue(0)},
		ParamYawPower:      {CANID: 1309, Kind: DecodeUnassigned, Default: IntValue(0)},

		ParamPitchPosition:   float(1313),
		ParamPitchVelocity:   float(1314),
		ParamPitchEngine:     {CANID: 1315, Kind: DecodeUnassigned, Default: FloatValue(0)},
		ParamPitchMotionMode: {CANID: 1318, Kind: DecodeInt, Default: IntValue(0)},
		ParamPitchPower:      {CANID: 1319, Kind: DecodeUnassigned, Default: IntValue(0)},

		ParamFanState:          boolean(1404),
		ParamCaseTemperature:   float(1405), // celsius
		ParamCoverState:        boolean(1409),
		ParamChargingCurrent:   float(1413), // amperes
		ParamChargingState:     boolean(1415),
		ParamGlobalShotCounter: {CANID: 1418, Kind: DecodeBigInt, Default: IntValue(0)},
		ParamYawCurrentStatus:  boolean(1467),

		ParamRovGNSSHeading:  scaled(1507, 1e5),
		ParamRovGNSSAccuracy: scaled(1509, 1e5),
		ParamRovGNSSYaw:      float(1800),

		ParamBaseGNSSLatitude:  scaled(1520, 1e7),
		ParamBaseGNSSLongitude: scaled(1521, 1e7),
		ParamBaseGNSSSeaLevel:  scaled(1523, 1e3), // meters
		ParamBaseGNSSAccuracy:  scaled(1524, 1e4),

		ParamGlobalPitchPositionIncl: float(1801),
		ParamGlobalRollPositionIncl:  float(1802),
	}
}
