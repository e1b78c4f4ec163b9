package tcc

import "fmt"

// Timeout identifies a telemetry timeout, either a group or a single parameter
type Timeout uint16

const (
	// yaw-response
	TimeoutYawResponse Timeout = iota + 1
	TimeoutYawPosition
	TimeoutYawVelocity
	TimeoutYawEngine
	TimeoutYawMotionMode
	TimeoutYawPower

	// pitch-response
	TimeoutPitchResponse
	TimeoutPitchPosition
	TimeoutPitchVelocity
	TimeoutPitchEngine
	TimeoutPitchMotionMode
	TimeoutPitchPower

	// states
	TimeoutStates
	TimeoutFanState
	TimeoutCaseTemperature
	TimeoutChargingCurrent
	TimeoutChargingState
	TimeoutGlobalShotCounter
	TimeoutCoverState
	TimeoutYawCurrentStatus

	// rover-gnss
	TimeoutRoverGNSS
	TimeoutRovGNSSHeading
	TimeoutRovGNSSAccuracy
	TimeoutRovGNSSYaw

	// base-gnss
	TimeoutBaseGNSS
	TimeoutBaseGNSSLatitude
	TimeoutBaseGNSSLongitude
	TimeoutBaseGNSSSeaLevel
	TimeoutBaseGNSSAccuracy

	// global-pos
	TimeoutGlobalPos
	TimeoutGlobalPitchPositionIncl
	TimeoutGlobalRollPositionIncl
)

var timeoutNames = map[Timeout]string{
	TimeoutYawResponse:             "YAW_RESPONSE",
	TimeoutYawPosition:             "YAW_POSITION",
	TimeoutYawVelocity:             "YAW_VELOCITY",
	TimeoutYawEngine:               "YAW_ENGINE",
	TimeoutYawMotionMode:           "YAW_MOTION_MODE",
	TimeoutYawPower:                "YAW_POWER",
	TimeoutPitchResponse:           "PITCH_RESPONSE",
	TimeoutPitchPosition:           "PITCH_POSITION",
	TimeoutPitchVelocity:           "PITCH_VELOCITY",
	TimeoutPitchEngine:             "PITCH_ENGINE",
	TimeoutPitchMotionMode:         "PITCH_MOTION_MODE",
	TimeoutPitchPower:              "PITCH_POWER",
	TimeoutStates:                  "STATES",
	TimeoutFanState:                "FAN_STATE",
	TimeoutCaseTemperature:         "CASE_TEMPERATURE",
	TimeoutChargingCurrent:         "CHARGING_CURRENT",
	TimeoutChargingState:           "CHARGING_STATE",
	TimeoutGlobalShotCounter:       "GLOBAL_SHOT_COUNTER",
	TimeoutCoverState:              "COVER_STATE",
	TimeoutYawCurrentStatus:        "YAW_CURRENT_STATUS",
	TimeoutRoverGNSS:               "ROVER_GNSS",
	TimeoutRovGNSSHeading:          "ROV_GNSS_HEADING",
	TimeoutRovGNSSAccuracy:         "ROV_GNSS_ACCURACY",
	TimeoutRovGNSSYaw:              "ROV_GNSS_YAW",
	TimeoutBaseGNSS:                "BASE_GNSS",
	TimeoutBaseGNSSLatitude:        "BASE_GNSS_LATITUDE",
	TimeoutBaseGNSSLongitude:       "BASE_GNSS_LONGITUDE",
	TimeoutBaseGNSSSeaLevel:        "BASE_GNSS_SEA_LEVEL",
	TimeoutBaseGNSSAccuracy:        "BASE_GNSS_ACCURACY",
	TimeoutGlobalPos:               "GLOBAL_POS",
	TimeoutGlobalPitchPositionIncl: "GLOBAL_PITCH_POSITION_INCL",
	TimeoutGlobalRollPositionIncl:  "GLOBAL_ROLL_POSITION_INCL",
}

func (t Timeout) ID() uint16 { return uint16(t) }

func (t Timeout) String() string {
	if name, ok := timeoutNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TIMEOUT(%d)", uint16(t))
}

// ParseTimeout resolves a timeout by its upper-case name
func ParseTimeout(name string) (Timeout, bool) {
	for t, n := range timeoutNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// TimeoutKind selects the sub-bus a leaf timeout is configured on. The
// numeric value is written to byte 0 of the timeout-set frame.
type TimeoutKind uint8

const (
	TimeoutCombine TimeoutKind = 0x00
	TimeoutMain    TimeoutKind = 0x01
	TimeoutRover   TimeoutKind = 0x05
	TimeoutBase    TimeoutKind = 0x06
	TimeoutCamera  TimeoutKind = 0x07
)

func (k TimeoutKind) String() string {
	switch k {
	case TimeoutCombine:
		return "COMBINE"
	case TimeoutMain:
		return "MAIN"
	case TimeoutRover:
		return "ROVER"
	case TimeoutBase:
		return "BASE"
	case TimeoutCamera:
		return "CAMERA"
	default:
		return fmt.Sprintf("TimeoutKind(0x%02X)", uint8(k))
	}
}

// Range is an inclusive bound in milliseconds
type Range struct {
	Min int
	Max int
}

func (r Range) Contains(v int) bool { return v >= r.Min && v <= r.Max }

// TimeoutSpec is either a COMBINE node fanning out to Children or a leaf
// bound to Parameter on the sub-bus named by Kind.
type TimeoutSpec struct {
	Kind      TimeoutKind
	Children  []Timeout
	Parameter Parameter
	Range     *Range
	Default   int
}

func (s TimeoutSpec) IsCombine() bool { return s.Kind == TimeoutCombine }

// Combine builds a group node
func Combine(defaultMs int, children ...Timeout) TimeoutSpec {
	return TimeoutSpec{Kind: TimeoutCombine, Children: children, Default: defaultMs}
}

// Leaf builds a node bound to a single parameter
func Leaf(p Parameter, kind TimeoutKind) TimeoutSpec {
	return TimeoutSpec{Kind: kind, Parameter: p}
}

// DefaultRoots lists the groups applied when the bus opens and zeroed when it closes
var DefaultRoots = []Timeout{
	TimeoutYawResponse,
	TimeoutPitchResponse,
	TimeoutStates,
	TimeoutRoverGNSS,
	TimeoutBaseGNSS,
	TimeoutGlobalPos,
}

const defaultRootTimeoutMs = 20

func defaultTimeouts() map[Timeout]TimeoutSpec {
	return map[Timeout]TimeoutSpec{
		TimeoutYawResponse: Combine(defaultRootTimeoutMs,
			TimeoutYawPosition,
			TimeoutYawVelocity,
			TimeoutYawEngine,
			TimeoutYawMotionMode,
			TimeoutYawPower,
		),
		TimeoutYawPosition:   Leaf(ParamYawPosition, TimeoutMain),
		TimeoutYawVelocity:   Leaf(ParamYawVelocity, TimeoutMain),
		TimeoutYawEngine:     Leaf(ParamYawEngine, TimeoutMain),
		TimeoutYawMotionMode: Leaf(ParamYawMotionMode, TimeoutMain),
		TimeoutYawPower:      Leaf(ParamYawPower, TimeoutMain),

		TimeoutPitchResponse: Combine(defaultRootTimeoutMs,
			TimeoutPitchPosition,
			TimeoutPitchVelocity,
			TimeoutPitchEngine,
			TimeoutPitchMotionMode,
			TimeoutPitchPower,
			TimeoutCoverState,
		),
		TimeoutPitchPosition:   Leaf(ParamPitchPosition, TimeoutMain),
		TimeoutPitchVelocity:   Leaf(ParamPitchVelocity, TimeoutMain),
		TimeoutPitchEngine:     Leaf(ParamPitchEngine, TimeoutMain),
		TimeoutPitchMotionMode: Leaf(ParamPitchMotionMode, TimeoutMain),
		TimeoutPitchPower:      Leaf(ParamPitchPower, TimeoutMain),

		TimeoutStates: Combine(defaultRootTimeoutMs,
			TimeoutFanState,
			TimeoutCaseTemperature,
			TimeoutChargingCurrent,
			TimeoutChargingState,
			TimeoutGlobalShotCounter,
			TimeoutCoverState,
			TimeoutYawCurrentStatus,
		),
		TimeoutFanState:          Leaf(ParamFanState, TimeoutMain),
		TimeoutCaseTemperature:   Leaf(ParamCaseTemperature, TimeoutMain),
		TimeoutChargingCurrent:   Leaf(ParamChargingCurrent, TimeoutMain),
		TimeoutChargingState:     Leaf(ParamChargingState, TimeoutMain),
		TimeoutGlobalShotCounter: Leaf(ParamGlobalShotCounter, TimeoutMain),
		TimeoutCoverState:        Leaf(ParamCoverState, TimeoutMain),
		TimeoutYawCurrentStatus:  Leaf(ParamYawCurrentStatus, TimeoutMain),

		TimeoutRoverGNSS: Combine(defaultRootTimeoutMs,
			TimeoutRovGNSSHeading,
			TimeoutRovGNSSAccuracy,
			TimeoutRovGNSSYaw,
		),
		TimeoutRovGNSSHeading:  Leaf(ParamRovGNSSHeading, TimeoutRover),
		TimeoutRovGNSSAccuracy: Leaf(ParamRovGNSSAccuracy, TimeoutRover),
		TimeoutRovGNSSYaw:      Leaf(ParamRovGNSSYaw, TimeoutRover),

		TimeoutBaseGNSS: Combine(defaultRootTimeoutMs,
			TimeoutBaseGNSSLatitude,
			TimeoutBaseGNSSLongitude,
			TimeoutBaseGNSSSeaLevel,
			TimeoutBaseGNSSAccuracy,
		),
		TimeoutBaseGNSSLatitude:  Leaf(ParamBaseGNSSLatitude, TimeoutBase),
		TimeoutBaseGNSSLongitude: Leaf(ParamBaseGNSSLongitude, TimeoutBase),
		TimeoutBaseGNSSSeaLevel:  Leaf(ParamBaseGNSSSeaLevel, TimeoutBase),
		TimeoutBaseGNSSAccuracy:  Leaf(ParamBaseGNSSAccuracy, TimeoutBase),

		TimeoutGlobalPos: Combine(defaultRootTimeoutMs,
			TimeoutGlobalPitchPositionIncl,
			TimeoutGlobalRollPositionIncl,
		),
		TimeoutGlobalPitchPositionIncl: Leaf(ParamGlobalPitchPositionIncl, TimeoutMain),
		TimeoutGlobalRollPositionIncl:  Leaf(ParamGlobalRollPositionIncl, TimeoutMain),
	}
}
