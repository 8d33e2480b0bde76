package controller

// State is the lifecycle tag. Only the controller owns it; every other
// component is state-agnostic.
type State int

const (
	Boot State = iota
	SensorInit
	NetworkConnect
	CloudAuth
	NormalOperation
	SafeMode
	Emergency
	CalibrationMode
)

var stateNames = map[State]string{
	Boot:            "boot",
	SensorInit:      "sensor_init",
	NetworkConnect:  "network_connect",
	CloudAuth:       "cloud_auth",
	NormalOperation: "normal_operation",
	SafeMode:        "safe_mode",
	Emergency:       "emergency",
	CalibrationMode: "calibration_mode",
}

func (s State) String() string { return stateNames[s] }

// Event drives a state change.
type Event int

const (
	EventBootComplete Event = iota
	EventSensorsReady
	EventSensorsFailed
	EventNetworkDone
	EventAuthDone
	EventCriticalAnomaly
	EventEmergencyHandled
	EventSensorsDegraded
	EventSafeModeTimeout
	EventCalibrationRequested
	EventCalibrationDone
)

var eventNames = map[Event]string{
	EventBootComplete:         "boot_complete",
	EventSensorsReady:         "sensors_ready",
	EventSensorsFailed:        "sensors_failed",
	EventNetworkDone:          "network_done",
	EventAuthDone:             "auth_done",
	EventCriticalAnomaly:      "critical_anomaly",
	EventEmergencyHandled:     "emergency_handled",
	EventSensorsDegraded:      "sensors_degraded",
	EventSafeModeTimeout:      "safe_mode_timeout",
	EventCalibrationRequested: "calibration_requested",
	EventCalibrationDone:      "calibration_done",
}

func (e Event) String() string { return eventNames[e] }

// transitions is the complete lifecycle. NetworkConnect and CloudAuth have
// a single outcome each: both phases fail open, so "done" covers success
// and failure alike.
var transitions = map[State]map[Event]State{
	Boot: {
		EventBootComplete: SensorInit,
	},
	SensorInit: {
		EventSensorsReady:  NetworkConnect,
		EventSensorsFailed: SafeMode,
	},
	NetworkConnect: {
		EventNetworkDone: CloudAuth,
	},
	CloudAuth: {
		EventAuthDone: NormalOperation,
	},
	NormalOperation: {
		EventCriticalAnomaly:      Emergency,
		EventSensorsDegraded:      SafeMode,
		EventCalibrationRequested: CalibrationMode,
	},
	Emergency: {
		EventEmergencyHandled: NormalOperation,
	},
	SafeMode: {
		EventSafeModeTimeout: SensorInit,
	},
	CalibrationMode: {
		EventCalibrationDone: NormalOperation,
	},
}

// Next resolves the transition for (s, e). ok is false when the event is
// not defined for the state; the caller logs and stays put.
func Next(s State, e Event) (State, bool) {
	next, ok := transitions[s][e]
	return next, ok
}
