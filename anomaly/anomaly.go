// Package anomaly classifies sensor snapshots. At most one anomaly is
// reported per evaluation: conditions are checked in fixed severity order
// and the first hit wins, so a critical temperature excursion is never
// masked by a noisy microphone.
package anomaly

import (
	"fmt"
	"time"

	"greenos/controller/config"
	"greenos/controller/sensors"
)

// Kind tags the anomaly classification.
type Kind int

const (
	None Kind = iota
	TempTooLow
	TempTooHigh
	HumidityTooLow
	HumidityTooHigh
	MotionOffHours
	LoudNoise
	RapidTempChange
	SensorMalfunction
)

var kindNames = map[Kind]string{
	None:              "none",
	TempTooLow:        "temp_too_low",
	TempTooHigh:       "temp_too_high",
	HumidityTooLow:    "humidity_too_low",
	HumidityTooHigh:   "humidity_too_high",
	MotionOffHours:    "motion_off_hours",
	LoudNoise:         "loud_noise",
	RapidTempChange:   "rapid_temp_change",
	SensorMalfunction: "sensor_malfunction",
}

func (k Kind) String() string { return kindNames[k] }

// Severity splits anomalies into the warning tier and the emergency tier.
type Severity int

const (
	Warning Severity = iota
	Critical
)

func (s Severity) String() string {
	if s == Critical {
		return "critical"
	}
	return "warning"
}

// Event is one classification result. Events are ephemeral: built fresh
// each evaluation, published as a message, never stored as an entity.
type Event struct {
	Kind      Kind
	Severity  Severity
	Detail    string
	Value     float64
	Threshold float64
	At        time.Time
}

// Off-hours window: motion between these wall-clock hours is treated as a
// possible intrusion.
const (
	offHoursStart = 22
	offHoursEnd   = 6
)

// Detector evaluates snapshots against the configured thresholds. It keeps
// only the previous temperature, for rate-of-change detection.
type Detector struct {
	cfg   config.Thresholds
	clock func() time.Time

	lastTemp float64
	hasLast  bool
}

// New builds a detector. clock defaults to time.Now.
func New(cfg config.Thresholds, clock func() time.Time) *Detector {
	if clock == nil {
		clock = time.Now
	}
	return &Detector{cfg: cfg, clock: clock}
}

// SetThresholds swaps the limits at runtime (config pushed over MQTT).
func (d *Detector) SetThresholds(cfg config.Thresholds) { d.cfg = cfg }

// Detect classifies snap, returning the single highest-severity condition
// present, or ok=false when everything looks normal. The health report
// drives malfunction classification: a channel already flagged invalid is
// reported even when its fallback value looks plausible.
func (d *Detector) Detect(snap sensors.SensorSnapshot, health sensors.HealthReport) (Event, bool) {
	now := d.clock()
	prevTemp, hadPrev := d.lastTemp, d.hasLast
	d.lastTemp, d.hasLast = snap.AirTemp, true

	ev := Event{At: now}

	switch {
	case snap.AirTemp < d.cfg.TempMin:
		ev.Kind, ev.Severity = TempTooLow, Critical
		ev.Value, ev.Threshold = snap.AirTemp, d.cfg.TempMin
		ev.Detail = fmt.Sprintf("air temperature %.1f°C below survivable minimum %.1f°C", snap.AirTemp, d.cfg.TempMin)
	case snap.AirTemp > d.cfg.TempMax:
		ev.Kind, ev.Severity = TempTooHigh, Critical
		ev.Value, ev.Threshold = snap.AirTemp, d.cfg.TempMax
		ev.Detail = fmt.Sprintf("air temperature %.1f°C above survivable maximum %.1f°C", snap.AirTemp, d.cfg.TempMax)
	case snap.AirTemp < d.cfg.TempOptimalMin:
		ev.Kind, ev.Severity = TempTooLow, Warning
		ev.Value, ev.Threshold = snap.AirTemp, d.cfg.TempOptimalMin
		ev.Detail = fmt.Sprintf("air temperature %.1f°C below optimal %.1f°C", snap.AirTemp, d.cfg.TempOptimalMin)
	case snap.AirTemp > d.cfg.TempOptimalMax:
		ev.Kind, ev.Severity = TempTooHigh, Warning
		ev.Value, ev.Threshold = snap.AirTemp, d.cfg.TempOptimalMax
		ev.Detail = fmt.Sprintf("air temperature %.1f°C above optimal %.1f°C", snap.AirTemp, d.cfg.TempOptimalMax)

	case snap.Motion && offHours(now):
		ev.Kind, ev.Severity = MotionOffHours, Warning
		ev.Detail = fmt.Sprintf("motion detected at %02d:%02d, outside attended hours", now.Hour(), now.Minute())

	case snap.AirHumidity < d.cfg.HumidityMin:
		ev.Kind, ev.Severity = HumidityTooLow, Warning
		ev.Value, ev.Threshold = snap.AirHumidity, d.cfg.HumidityMin
		ev.Detail = fmt.Sprintf("humidity %.1f%% below minimum %.1f%%", snap.AirHumidity, d.cfg.HumidityMin)
	case snap.AirHumidity > d.cfg.HumidityMax:
		ev.Kind, ev.Severity = HumidityTooHigh, Warning
		ev.Value, ev.Threshold = snap.AirHumidity, d.cfg.HumidityMax
		ev.Detail = fmt.Sprintf("humidity %.1f%% above maximum %.1f%%", snap.AirHumidity, d.cfg.HumidityMax)

	case snap.NoiseLevel > d.cfg.NoiseVolts:
		ev.Kind, ev.Severity = LoudNoise, Warning
		ev.Value, ev.Threshold = snap.NoiseLevel, d.cfg.NoiseVolts
		ev.Detail = fmt.Sprintf("noise level %.2f V above threshold %.2f V", snap.NoiseLevel, d.cfg.NoiseVolts)

	case hadPrev && abs(snap.AirTemp-prevTemp) > d.cfg.RapidTempDelta:
		ev.Kind, ev.Severity = RapidTempChange, Warning
		ev.Value, ev.Threshold = snap.AirTemp-prevTemp, d.cfg.RapidTempDelta
		ev.Detail = fmt.Sprintf("air temperature changed %.1f°C since last evaluation", snap.AirTemp-prevTemp)

	case health.AnyInvalid():
		ev.Kind, ev.Severity = SensorMalfunction, Warning
		ev.Detail = fmt.Sprintf("failed sensor channels: %v", health.InvalidChannels())

	default:
		return Event{}, false
	}

	return ev, true
}

func offHours(t time.Time) bool {
	h := t.Hour()
	return h >= offHoursStart || h < offHoursEnd
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
