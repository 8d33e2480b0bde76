package cloud

import (
	"time"

	"github.com/google/uuid"

	"greenos/controller/anomaly"
	"greenos/controller/sensors"
)

// Record is the compact snapshot projection held in the offline buffer.
// Buffering is for continuity, not completeness: only the fields worth a
// gap-fill survive.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CO2         float64   `json:"co2"`
	PH          float64   `json:"ph"`
	EC          float64   `json:"ec"`
	Moisture    float64   `json:"moisture"`
}

// NewRecord projects a snapshot into its buffered form.
func NewRecord(snap sensors.SensorSnapshot) Record {
	return Record{
		Timestamp:   snap.Timestamp,
		Temperature: snap.AirTemp,
		Humidity:    snap.AirHumidity,
		CO2:         snap.CO2,
		PH:          snap.PH,
		EC:          snap.EC,
		Moisture:    snap.Moisture,
	}
}

// Alert is the wire form of an anomaly event. Acknowledged always starts
// false; the backend owns flipping it.
type Alert struct {
	ID           string    `json:"id"`
	Severity     string    `json:"severity"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewAlert builds the wire record for ev.
func NewAlert(ev anomaly.Event) Alert {
	return Alert{
		ID:           uuid.New().String(),
		Severity:     ev.Severity.String(),
		Type:         ev.Kind.String(),
		Message:      ev.Detail,
		Acknowledged: false,
		Timestamp:    ev.At,
	}
}
