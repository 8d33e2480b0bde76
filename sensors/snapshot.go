package sensors

import "time"

// SensorSnapshot is one timestamped reading set. It is built once per poll
// and never mutated afterwards; consumers get copies.
type SensorSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	// Environmental
	AirTemp       float64 `json:"air_temp"`
	AirHumidity   float64 `json:"air_humidity"`
	CO2           float64 `json:"co2"`
	AirQualityPPM float64 `json:"air_quality_ppm"`

	// Substrate
	SubstrateTemp float64 `json:"substrate_temp"`
	Moisture      float64 `json:"moisture"`
	PH            float64 `json:"ph"`
	EC            float64 `json:"ec"`
	Nitrogen      float64 `json:"nitrogen"`
	Phosphorus    float64 `json:"phosphorus"`
	Potassium     float64 `json:"potassium"`

	// Security and power
	Motion     bool    `json:"motion"`
	NoiseLevel float64 `json:"noise_level"`
	OnBattery  bool    `json:"on_battery"`
}
