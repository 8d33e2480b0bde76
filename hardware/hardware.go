// Package hardware is the capability layer between control logic and the
// physical board. Control code only ever sees these interfaces; the raspi
// backend binds them to real pins and buses, the fake backend backs them
// with maps for tests.
package hardware

// OutputID names a relay-driven output.
type OutputID string

const (
	HeaterPrimary   OutputID = "heater_primary"
	HeaterSecondary OutputID = "heater_secondary"
	FanExhaust      OutputID = "fan_exhaust"
	FanCirculation  OutputID = "fan_circulation"
	Pump            OutputID = "pump"
	Light           OutputID = "light"
	RS485TxEnable   OutputID = "rs485_tx_enable"
)

// InputID names a digital input.
type InputID string

const (
	Motion    InputID = "motion"
	UPSActive InputID = "ups_active"
)

// Outputs switches relay-driven lines. Set is logical: on means the load is
// energized regardless of the relay board's polarity; the backend owns the
// polarity mapping.
type Outputs interface {
	Set(id OutputID, on bool) error
}

// Inputs reads digital lines.
type Inputs interface {
	Read(id InputID) (bool, error)
}

// ADC reads raw analog samples. MaxValue is the full-scale raw count
// (1023 for a 10-bit converter).
type ADC interface {
	ReadRaw(channel int) (int, error)
	MaxValue() int
}

// AirReading is one combined air-sensor measurement.
type AirReading struct {
	CO2         float64 // ppm
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// AirSensor reads the combined CO2/temperature/humidity device.
type AirSensor interface {
	Read() (AirReading, error)
}

// SoilBus reads holding registers from the RS485 soil probe. Register
// encoding follows the probe datasheet; the bus owns framing and timing.
type SoilBus interface {
	ReadRegisters(start uint16, quantity int) ([]uint16, error)
}

// Backend bundles every capability a board provides.
type Backend struct {
	Outputs Outputs
	Inputs  Inputs
	ADC     ADC
	Air     AirSensor
	Soil    SoilBus
}

// pinLevel maps a logical on/off to the electrical level for the given
// polarity. Kept as a pure function so polarity handling is testable
// without a board.
func pinLevel(on, activeLow bool) byte {
	if on != activeLow {
		return 1
	}
	return 0
}
