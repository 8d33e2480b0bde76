package hardware

import (
	"fmt"
	"io"

	"gobot.io/x/gobot/v2/drivers/gpio"
	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"greenos/controller/config"
)

// NDIR CO2 analog front end: 0.4V at 0 ppm, 2.0V at full scale.
const (
	co2VoltsZero = 0.4
	co2VoltsFull = 2.0
	co2FullScale = 5000.0
)

// Raspi binds the capability interfaces to a Raspberry Pi with relay
// outputs, an SHT2x air sensor on I2C, an MCP3008 ADC on SPI, and the soil
// probe on an RS485 serial port.
type Raspi struct {
	adaptor *raspi.Adaptor
	relays  map[OutputID]*gpio.RelayDriver
	dere    *gpio.DirectPinDriver
	pir     *gpio.DirectPinDriver
	ups     *gpio.DirectPinDriver
	adc     *spi.MCP3008Driver
	sht     *i2c.SHT2xDriver
	cfg     config.Hardware
	soil    SoilBus
}

// NewRaspi wires the board per cfg. soilPort is the opened RS485 serial
// device; pass nil to leave the soil channel unconnected.
func NewRaspi(cfg config.Hardware, soilPort io.ReadWriter) (*Raspi, error) {
	a := raspi.NewAdaptor()
	if err := a.Connect(); err != nil {
		return nil, fmt.Errorf("raspi adaptor: %w", err)
	}

	r := &Raspi{
		adaptor: a,
		relays:  make(map[OutputID]*gpio.RelayDriver),
		cfg:     cfg,
	}

	outs := map[OutputID]config.Output{
		HeaterPrimary:   cfg.HeaterPrimary,
		HeaterSecondary: cfg.HeaterSecondary,
		FanExhaust:      cfg.FanExhaust,
		FanCirculation:  cfg.FanCirculation,
		Pump:            cfg.Pump,
		Light:           cfg.Light,
	}
	for id, out := range outs {
		relay := newRelay(a, out)
		if err := relay.Start(); err != nil {
			return nil, fmt.Errorf("relay %s: %w", id, err)
		}
		r.relays[id] = relay
	}

	r.dere = gpio.NewDirectPinDriver(a, cfg.DEREPin)
	r.pir = gpio.NewDirectPinDriver(a, cfg.PIRPin)
	r.ups = gpio.NewDirectPinDriver(a, cfg.UPSPin)
	for _, d := range []*gpio.DirectPinDriver{r.dere, r.pir, r.ups} {
		if err := d.Start(); err != nil {
			return nil, fmt.Errorf("direct pin: %w", err)
		}
	}

	r.adc = spi.NewMCP3008Driver(a)
	if err := r.adc.Start(); err != nil {
		return nil, fmt.Errorf("mcp3008: %w", err)
	}

	r.sht = i2c.NewSHT2xDriver(a)
	if err := r.sht.Start(); err != nil {
		return nil, fmt.Errorf("sht2x: %w", err)
	}

	if soilPort != nil {
		guard := NewTransmitGuard(r, RS485TxEnable)
		r.soil = NewGuardedSoilBus(newSerialSoilTransport(soilPort, 1), guard)
	}
	return r, nil
}

// newRelay builds the driver for one output. Active-low boards get the
// driver's inverted mode so On() still means energized.
func newRelay(a *raspi.Adaptor, out config.Output) *gpio.RelayDriver {
	if out.ActiveLow {
		return gpio.NewRelayDriver(a, out.Pin, gpio.WithRelayInverted())
	}
	return gpio.NewRelayDriver(a, out.Pin)
}

// Set drives a relay, or the RS485 direction line.
func (r *Raspi) Set(id OutputID, on bool) error {
	if id == RS485TxEnable {
		return r.dere.DigitalWrite(pinLevel(on, false))
	}
	relay, ok := r.relays[id]
	if !ok {
		return fmt.Errorf("unknown output %q", id)
	}
	if on {
		return relay.On()
	}
	return relay.Off()
}

// Read reads a digital input. The UPS status line is active-low: pulled to
// ground while the charger holds the bus up, floating high on battery.
func (r *Raspi) Read(id InputID) (bool, error) {
	switch id {
	case Motion:
		v, err := r.pir.DigitalRead()
		return v == 1, err
	case UPSActive:
		v, err := r.ups.DigitalRead()
		return v == 0, err
	}
	return false, fmt.Errorf("unknown input %q", id)
}

// ReadRaw samples one MCP3008 channel.
func (r *Raspi) ReadRaw(channel int) (int, error) {
	return r.adc.Read(channel)
}

// MaxValue reports the MCP3008 full-scale count.
func (r *Raspi) MaxValue() int { return 1023 }

// ReadAir reads temperature and humidity from the SHT2x and CO2 from the
// NDIR sensor's analog output.
func (r *Raspi) ReadAir() (AirReading, error) {
	temp, err := r.sht.Temperature()
	if err != nil {
		return AirReading{}, fmt.Errorf("sht2x temperature: %w", err)
	}
	hum, err := r.sht.Humidity()
	if err != nil {
		return AirReading{}, fmt.Errorf("sht2x humidity: %w", err)
	}
	raw, err := r.adc.Read(r.cfg.CO2Channel)
	if err != nil {
		return AirReading{}, fmt.Errorf("co2 adc: %w", err)
	}
	volts := float64(raw) / float64(r.MaxValue()) * 3.3
	co2 := (volts - co2VoltsZero) / (co2VoltsFull - co2VoltsZero) * co2FullScale
	return AirReading{
		CO2:         co2,
		Temperature: float64(temp),
		Humidity:    float64(hum),
	}, nil
}

// Backend exposes the board through the capability interfaces.
func (r *Raspi) Backend() Backend {
	return Backend{
		Outputs: r,
		Inputs:  r,
		ADC:     r,
		Air:     airFunc(r.ReadAir),
		Soil:    r.soil,
	}
}
