// Package sensors acquires, validates, and calibrates every reading the
// controller makes decisions on. A failed or out-of-range channel never
// raises a fatal error: the last known good value stands in and the
// channel's health record takes the hit.
package sensors

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"greenos/controller/config"
	"greenos/controller/hardware"
)

// Validation ranges. A reading outside its range is treated exactly like a
// communication failure.
const (
	co2MinPPM, co2MaxPPM         = 300.0, 5000.0
	airTempMinC, airTempMaxC     = -10.0, 50.0
	humidityMinPct, humidityMax  = 0.0, 100.0
	moistureMinPct, moistureMax  = 0.0, 100.0
	soilTempMinC, soilTempMaxC   = -10.0, 60.0
	ecMin, ecMax                 = 0.0, 10.0
	phMin, phMax                 = 3.0, 10.0
	airQualityMin, airQualityMax = 10.0, 2000.0
)

// soilRegisterCount covers moisture, temp, EC, pH, N, P, K.
const soilRegisterCount = 7

// Channels maps the analog inputs the manager samples itself.
type Channels struct {
	AirQuality int
	Noise      int
}

// Manager owns sensor acquisition. It is driven only from the control loop;
// no internal goroutines, no locking.
type Manager struct {
	cfg   config.Sensors
	ch    Channels
	hw    hardware.Backend
	store ProfileStore
	log   *slog.Logger
	clock func() time.Time

	profile Profile
	r0      float64

	airHealth  Health
	aqHealth   Health
	soilHealth Health

	warmupStart time.Time
	warmedUp    bool

	data SensorSnapshot
}

// New builds a manager. The calibration profile is loaded from store,
// falling back to defaults on a checksum mismatch.
func New(cfg config.Sensors, ch Channels, hw hardware.Backend, store ProfileStore, log *slog.Logger, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		cfg:     cfg,
		ch:      ch,
		hw:      hw,
		store:   store,
		log:     log,
		clock:   clock,
		profile: LoadProfileOrDefault(store, cfg.VRefNominal, log),
		r0:      cfg.R0Ohms,
		// Safe defaults until the first good read of each channel.
		data: SensorSnapshot{
			AirTemp:       20.0,
			AirHumidity:   50.0,
			CO2:           400.0,
			SubstrateTemp: 20.0,
			Moisture:      30.0,
			PH:            6.5,
			EC:            1.5,
		},
	}
}

// Init probes the channels and starts the air-quality warm-up clock. It
// fails only when the critical air channel does not respond; the soil probe
// being absent degrades that channel without blocking startup.
func (m *Manager) Init() error {
	now := m.clock()
	m.warmupStart = now
	m.warmedUp = m.cfg.Warmup() <= 0

	if _, err := m.hw.Air.Read(); err != nil {
		m.airHealth.reset(false)
		return fmt.Errorf("air sensor probe: %w", err)
	}
	m.airHealth.reset(true)
	m.aqHealth.reset(true)

	if m.hw.Soil == nil {
		m.soilHealth.reset(false)
		m.log.Warn("soil bus not connected, channel disabled")
	} else if _, err := m.hw.Soil.ReadRegisters(0, soilRegisterCount); err != nil {
		m.soilHealth.reset(false)
		m.log.Warn("soil probe not responding", "error", err)
	} else {
		m.soilHealth.reset(true)
	}

	m.log.Info("sensors initialized",
		"air", m.airHealth.Valid, "soil", m.soilHealth.Valid,
		"airquality_warmup", m.cfg.Warmup())
	return nil
}

// Reinit is the explicit recovery path: it is the only way a channel
// flagged invalid becomes valid again.
func (m *Manager) Reinit() error { return m.Init() }

// ProbeAirTemp attempts a direct air read, ignoring the channel's invalid
// flag and touching no health counters. Safe-mode life support needs it: a
// flagged sensor may still answer intermittently, and deciding whether to
// heat on a frozen temperature is worse than on a suspect one. The sanity
// range still applies.
func (m *Manager) ProbeAirTemp() (float64, bool) {
	reading, err := m.hw.Air.Read()
	if err != nil || !inRange(reading.Temperature, airTempMinC, airTempMaxC) {
		return 0, false
	}
	return reading.Temperature, true
}

// ReadAll polls every channel and returns the snapshot. Individual channel
// failures fall back to last known good values; this never returns an
// error.
func (m *Manager) ReadAll() SensorSnapshot {
	now := m.clock()
	m.data.Timestamp = now

	m.readAir(now)
	m.readAirQuality(now)
	m.readSoil(now)

	if motion, err := m.hw.Inputs.Read(hardware.Motion); err == nil {
		m.data.Motion = motion
	} else {
		m.log.Debug("motion read failed", "error", err)
	}
	if onBattery, err := m.hw.Inputs.Read(hardware.UPSActive); err == nil {
		m.data.OnBattery = onBattery
	} else {
		m.log.Debug("ups read failed", "error", err)
	}
	if volts, err := m.readCalibratedADC(m.ch.Noise); err == nil {
		m.data.NoiseLevel = volts
	} else {
		m.log.Debug("noise read failed", "error", err)
	}

	return m.data
}

func (m *Manager) readAir(now time.Time) {
	m.airHealth.TotalReads++
	if !m.airHealth.Valid {
		return // flagged failed, skip until reinit
	}

	reading, err := m.hw.Air.Read()
	if err == nil &&
		inRange(reading.CO2, co2MinPPM, co2MaxPPM) &&
		inRange(reading.Temperature, airTempMinC, airTempMaxC) &&
		inRange(reading.Humidity, humidityMinPct, humidityMax) {
		m.data.CO2 = reading.CO2
		m.data.AirTemp = reading.Temperature
		m.data.AirHumidity = reading.Humidity
		m.airHealth.success(reading.CO2, now)
		return
	}

	// m.data keeps the last validated reading, or the boot-time safe
	// defaults when nothing has been validated yet.
	if m.airHealth.failure(m.cfg.MaxConsecutiveErrors) {
		m.log.Warn("air channel flagged as failed",
			"consecutive_errors", m.airHealth.ConsecutiveErrors, "error", err)
	}
}

func (m *Manager) readAirQuality(now time.Time) {
	m.aqHealth.TotalReads++

	// Warm-up gate: the heated element needs its settling period before
	// the signal means anything, however plausible it looks.
	if !m.warmedUp {
		if now.Sub(m.warmupStart) < m.cfg.Warmup() {
			return
		}
		m.warmedUp = true
		m.log.Info("air-quality sensor warm-up complete")
	}
	if !m.aqHealth.Valid {
		return
	}

	volts, err := m.readCalibratedADC(m.ch.AirQuality)
	if err == nil {
		if ppm, ok := m.airQualityPPM(volts); ok && inRange(ppm, airQualityMin, airQualityMax) {
			m.data.AirQualityPPM = ppm
			m.aqHealth.success(ppm, now)
			return
		}
	}

	if m.aqHealth.failure(m.cfg.MaxConsecutiveErrors) {
		m.log.Warn("air-quality channel flagged as failed",
			"consecutive_errors", m.aqHealth.ConsecutiveErrors, "error", err)
	}
}

// airQualityPPM converts a calibrated ADC voltage to a gas concentration.
// The curve fit is approximate and batch-specific: the coefficient and
// exponent come from the vendor's calibration gas, so treat the output as
// an index, not a measurement.
func (m *Manager) airQualityPPM(volts float64) (float64, bool) {
	sensorVolts := volts * (m.cfg.DividerR1Ohms + m.cfg.DividerR2Ohms) / m.cfg.DividerR2Ohms
	if sensorVolts <= 0.1 || sensorVolts >= 4.9 {
		return 0, false
	}
	rs := (5.0 - sensorVolts) * m.cfg.LoadResistorOhms / sensorVolts
	ratio := rs / m.r0
	return m.cfg.CurveCoefficient * math.Pow(ratio, m.cfg.CurveExponent), true
}

func (m *Manager) readSoil(now time.Time) {
	m.soilHealth.TotalReads++
	if !m.soilHealth.Valid || m.hw.Soil == nil {
		return
	}

	regs, err := m.hw.Soil.ReadRegisters(0, soilRegisterCount)
	if err == nil && len(regs) == soilRegisterCount {
		moisture := float64(regs[0]) / 10.0
		soilTemp := float64(regs[1]) / 10.0
		ec := float64(regs[2]) / 1000.0 // µS/cm to mS/cm
		ph := float64(regs[3]) / 100.0

		if inRange(moisture, moistureMinPct, moistureMax) &&
			inRange(soilTemp, soilTempMinC, soilTempMaxC) &&
			inRange(ec, ecMin, ecMax) &&
			inRange(ph, phMin, phMax) {
			m.data.Moisture = moisture
			m.data.SubstrateTemp = soilTemp
			m.data.EC = ec
			m.data.PH = ph
			m.data.Nitrogen = float64(regs[4])
			m.data.Phosphorus = float64(regs[5])
			m.data.Potassium = float64(regs[6])
			m.soilHealth.success(ec, now)
			return
		}
		err = errors.New("register values out of range")
	}

	if m.soilHealth.failure(m.cfg.MaxConsecutiveErrors) {
		m.log.Warn("soil channel flagged as failed",
			"consecutive_errors", m.soilHealth.ConsecutiveErrors, "error", err)
	}
}

// readCalibratedADC multi-samples a channel and applies the profile.
func (m *Manager) readCalibratedADC(channel int) (float64, error) {
	sum := 0
	for i := 0; i < m.cfg.ADCSamples; i++ {
		raw, err := m.hw.ADC.ReadRaw(channel)
		if err != nil {
			return 0, err
		}
		sum += raw
	}
	avg := float64(sum) / float64(m.cfg.ADCSamples)
	return m.profile.Apply(avg, m.hw.ADC.MaxValue()), nil
}

// Snapshot returns the last assembled reading set without polling.
func (m *Manager) Snapshot() SensorSnapshot { return m.data }

// Profile returns the active calibration profile.
func (m *Manager) Profile() Profile { return m.profile }

// CriticalInvalid reports whether the critical air channel is flagged
// failed, which forces the controller into safe mode.
func (m *Manager) CriticalInvalid() bool { return !m.airHealth.Valid }

// HealthReport assembles the per-channel health view.
func (m *Manager) HealthReport() HealthReport {
	return HealthReport{
		Air:        channelHealth("air", m.airHealth),
		AirQuality: channelHealth("air_quality", m.aqHealth),
		Soil:       channelHealth("soil", m.soilHealth),
		WarmedUp:   m.warmedUp,
	}
}

func channelHealth(name string, h Health) ChannelHealth {
	return ChannelHealth{
		Name:              name,
		Valid:             h.Valid,
		ConsecutiveErrors: h.ConsecutiveErrors,
		ErrorRate:         h.ErrorRate(),
		LastGoodAt:        h.LastGoodAt,
	}
}

func inRange(v, lo, hi float64) bool { return v >= lo && v <= hi }
