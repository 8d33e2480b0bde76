// Package actuators is the only place physical outputs are switched. Every
// public setter enforces the safety rules (minimum dwell time, the
// heater/exhaust interlock, the pump runtime ceiling) regardless of why
// the change was requested. A rejected command is not an error: it is
// ignored and logged.
package actuators

import (
	"log/slog"
	"time"

	"greenos/controller/anomaly"
	"greenos/controller/config"
	"greenos/controller/hardware"
)

// EmergencyKind selects a protective action bundle.
type EmergencyKind int

const (
	EmergencyLowTemperature EmergencyKind = iota
	EmergencyHighTemperature
	EmergencySecurityBreach
	EmergencyWaterLeak
	EmergencyPowerFailure
)

var emergencyNames = map[EmergencyKind]string{
	EmergencyLowTemperature:  "low_temperature",
	EmergencyHighTemperature: "high_temperature",
	EmergencySecurityBreach:  "security_breach",
	EmergencyWaterLeak:       "water_leak",
	EmergencyPowerFailure:    "power_failure",
}

func (k EmergencyKind) String() string { return emergencyNames[k] }

// outputState tracks one physical output.
type outputState struct {
	on         bool
	lastChange time.Time
	onSince    time.Time
}

// Manager owns the outputs. Driven only from the control loop.
type Manager struct {
	cfg   config.Actuators
	out   hardware.Outputs
	log   *slog.Logger
	clock func() time.Time

	states map[hardware.OutputID]*outputState
}

// New builds a manager with every output assumed off.
func New(cfg config.Actuators, out hardware.Outputs, log *slog.Logger, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	states := make(map[hardware.OutputID]*outputState)
	for _, id := range []hardware.OutputID{
		hardware.HeaterPrimary, hardware.HeaterSecondary,
		hardware.FanExhaust, hardware.FanCirculation,
		hardware.Pump, hardware.Light,
	} {
		states[id] = &outputState{}
	}
	return &Manager{cfg: cfg, out: out, log: log, clock: clock, states: states}
}

// Init drives every output off, establishing a known state.
func (m *Manager) Init() {
	m.StopAll()
	m.log.Info("actuators initialized, all outputs off")
}

// SetHeater switches a heater through the interlocks.
func (m *Manager) SetHeater(primary, on bool) {
	id := hardware.HeaterSecondary
	if primary {
		id = hardware.HeaterPrimary
	}
	if on && m.states[hardware.FanExhaust].on {
		m.log.Info("heater command rejected: exhaust fan active", "output", id)
		return
	}
	m.set(id, on, false)
}

// SetFan switches a fan. Turning the exhaust fan on forces both heaters off
// first; the heaters' dwell windows do not protect a state the interlock
// forbids.
func (m *Manager) SetFan(exhaust, on bool) {
	id := hardware.FanCirculation
	if exhaust {
		id = hardware.FanExhaust
	}
	if exhaust && on {
		if !m.dwellElapsed(id) {
			m.log.Info("fan command rejected: dwell time not met", "output", id)
			return
		}
		if m.states[hardware.HeaterPrimary].on || m.states[hardware.HeaterSecondary].on {
			m.log.Info("exhaust fan engaging: forcing heaters off")
			m.set(hardware.HeaterPrimary, false, true)
			m.set(hardware.HeaterSecondary, false, true)
		}
	}
	m.set(id, on, false)
}

// SetPump switches the irrigation pump. A turn-on request past the runtime
// ceiling becomes a turn-off: the pump never runs longer than the
// configured maximum continuously.
func (m *Manager) SetPump(on bool) {
	st := m.states[hardware.Pump]
	if on && st.on && m.clock().Sub(st.onSince) > m.cfg.MaxPumpRun() {
		m.log.Warn("pump runtime ceiling exceeded, forcing off",
			"run_time", m.clock().Sub(st.onSince))
		m.set(hardware.Pump, false, true)
		return
	}
	m.set(hardware.Pump, on, false)
}

// SetLight switches the grow lights. Lights carry no dwell restriction.
func (m *Manager) SetLight(on bool) {
	m.set(hardware.Light, on, true)
}

// HandleEmergency executes one protective action bundle. Bundles are
// deterministic: they fully specify the end state of the outputs they name
// and bypass dwell windows, since the bundle exists precisely because
// waiting is not acceptable. Internal consistency keeps the interlocks
// intact: no bundle ends with a heater and the exhaust fan both on.
func (m *Manager) HandleEmergency(kind EmergencyKind) {
	m.log.Warn("emergency protocol activated", "kind", kind)

	switch kind {
	case EmergencyLowTemperature:
		m.set(hardware.FanExhaust, false, true)
		m.set(hardware.HeaterPrimary, true, true)
		m.set(hardware.HeaterSecondary, true, true)
		m.set(hardware.FanCirculation, true, true)
	case EmergencyHighTemperature:
		m.set(hardware.HeaterPrimary, false, true)
		m.set(hardware.HeaterSecondary, false, true)
		m.set(hardware.FanExhaust, true, true)
		m.set(hardware.FanCirculation, true, true)
		m.set(hardware.Light, false, true)
	case EmergencySecurityBreach:
		m.set(hardware.Light, true, true)
	case EmergencyWaterLeak:
		m.set(hardware.Pump, false, true)
	case EmergencyPowerFailure:
		m.set(hardware.HeaterPrimary, false, true)
		m.set(hardware.HeaterSecondary, false, true)
		m.set(hardware.FanExhaust, false, true)
		m.set(hardware.Light, false, true)
		m.set(hardware.FanCirculation, true, true)
	}

	m.log.Info("emergency protocol complete", "kind", kind)
}

// HandleWarning applies a mild corrective adjustment for a non-critical
// anomaly, through the normal interlocked setters.
func (m *Manager) HandleWarning(kind anomaly.Kind) {
	m.log.Info("warning response", "anomaly", kind)
	switch kind {
	case anomaly.TempTooLow:
		m.SetHeater(true, true)
	case anomaly.TempTooHigh:
		m.SetFan(true, true)
		m.SetLight(false)
	case anomaly.HumidityTooLow:
		m.SetFan(true, false) // reduce ventilation
	case anomaly.HumidityTooHigh:
		m.SetFan(true, true)
		m.SetFan(false, true)
	}
	// No automated response for the remaining kinds.
}

// StopAll drives every output off unconditionally, bypassing dwell checks.
// Used on initialization and safe-mode entry only.
func (m *Manager) StopAll() {
	for _, id := range []hardware.OutputID{
		hardware.HeaterPrimary, hardware.HeaterSecondary,
		hardware.FanExhaust, hardware.FanCirculation,
		hardware.Pump, hardware.Light,
	} {
		m.set(id, false, true)
	}
	m.log.Info("all actuators stopped")
}

// IsOn reports the tracked state of one output.
func (m *Manager) IsOn(id hardware.OutputID) bool { return m.states[id].on }

// PumpRunTime is the continuous on-time of the pump, zero when off.
func (m *Manager) PumpRunTime() time.Duration {
	st := m.states[hardware.Pump]
	if !st.on {
		return 0
	}
	return m.clock().Sub(st.onSince)
}

// Status is the externally visible output state.
type Status struct {
	HeaterPrimary   bool `json:"heater_primary"`
	HeaterSecondary bool `json:"heater_secondary"`
	FanExhaust      bool `json:"fan_exhaust"`
	FanCirculation  bool `json:"fan_circulation"`
	Pump            bool `json:"pump"`
	Light           bool `json:"light"`
}

// Status snapshots every output.
func (m *Manager) Status() Status {
	return Status{
		HeaterPrimary:   m.states[hardware.HeaterPrimary].on,
		HeaterSecondary: m.states[hardware.HeaterSecondary].on,
		FanExhaust:      m.states[hardware.FanExhaust].on,
		FanCirculation:  m.states[hardware.FanCirculation].on,
		Pump:            m.states[hardware.Pump].on,
		Light:           m.states[hardware.Light].on,
	}
}

// set performs the transition, honoring the dwell window unless force.
func (m *Manager) set(id hardware.OutputID, on, force bool) {
	st := m.states[id]
	if st.on == on {
		return
	}
	if !force && !m.dwellElapsed(id) {
		m.log.Info("command rejected: dwell time not met", "output", id, "requested", on)
		return
	}
	if err := m.out.Set(id, on); err != nil {
		m.log.Error("output write failed", "output", id, "error", err)
		return
	}
	now := m.clock()
	st.on = on
	st.lastChange = now
	if on {
		st.onSince = now
	}
	m.log.Info("output switched", "output", id, "on", on)
}

func (m *Manager) dwellElapsed(id hardware.OutputID) bool {
	st := m.states[id]
	return st.lastChange.IsZero() || m.clock().Sub(st.lastChange) >= m.cfg.MinDwell()
}
