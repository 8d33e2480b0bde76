package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"greenos/controller/actuators"
	"greenos/controller/anomaly"
	"greenos/controller/cloud"
	"greenos/controller/config"
	"greenos/controller/hardware"
	"greenos/controller/sensors"
	"greenos/controller/watchdog"
)

// loopTick is the cadence of the cooperative main loop. Interval work
// (polling, anomaly checks, sync) is scheduled on top of it by elapsed-time
// comparison, so a slow iteration delays work rather than stacking it.
const loopTick = 200 * time.Millisecond

const (
	sensorInitRetries = 3
	pruneInterval     = time.Hour
)

// Recorder is the slice of the local store the loop needs.
type Recorder interface {
	InsertReading(sensors.SensorSnapshot) error
	PruneOlderThan(retention time.Duration, now time.Time) error
}

// Status is a point-in-time view of the controller for the status site.
type Status struct {
	State     string                 `json:"state"`
	Snapshot  sensors.SensorSnapshot `json:"snapshot"`
	Health    sensors.HealthReport   `json:"health"`
	Actuators actuators.Status       `json:"actuators"`
	Connected bool                   `json:"cloud_connected"`
	Buffered  int                    `json:"buffered_records"`
}

// Controller owns the operating-mode state machine and sequences every
// subsystem from a single goroutine. Sensors, actuators and the anomaly
// detector are never touched from anywhere else.
type Controller struct {
	cfg     config.Config
	sensors *sensors.Manager
	acts    *actuators.Manager
	det     *anomaly.Detector
	cloud   *cloud.Manager
	rec     Recorder
	dog     *watchdog.Supervisor
	console *Console
	out     io.Writer
	log     *slog.Logger
	clock   func() time.Time
	restart func()

	state              State
	sensorInitAttempts int
	safeModeEntered    time.Time
	pendingEmergency   actuators.EmergencyKind
	pendingEvent       anomaly.Event

	lastSnap  sensors.SensorSnapshot
	wasOnBatt bool
	lastPoll  time.Time
	lastCheck time.Time
	lastSync  time.Time
	lastPrune time.Time

	mu     sync.RWMutex
	status Status
}

// Deps bundles the collaborators; rec may be nil when no local store is
// configured.
type Deps struct {
	Sensors *sensors.Manager
	Acts    *actuators.Manager
	Det     *anomaly.Detector
	Cloud   *cloud.Manager
	Rec     Recorder
	Dog     *watchdog.Supervisor
	Console *Console
	Out     io.Writer
	Log     *slog.Logger
	Clock   func() time.Time
	Restart func()
}

func New(cfg config.Config, d Deps) *Controller {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
	return &Controller{
		cfg:     cfg,
		sensors: d.Sensors,
		acts:    d.Acts,
		det:     d.Det,
		cloud:   d.Cloud,
		rec:     d.Rec,
		dog:     d.Dog,
		console: d.Console,
		out:     d.Out,
		log:     d.Log,
		clock:   d.Clock,
		restart: d.Restart,
		state:   Boot,
	}
}

// State returns the current operating mode. Single-goroutine callers only;
// the site uses Status instead.
func (c *Controller) State() State { return c.state }

// Status is safe to call from other goroutines.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run drives the controller until ctx is cancelled. Every iteration feeds
// the watchdog before doing work, so a wedged subsystem call starves the
// heartbeat and triggers a restart.
func (c *Controller) Run(ctx context.Context) {
	c.dog.Start()
	defer c.dog.Stop()

	lines := c.console.Lines()
	tick := time.NewTicker(loopTick)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("shutting down", "state", c.state.String())
			c.acts.StopAll()
			return
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			c.handleCommand(line)
		case payload := <-c.cloud.ConfigUpdates():
			c.applyConfig(payload)
		case <-tick.C:
			c.dog.Heartbeat()
			c.step()
			c.updateStatus()
		}
	}
}

func (c *Controller) step() {
	switch c.state {
	case Boot:
		c.log.Info("controller starting", "device_id", c.cfg.DeviceID)
		c.acts.Init()
		c.transition(EventBootComplete)
	case SensorInit:
		c.stepSensorInit()
	case NetworkConnect:
		if err := c.cloud.Connect(); err != nil {
			c.log.Warn("starting offline", "error", err)
		}
		c.transition(EventNetworkDone)
	case CloudAuth:
		if c.cloud.IsConnected() {
			c.cloud.SubscribeConfig()
		}
		c.transition(EventAuthDone)
	case NormalOperation:
		c.stepNormal()
	case Emergency:
		c.stepEmergency()
	case SafeMode:
		c.stepSafeMode()
	case CalibrationMode:
		c.stepCalibration()
	}
}

func (c *Controller) stepSensorInit() {
	err := c.sensors.Init()
	if err == nil {
		c.transition(EventSensorsReady)
		return
	}
	c.sensorInitAttempts++
	c.log.Error("sensor init failed",
		"attempt", c.sensorInitAttempts, "max", sensorInitRetries, "error", err)
	if c.sensorInitAttempts >= sensorInitRetries {
		c.transition(EventSensorsFailed)
	}
}

// stepNormal runs the strict cycle: read, classify, respond, sync. Each
// stage fires on its own interval but never out of order within one pass.
func (c *Controller) stepNormal() {
	now := c.clock()

	if now.Sub(c.lastPoll) >= c.cfg.Timing.SensorPoll() {
		c.lastPoll = now
		c.lastSnap = c.sensors.ReadAll()
		c.recordReading(now)

		if c.lastSnap.OnBattery && !c.wasOnBatt {
			c.pendingEmergency = actuators.EmergencyPowerFailure
			c.pendingEvent = anomaly.Event{
				Severity: anomaly.Critical,
				Detail:   "mains power lost, running on battery",
				At:       now,
			}
			c.wasOnBatt = true
			c.transition(EventCriticalAnomaly)
			return
		}
		c.wasOnBatt = c.lastSnap.OnBattery
	}

	if now.Sub(c.lastCheck) >= c.cfg.Timing.AnomalyCheck() {
		c.lastCheck = now
		if c.sensors.CriticalInvalid() {
			c.transition(EventSensorsDegraded)
			return
		}
		if ev, found := c.det.Detect(c.lastSnap, c.sensors.HealthReport()); found {
			if ev.Severity == anomaly.Critical {
				c.pendingEmergency = emergencyFor(ev.Kind)
				c.pendingEvent = ev
				c.transition(EventCriticalAnomaly)
				return
			}
			c.log.Warn("anomaly detected", "kind", ev.Kind.String(), "detail", ev.Detail)
			c.acts.HandleWarning(ev.Kind)
			c.cloud.SendAlert(ev)
		}
	}

	if now.Sub(c.lastSync) >= c.cfg.Timing.CloudSync() {
		c.lastSync = now
		c.syncCloud()
	}
}

func (c *Controller) stepEmergency() {
	c.log.Error("emergency response", "kind", c.pendingEmergency.String(),
		"detail", c.pendingEvent.Detail)
	// Act first, report after. The alert can wait; the crop cannot.
	c.acts.HandleEmergency(c.pendingEmergency)
	c.cloud.SendAlert(c.pendingEvent)
	c.transition(EventEmergencyHandled)
}

// stepSafeMode keeps life support running: heat when below the survivable
// minimum, release once back inside the optimal band. Everything else stays
// off until sensors recover. The air channel that sent us here is probed
// directly each poll; only when even the probe fails does the decision fall
// back to the last snapshot.
func (c *Controller) stepSafeMode() {
	now := c.clock()
	if now.Sub(c.lastPoll) >= c.cfg.Timing.SensorPoll() {
		c.lastPoll = now
		c.lastSnap = c.sensors.ReadAll()
		temp, ok := c.sensors.ProbeAirTemp()
		if !ok {
			temp = c.lastSnap.AirTemp
		}
		switch {
		case temp < c.cfg.Thresholds.TempMin:
			c.acts.SetHeater(true, true)
		case temp >= c.cfg.Thresholds.TempOptimalMin:
			c.acts.SetHeater(true, false)
		}
	}
	if now.Sub(c.safeModeEntered) >= c.cfg.Timing.SafeModeDwell() {
		c.log.Info("safe mode dwell elapsed, retrying sensors")
		c.transition(EventSafeModeTimeout)
	}
}

func (c *Controller) stepCalibration() {
	err := c.sensors.PerformCalibration(c.console.Lines(), c.out, c.dog.Heartbeat)
	if err != nil {
		c.log.Warn("calibration not applied", "error", err)
	} else {
		c.log.Info("calibration saved")
	}
	c.transition(EventCalibrationDone)
}

func (c *Controller) recordReading(now time.Time) {
	if c.rec == nil {
		return
	}
	if err := c.rec.InsertReading(c.lastSnap); err != nil {
		c.log.Warn("local store write failed", "error", err)
	}
	if now.Sub(c.lastPrune) >= pruneInterval {
		c.lastPrune = now
		if err := c.rec.PruneOlderThan(c.cfg.Store.Retention(), now); err != nil {
			c.log.Warn("local store prune failed", "error", err)
		}
	}
}

func (c *Controller) syncCloud() {
	if !c.cloud.IsConnected() {
		if err := c.cloud.Connect(); err == nil && c.cloud.IsConnected() {
			c.cloud.SubscribeConfig()
		}
	}
	if c.cloud.IsConnected() {
		if n := c.cloud.Flush(); n > 0 {
			c.log.Info("backfilled buffered records", "count", n)
		}
	}
	c.cloud.Publish(c.lastSnap)
	c.cloud.PublishStatus(c.Status())
}

// transition applies the FSM table and the entry actions that go with the
// target state. Unknown events are logged and ignored.
func (c *Controller) transition(ev Event) {
	next, ok := Next(c.state, ev)
	if !ok {
		c.log.Warn("no transition", "state", c.state.String(), "event", ev.String())
		return
	}
	c.log.Info("state transition",
		"from", c.state.String(), "to", next.String(), "event", ev.String())
	c.state = next

	switch next {
	case SensorInit:
		c.sensorInitAttempts = 0
	case SafeMode:
		c.safeModeEntered = c.clock()
		c.acts.StopAll()
	}
}

func emergencyFor(kind anomaly.Kind) actuators.EmergencyKind {
	if kind == anomaly.TempTooHigh {
		return actuators.EmergencyHighTemperature
	}
	return actuators.EmergencyLowTemperature
}

func (c *Controller) handleCommand(line string) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s":
		c.printSnapshot()
	case "h":
		c.printHealth()
	case "c":
		if c.state == NormalOperation {
			c.transition(EventCalibrationRequested)
		} else {
			fmt.Fprintf(c.out, "calibration only available in %s (currently %s)\n",
				NormalOperation, c.state)
		}
	case "r":
		c.log.Info("restart requested from console")
		c.restart()
	case "":
	default:
		fmt.Fprintln(c.out, "commands: s=snapshot  h=health  c=calibrate  r=restart")
	}
}

func (c *Controller) printSnapshot() {
	s := c.sensors.Snapshot()
	fmt.Fprintf(c.out, "air: %.1f°C %.1f%%RH CO2 %.0fppm AQ %.0fppm\n",
		s.AirTemp, s.AirHumidity, s.CO2, s.AirQualityPPM)
	fmt.Fprintf(c.out, "substrate: %.1f°C moisture %.1f%% pH %.2f EC %.2f N %.0f P %.0f K %.0f\n",
		s.SubstrateTemp, s.Moisture, s.PH, s.EC, s.Nitrogen, s.Phosphorus, s.Potassium)
	fmt.Fprintf(c.out, "motion=%v battery=%v noise=%.2fV\n", s.Motion, s.OnBattery, s.NoiseLevel)
}

func (c *Controller) printHealth() {
	h := c.sensors.HealthReport()
	for _, ch := range []sensors.ChannelHealth{h.Air, h.AirQuality, h.Soil} {
		fmt.Fprintf(c.out, "%-12s valid=%v consecutive_errors=%d error_rate=%.1f%%\n",
			ch.Name, ch.Valid, ch.ConsecutiveErrors, ch.ErrorRate)
	}
	fmt.Fprintf(c.out, "warmed_up=%v state=%s buffered=%d\n",
		h.WarmedUp, c.state, c.cloud.Buffered())
}

// applyConfig handles a push from the backend: a threshold update, an
// actuator override, or both. Overrides go through the interlocked
// setters, so the dwell and heater/exhaust rules still govern them, and
// they are only honored while the controller trusts its sensors.
func (c *Controller) applyConfig(payload []byte) {
	var update struct {
		Thresholds *config.Thresholds `json:"thresholds"`
		Override   *struct {
			Output string `json:"output"`
			On     bool   `json:"on"`
		} `json:"override"`
	}
	if err := json.Unmarshal(payload, &update); err != nil {
		c.log.Warn("rejecting malformed config push", "error", err)
		return
	}
	if update.Thresholds == nil && update.Override == nil {
		c.log.Warn("config push carried nothing applicable, ignoring")
		return
	}
	if update.Thresholds != nil {
		c.cfg.Thresholds = *update.Thresholds
		c.det.SetThresholds(c.cfg.Thresholds)
		c.log.Info("applied threshold update",
			"temp_min", c.cfg.Thresholds.TempMin, "temp_max", c.cfg.Thresholds.TempMax)
	}
	if update.Override != nil {
		c.applyOverride(update.Override.Output, update.Override.On)
	}
}

func (c *Controller) applyOverride(output string, on bool) {
	if c.state != NormalOperation {
		c.log.Warn("ignoring actuator override outside normal operation",
			"output", output, "state", c.state)
		return
	}
	switch hardware.OutputID(output) {
	case hardware.HeaterPrimary:
		c.acts.SetHeater(true, on)
	case hardware.HeaterSecondary:
		c.acts.SetHeater(false, on)
	case hardware.FanExhaust:
		c.acts.SetFan(true, on)
	case hardware.FanCirculation:
		c.acts.SetFan(false, on)
	case hardware.Pump:
		c.acts.SetPump(on)
	case hardware.Light:
		c.acts.SetLight(on)
	default:
		c.log.Warn("ignoring override for unknown output", "output", output)
		return
	}
	c.log.Info("applied actuator override", "output", output, "on", on)
}

func (c *Controller) updateStatus() {
	st := Status{
		State:     c.state.String(),
		Snapshot:  c.sensors.Snapshot(),
		Health:    c.sensors.HealthReport(),
		Actuators: c.acts.Status(),
		Connected: c.cloud.IsConnected(),
		Buffered:  c.cloud.Buffered(),
	}
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}
