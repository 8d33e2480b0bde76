package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenos/controller/config"
	"greenos/controller/sensors"
)

func healthyReport() sensors.HealthReport {
	return sensors.HealthReport{
		Air:        sensors.ChannelHealth{Name: "air", Valid: true},
		AirQuality: sensors.ChannelHealth{Name: "air_quality", Valid: true},
		Soil:       sensors.ChannelHealth{Name: "soil", Valid: true},
		WarmedUp:   true,
	}
}

func normalSnapshot() sensors.SensorSnapshot {
	return sensors.SensorSnapshot{
		AirTemp:     21.0,
		AirHumidity: 55.0,
		CO2:         600.0,
		NoiseLevel:  0.5,
	}
}

func atHour(h int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 10, h, 30, 0, 0, time.UTC)
	}
}

func TestNoAnomalyOnNormalSnapshot(t *testing.T) {
	d := New(config.Default().Thresholds, atHour(12))
	_, found := d.Detect(normalSnapshot(), healthyReport())
	assert.False(t, found)
}

func TestTemperatureTiers(t *testing.T) {
	cases := []struct {
		name     string
		temp     float64
		kind     Kind
		severity Severity
	}{
		{"below survivable", 8.0, TempTooLow, Critical},
		{"above survivable", 36.5, TempTooHigh, Critical},
		{"below optimal", 15.0, TempTooLow, Warning},
		{"above optimal", 26.0, TempTooHigh, Warning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := New(config.Default().Thresholds, atHour(12))
			snap := normalSnapshot()
			snap.AirTemp = tc.temp

			ev, found := d.Detect(snap, healthyReport())
			require.True(t, found)
			assert.Equal(t, tc.kind, ev.Kind)
			assert.Equal(t, tc.severity, ev.Severity)
			assert.Equal(t, tc.temp, ev.Value)
		})
	}
}

func TestCriticalTemperatureMasksLowerSeverityConditions(t *testing.T) {
	d := New(config.Default().Thresholds, atHour(23))
	snap := normalSnapshot()
	snap.AirTemp = 5.0
	snap.AirHumidity = 95.0 // would warn on its own
	snap.Motion = true      // off hours, would warn on its own

	ev, found := d.Detect(snap, healthyReport())
	require.True(t, found)
	assert.Equal(t, TempTooLow, ev.Kind)
	assert.Equal(t, Critical, ev.Severity)
}

func TestMotionOffHoursBoundaries(t *testing.T) {
	cases := []struct {
		hour  int
		alarm bool
	}{
		{21, false},
		{22, true}, // window opens at 22:00
		{2, true},
		{5, true},
		{6, false}, // window closes at 06:00
		{12, false},
	}
	for _, tc := range cases {
		d := New(config.Default().Thresholds, atHour(tc.hour))
		snap := normalSnapshot()
		snap.Motion = true

		ev, found := d.Detect(snap, healthyReport())
		if tc.alarm {
			require.True(t, found, "hour %d", tc.hour)
			assert.Equal(t, MotionOffHours, ev.Kind)
		} else {
			assert.False(t, found, "hour %d", tc.hour)
		}
	}
}

func TestHumidityBounds(t *testing.T) {
	d := New(config.Default().Thresholds, atHour(12))

	snap := normalSnapshot()
	snap.AirHumidity = 30.0
	ev, found := d.Detect(snap, healthyReport())
	require.True(t, found)
	assert.Equal(t, HumidityTooLow, ev.Kind)

	snap.AirHumidity = 85.0
	ev, found = d.Detect(snap, healthyReport())
	require.True(t, found)
	assert.Equal(t, HumidityTooHigh, ev.Kind)
	assert.Equal(t, Warning, ev.Severity)
}

func TestLoudNoise(t *testing.T) {
	d := New(config.Default().Thresholds, atHour(12))
	snap := normalSnapshot()
	snap.NoiseLevel = 3.0

	ev, found := d.Detect(snap, healthyReport())
	require.True(t, found)
	assert.Equal(t, LoudNoise, ev.Kind)
}

func TestRapidTemperatureChange(t *testing.T) {
	d := New(config.Default().Thresholds, atHour(12))

	snap := normalSnapshot()
	snap.AirTemp = 24.0 // still optimal
	_, found := d.Detect(snap, healthyReport())
	require.False(t, found, "first evaluation has no previous sample")

	// Six degrees in one interval, without leaving the optimal band.
	snap.AirTemp = 18.5
	ev, found := d.Detect(snap, healthyReport())
	require.True(t, found)
	assert.Equal(t, RapidTempChange, ev.Kind)
	assert.InDelta(t, -5.5, ev.Value, 1e-9)
}

func TestSensorMalfunctionFromHealth(t *testing.T) {
	d := New(config.Default().Thresholds, atHour(12))
	health := healthyReport()
	health.Soil.Valid = false

	ev, found := d.Detect(normalSnapshot(), health)
	require.True(t, found)
	assert.Equal(t, SensorMalfunction, ev.Kind)
	assert.Equal(t, Warning, ev.Severity)
	assert.Contains(t, ev.Detail, "soil")
}

func TestSetThresholdsTakesEffect(t *testing.T) {
	d := New(config.Default().Thresholds, atHour(12))
	snap := normalSnapshot() // 21.0 °C, normal by default

	_, found := d.Detect(snap, healthyReport())
	require.False(t, found)

	tight := config.Default().Thresholds
	tight.TempOptimalMax = 20.0
	d.SetThresholds(tight)

	ev, found := d.Detect(snap, healthyReport())
	require.True(t, found)
	assert.Equal(t, TempTooHigh, ev.Kind)
	assert.Equal(t, Warning, ev.Severity)
}
