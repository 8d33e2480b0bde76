package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 10.0, cfg.Thresholds.TempMin)
	assert.Equal(t, 35.0, cfg.Thresholds.TempMax)
	assert.Equal(t, 18.0, cfg.Thresholds.TempOptimalMin)
	assert.Equal(t, 24.0, cfg.Thresholds.TempOptimalMax)

	assert.Equal(t, 5*time.Second, cfg.Timing.SensorPoll())
	assert.Equal(t, 10*time.Second, cfg.Timing.AnomalyCheck())
	assert.Equal(t, time.Minute, cfg.Timing.CloudSync())
	assert.Equal(t, 8*time.Second, cfg.Timing.WatchdogTimeout())

	assert.Equal(t, time.Minute, cfg.Actuators.MinDwell())
	assert.Equal(t, 10*time.Minute, cfg.Actuators.MaxPumpRun())

	assert.Equal(t, 5, cfg.Sensors.MaxConsecutiveErrors)
	assert.Equal(t, 10, cfg.Sensors.ADCSamples)
	assert.Equal(t, 24*time.Hour, cfg.Sensors.Warmup())

	assert.Equal(t, 100, cfg.MQTT.BufferCapacity)
	assert.Equal(t, 48*time.Hour, cfg.Store.Retention())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device_id: tunnel-7
thresholds:
  temp_max_c: 32.5
timing:
  sensor_poll_seconds: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tunnel-7", cfg.DeviceID)
	assert.Equal(t, 32.5, cfg.Thresholds.TempMax)
	assert.Equal(t, 2*time.Second, cfg.Timing.SensorPoll())
	// Untouched fields keep their defaults.
	assert.Equal(t, 10.0, cfg.Thresholds.TempMin)
	assert.Equal(t, time.Minute, cfg.Timing.CloudSync())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
