package sensors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenos/controller/config"
	"greenos/controller/hardware"
	"greenos/controller/logging"
)

type memStore struct {
	p       Profile
	saved   bool
	loadErr error
}

func (s *memStore) SaveProfile(p Profile) error { s.p, s.saved = p, true; return nil }

func (s *memStore) LoadProfile() (Profile, error) {
	if s.loadErr != nil {
		return Profile{}, s.loadErr
	}
	if !s.saved {
		return Profile{}, ErrNoProfile
	}
	return s.p, nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testSensorConfig() config.Sensors {
	cfg := config.Default().Sensors
	cfg.WarmupSeconds = 0
	cfg.ADCSamples = 1
	return cfg
}

func newTestManager(t *testing.T, cfg config.Sensors) (*Manager, *hardware.Fake, *testClock) {
	t.Helper()
	fake := hardware.NewFake()
	fake.SetAir(hardware.AirReading{CO2: 487, Temperature: 22.5, Humidity: 55})
	fake.SetSoil([]uint16{350, 215, 1500, 650, 40, 28, 110})
	fake.SetRaw(0, 310)
	fake.SetRaw(1, 100)
	clock := &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := New(cfg, Channels{AirQuality: 0, Noise: 1}, fake.Backend(), &memStore{}, logging.Discard(), clock.Now)
	return m, fake, clock
}

func TestSafeDefaultsBeforeFirstRead(t *testing.T) {
	m, _, _ := newTestManager(t, testSensorConfig())
	snap := m.Snapshot()

	assert.Equal(t, 20.0, snap.AirTemp)
	assert.Equal(t, 50.0, snap.AirHumidity)
	assert.Equal(t, 400.0, snap.CO2)
	assert.Equal(t, 6.5, snap.PH)
	assert.Equal(t, 1.5, snap.EC)
	assert.Equal(t, 30.0, snap.Moisture)
}

func TestReadAllPopulatesSnapshot(t *testing.T) {
	m, fake, _ := newTestManager(t, testSensorConfig())
	require.NoError(t, m.Init())
	fake.SetInput(hardware.Motion, true)

	snap := m.ReadAll()

	assert.Equal(t, 487.0, snap.CO2)
	assert.Equal(t, 22.5, snap.AirTemp)
	assert.Equal(t, 55.0, snap.AirHumidity)
	assert.Equal(t, 35.0, snap.Moisture)
	assert.Equal(t, 21.5, snap.SubstrateTemp)
	assert.Equal(t, 1.5, snap.EC)
	assert.Equal(t, 6.5, snap.PH)
	assert.Equal(t, 40.0, snap.Nitrogen)
	assert.True(t, snap.Motion)
	assert.False(t, snap.OnBattery)
}

func TestInitFailsWithoutAirSensor(t *testing.T) {
	m, fake, _ := newTestManager(t, testSensorConfig())
	fake.AirErr = errors.New("i2c timeout")

	assert.Error(t, m.Init())
	assert.True(t, m.CriticalInvalid())
}

func TestMissingSoilBusDegradesOnly(t *testing.T) {
	cfg := testSensorConfig()
	fake := hardware.NewFake()
	fake.SetAir(hardware.AirReading{CO2: 487, Temperature: 22.5, Humidity: 55})
	backend := fake.Backend()
	backend.Soil = nil
	m := New(cfg, Channels{AirQuality: 0, Noise: 1}, backend, &memStore{}, logging.Discard(), nil)

	require.NoError(t, m.Init())
	assert.False(t, m.HealthReport().Soil.Valid)
	assert.True(t, m.HealthReport().Air.Valid)
}

func TestProbeAirTempIgnoresInvalidFlag(t *testing.T) {
	cfg := testSensorConfig()
	m, fake, _ := newTestManager(t, cfg)
	require.NoError(t, m.Init())

	// Flag the channel invalid, then let the hardware answer again.
	fake.AirErr = errors.New("i2c timeout")
	for i := 0; i <= cfg.MaxConsecutiveErrors; i++ {
		m.ReadAll()
	}
	require.True(t, m.CriticalInvalid())
	fake.AirErr = nil

	temp, ok := m.ProbeAirTemp()
	assert.True(t, ok)
	assert.Equal(t, 22.5, temp)

	// Hard failure and nonsense readings still report no answer.
	fake.AirErr = errors.New("i2c timeout")
	_, ok = m.ProbeAirTemp()
	assert.False(t, ok)

	fake.AirErr = nil
	fake.SetAir(hardware.AirReading{CO2: 487, Temperature: 90.0, Humidity: 55})
	_, ok = m.ProbeAirTemp()
	assert.False(t, ok)
}

func TestFailureBeforeFirstGoodReadKeepsSafeDefaults(t *testing.T) {
	m, fake, _ := newTestManager(t, testSensorConfig())
	require.NoError(t, m.Init())

	// No validated reading exists yet, so a failing channel must leave
	// the boot-time stand-ins untouched rather than report zeros.
	fake.AirErr = errors.New("i2c timeout")
	snap := m.ReadAll()

	assert.Equal(t, 400.0, snap.CO2)
	assert.Equal(t, 20.0, snap.AirTemp)
	assert.Equal(t, 50.0, snap.AirHumidity)
}

func TestConsecutiveFailuresFlagChannelInvalid(t *testing.T) {
	cfg := testSensorConfig()
	m, fake, _ := newTestManager(t, cfg)
	require.NoError(t, m.Init())
	m.ReadAll()
	lastGood := m.Snapshot().CO2

	fake.AirErr = errors.New("i2c timeout")
	for i := 0; i < cfg.MaxConsecutiveErrors; i++ {
		snap := m.ReadAll()
		assert.Equal(t, lastGood, snap.CO2, "fallback to last good value")
		assert.False(t, m.CriticalInvalid(), "still tolerated at failure %d", i+1)
	}

	// One past the tolerance flips the channel.
	m.ReadAll()
	assert.True(t, m.CriticalInvalid())

	// A transient recovery does not clear the flag; only reinit does.
	fake.AirErr = nil
	m.ReadAll()
	assert.True(t, m.CriticalInvalid())

	require.NoError(t, m.Reinit())
	m.ReadAll()
	assert.False(t, m.CriticalInvalid())
}

func TestSuccessResetsConsecutiveErrors(t *testing.T) {
	cfg := testSensorConfig()
	m, fake, _ := newTestManager(t, cfg)
	require.NoError(t, m.Init())

	fake.AirErr = errors.New("i2c timeout")
	for i := 0; i < cfg.MaxConsecutiveErrors; i++ {
		m.ReadAll()
	}
	fake.AirErr = nil
	m.ReadAll() // resets the consecutive count

	fake.AirErr = errors.New("i2c timeout")
	for i := 0; i < cfg.MaxConsecutiveErrors; i++ {
		m.ReadAll()
	}
	assert.False(t, m.CriticalInvalid(), "count restarted after the good read")
}

func TestOutOfRangeReadingTreatedAsFailure(t *testing.T) {
	m, fake, _ := newTestManager(t, testSensorConfig())
	require.NoError(t, m.Init())
	m.ReadAll()

	fake.SetAir(hardware.AirReading{CO2: 250, Temperature: 22.5, Humidity: 55}) // below sanity range
	snap := m.ReadAll()

	assert.Equal(t, 487.0, snap.CO2, "out-of-range reading discarded")
	assert.Equal(t, 1, m.HealthReport().Air.ConsecutiveErrors)
}

func TestOutOfRangeSoilRegistersDiscarded(t *testing.T) {
	m, fake, _ := newTestManager(t, testSensorConfig())
	require.NoError(t, m.Init())
	m.ReadAll()

	fake.SetSoil([]uint16{350, 215, 1500, 1200, 40, 28, 110}) // pH 12.0
	snap := m.ReadAll()

	assert.Equal(t, 6.5, snap.PH, "previous value stands")
	assert.Equal(t, 1, m.HealthReport().Soil.ConsecutiveErrors)
}

func TestAirQualityWarmupGate(t *testing.T) {
	cfg := testSensorConfig()
	cfg.WarmupSeconds = 3600
	m, _, clock := newTestManager(t, cfg)
	require.NoError(t, m.Init())

	m.ReadAll()
	assert.False(t, m.HealthReport().WarmedUp)
	assert.Zero(t, m.Snapshot().AirQualityPPM, "no reading during warm-up")

	clock.Advance(time.Hour + time.Second)
	m.ReadAll()
	assert.True(t, m.HealthReport().WarmedUp)
	assert.NotZero(t, m.Snapshot().AirQualityPPM)
}

func TestAirQualityPPMCurve(t *testing.T) {
	m, _, _ := newTestManager(t, testSensorConfig())

	// 1.0 V at the divider is 1.5 V at the sensor:
	// Rs = (5 - 1.5) * 10k / 1.5 = 23333 ohm, ratio Rs/R0 = 2.333.
	ppm, ok := m.airQualityPPM(1.0)
	require.True(t, ok)
	assert.InDelta(t, 11.16, ppm, 0.05)

	// Rail-adjacent voltages mean a wiring fault, not a reading.
	_, ok = m.airQualityPPM(0.01)
	assert.False(t, ok)
	_, ok = m.airQualityPPM(3.3)
	assert.False(t, ok)
}
