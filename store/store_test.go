package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenos/controller/logging"
	"greenos/controller/sensors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "controller.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapAt(ts time.Time, temp float64) sensors.SensorSnapshot {
	return sensors.SensorSnapshot{
		Timestamp:   ts,
		AirTemp:     temp,
		AirHumidity: 55,
		CO2:         487,
		Moisture:    35,
		PH:          6.5,
		EC:          1.5,
	}
}

func TestReadingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertReading(snapAt(base.Add(time.Duration(i)*time.Minute), 20+float64(i))))
	}

	readings, err := s.Readings()
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, 20.0, readings[0].AirTemp)
	assert.Equal(t, 22.0, readings[2].AirTemp)
	assert.Equal(t, 6.5, readings[1].PH)
}

func TestPruneOlderThan(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertReading(snapAt(now.Add(-72*time.Hour), 19)))
	require.NoError(t, s.InsertReading(snapAt(now.Add(-time.Hour), 21)))

	require.NoError(t, s.PruneOlderThan(48*time.Hour, now))

	readings, err := s.Readings()
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 21.0, readings[0].AirTemp)
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)
	p := sensors.Profile{Offset: 0.012, Scale: 1.004, VRef: 3.297, TempCoeff: 0.0002}

	require.NoError(t, s.SaveProfile(p))
	got, err := s.LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, p, got)

	// Saving again replaces, never accumulates.
	p.Scale = 1.01
	require.NoError(t, s.SaveProfile(p))
	got, err = s.LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, 1.01, got.Scale)
}

func TestLoadProfileEmpty(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadProfile()
	assert.ErrorIs(t, err, sensors.ErrNoProfile)
}

func TestLoadProfileChecksumMismatch(t *testing.T) {
	s := openTestStore(t)
	p := sensors.Profile{Offset: 0.012, Scale: 1.004, VRef: 3.297, TempCoeff: 0.0002}
	require.NoError(t, s.SaveProfile(p))

	// Corrupt one field behind the store's back.
	_, err := s.db.Exec(`UPDATE calibration SET scale = 1.5 WHERE id = 1`)
	require.NoError(t, err)

	_, err = s.LoadProfile()
	assert.ErrorIs(t, err, sensors.ErrProfileChecksum)
}

func TestCorruptProfileYieldsDefaultCalibration(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveProfile(sensors.Profile{Offset: 0.5, Scale: 2, VRef: 3.3}))
	_, err := s.db.Exec(`UPDATE calibration SET offset = 0.9 WHERE id = 1`)
	require.NoError(t, err)

	p := sensors.LoadProfileOrDefault(s, 3.3, logging.Discard())
	assert.Equal(t, sensors.DefaultProfile(3.3), p)
}
