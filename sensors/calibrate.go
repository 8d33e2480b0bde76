package sensors

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrCalibrationAborted means the operator input ended before the
// procedure completed. The stored profile is untouched.
var ErrCalibrationAborted = errors.New("calibration aborted")

// PerformCalibration runs the interactive analog calibration: zero point,
// reference point, then reference-voltage capture. The new profile is
// persisted only when every step completes, so a half-finished run can
// never corrupt the stored profile. beat is invoked while waiting on the
// operator so the watchdog keeps seeing a live loop.
func (m *Manager) PerformCalibration(lines <-chan string, out io.Writer, beat func()) error {
	fmt.Fprintln(out, "=== ADC CALIBRATION ===")

	// Step 1: zero point
	fmt.Fprintln(out, "Step 1: connect the ADC input to GND, then press enter.")
	if _, err := waitLine(lines, beat); err != nil {
		return err
	}
	zeroRaw, err := m.sampleRaw(m.ch.AirQuality)
	if err != nil {
		return fmt.Errorf("zero-point sampling: %w", err)
	}
	offset := zeroRaw / float64(m.hw.ADC.MaxValue()) * m.cfg.VRefNominal
	fmt.Fprintf(out, "zero offset: %.4f V (raw %.1f)\n", offset, zeroRaw)

	// Step 2: reference point
	fmt.Fprintln(out, "Step 2: connect a known voltage reference and enter its value in volts (e.g. 2.5).")
	line, err := waitLine(lines, beat)
	if err != nil {
		return err
	}
	refVolts, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil || refVolts <= 0 {
		return fmt.Errorf("invalid reference voltage %q", line)
	}
	refRaw, err := m.sampleRaw(m.ch.AirQuality)
	if err != nil {
		return fmt.Errorf("reference sampling: %w", err)
	}
	measured := refRaw/float64(m.hw.ADC.MaxValue())*m.cfg.VRefNominal - offset
	if measured <= 0 {
		return fmt.Errorf("reference reads %.4f V after offset, cannot derive scale", measured)
	}
	scale := refVolts / measured
	fmt.Fprintf(out, "scale factor: %.4f (measured %.4f V, target %.4f V)\n", scale, measured, refVolts)

	// Step 3: reference voltage. The converter has no internal reference
	// readback, so the nominal rail value is recorded.
	vref := m.cfg.VRefNominal
	fmt.Fprintf(out, "vref: %.4f V\n", vref)

	profile := Profile{Offset: offset, Scale: scale, VRef: vref, TempCoeff: m.profile.TempCoeff}
	if m.store == nil {
		fmt.Fprintln(out, "warning: no profile store, calibration applies until restart")
	} else if err := m.store.SaveProfile(profile); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	m.profile = profile
	m.log.Info("calibration profile updated",
		"offset", profile.Offset, "scale", profile.Scale, "vref", profile.VRef)

	// Optional clean-air baseline for the gas sensor.
	fmt.Fprintln(out, "Recalibrate air-quality clean-air baseline? The sensor must have been in clean air for 24-48h. [y/N]")
	answer, err := waitLine(lines, beat)
	if err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(answer), "y") {
		if err := m.calibrateCleanAir(out); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "=== CALIBRATION COMPLETE ===")
	return nil
}

// calibrateCleanAir derives the gas sensor's baseline resistance from the
// current reading, assuming clean air. Stored in memory only: the baseline
// drifts with the element and is re-derived on demand.
func (m *Manager) calibrateCleanAir(out io.Writer) error {
	volts, err := m.readCalibratedADC(m.ch.AirQuality)
	if err != nil {
		return fmt.Errorf("clean-air sampling: %w", err)
	}
	sensorVolts := volts * (m.cfg.DividerR1Ohms + m.cfg.DividerR2Ohms) / m.cfg.DividerR2Ohms
	if sensorVolts <= 0.1 || sensorVolts >= 4.9 {
		return fmt.Errorf("clean-air reading %.3f V out of usable range", sensorVolts)
	}
	rs := (5.0 - sensorVolts) * m.cfg.LoadResistorOhms / sensorVolts
	m.r0 = rs / m.cfg.CleanAirRatio
	fmt.Fprintf(out, "clean-air baseline: R0 = %.1f ohm (Rs %.1f ohm)\n", m.r0, rs)
	m.log.Info("air-quality baseline recalibrated", "r0_ohms", m.r0)
	return nil
}

// sampleRaw averages the configured sample count without calibration.
func (m *Manager) sampleRaw(channel int) (float64, error) {
	sum := 0
	for i := 0; i < m.cfg.ADCSamples; i++ {
		raw, err := m.hw.ADC.ReadRaw(channel)
		if err != nil {
			return 0, err
		}
		sum += raw
	}
	return float64(sum) / float64(m.cfg.ADCSamples), nil
}

// waitLine blocks for operator input, signaling liveness once a second so
// the watchdog does not mistake the wait for a stall.
func waitLine(lines <-chan string, beat func()) (string, error) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return "", ErrCalibrationAborted
			}
			return line, nil
		case <-tick.C:
			if beat != nil {
				beat()
			}
		}
	}
}
