// Package config loads the device configuration file.
//
// Defaults mirror the values the controller shipped with; a deployment
// overrides only what differs (pins, broker address, relay polarity). A
// subset of the thresholds can additionally be updated at runtime over the
// MQTT config topic.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full device configuration.
type Config struct {
	DeviceID  string `yaml:"device_id"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Thresholds Thresholds `yaml:"thresholds"`
	Timing     Timing     `yaml:"timing"`
	Sensors    Sensors    `yaml:"sensors"`
	Actuators  Actuators  `yaml:"actuators"`
	MQTT       MQTT       `yaml:"mqtt"`
	Store      Store      `yaml:"store"`
	Site       Site       `yaml:"site"`
	Hardware   Hardware   `yaml:"hardware"`
}

// Thresholds are the environmental limits. The min/max pairs are the
// survivable bounds that trigger the emergency path; the optimal pairs
// trigger warnings only.
// The json tags mirror the yaml names so backend config pushes over MQTT
// use the same field names as the on-disk file.
type Thresholds struct {
	TempMin        float64 `yaml:"temp_min_c" json:"temp_min_c"`
	TempMax        float64 `yaml:"temp_max_c" json:"temp_max_c"`
	TempOptimalMin float64 `yaml:"temp_optimal_min_c" json:"temp_optimal_min_c"`
	TempOptimalMax float64 `yaml:"temp_optimal_max_c" json:"temp_optimal_max_c"`
	HumidityMin    float64 `yaml:"humidity_min_pct" json:"humidity_min_pct"`
	HumidityMax    float64 `yaml:"humidity_max_pct" json:"humidity_max_pct"`
	MoistureMin    float64 `yaml:"moisture_min_pct" json:"moisture_min_pct"`
	MoistureMax    float64 `yaml:"moisture_max_pct" json:"moisture_max_pct"`
	CO2Min         float64 `yaml:"co2_min_ppm" json:"co2_min_ppm"`
	CO2Max         float64 `yaml:"co2_max_ppm" json:"co2_max_ppm"`
	NoiseVolts     float64 `yaml:"noise_volts" json:"noise_volts"`
	RapidTempDelta float64 `yaml:"rapid_temp_delta_c" json:"rapid_temp_delta_c"`
}

// Timing holds the loop cadence. Values are seconds, following the config
// convention of units in the field name.
type Timing struct {
	SensorPollSeconds      int `yaml:"sensor_poll_seconds"`
	AnomalyCheckSeconds    int `yaml:"anomaly_check_seconds"`
	CloudSyncSeconds       int `yaml:"cloud_sync_seconds"`
	SafeModeDwellSeconds   int `yaml:"safe_mode_dwell_seconds"`
	WatchdogTimeoutSeconds int `yaml:"watchdog_timeout_seconds"`
}

func (t Timing) SensorPoll() time.Duration { return time.Duration(t.SensorPollSeconds) * time.Second }
func (t Timing) AnomalyCheck() time.Duration {
	return time.Duration(t.AnomalyCheckSeconds) * time.Second
}
func (t Timing) CloudSync() time.Duration { return time.Duration(t.CloudSyncSeconds) * time.Second }
func (t Timing) SafeModeDwell() time.Duration {
	return time.Duration(t.SafeModeDwellSeconds) * time.Second
}
func (t Timing) WatchdogTimeout() time.Duration {
	return time.Duration(t.WatchdogTimeoutSeconds) * time.Second
}

// Sensors configures acquisition and calibration.
type Sensors struct {
	MaxConsecutiveErrors int     `yaml:"max_consecutive_errors"`
	ADCSamples           int     `yaml:"adc_samples"`
	VRefNominal          float64 `yaml:"vref_nominal_volts"`
	WarmupSeconds        int     `yaml:"airquality_warmup_seconds"`

	// MQ135 electrical parameters and the PPM curve fit. The curve
	// constants are approximate and batch-specific; they come from the
	// vendor's calibration gas, not from anything this system controls.
	LoadResistorOhms float64 `yaml:"mq135_load_resistor_ohms"`
	DividerR1Ohms    float64 `yaml:"mq135_divider_r1_ohms"`
	DividerR2Ohms    float64 `yaml:"mq135_divider_r2_ohms"`
	CleanAirRatio    float64 `yaml:"mq135_clean_air_ratio"`
	R0Ohms           float64 `yaml:"mq135_r0_ohms"`
	CurveCoefficient float64 `yaml:"mq135_curve_coefficient"`
	CurveExponent    float64 `yaml:"mq135_curve_exponent"`
}

func (s Sensors) Warmup() time.Duration { return time.Duration(s.WarmupSeconds) * time.Second }

// Actuators configures the safety limits.
type Actuators struct {
	MinDwellSeconds   int `yaml:"min_dwell_seconds"`
	MaxPumpRunSeconds int `yaml:"max_pump_run_seconds"`
}

func (a Actuators) MinDwell() time.Duration { return time.Duration(a.MinDwellSeconds) * time.Second }
func (a Actuators) MaxPumpRun() time.Duration {
	return time.Duration(a.MaxPumpRunSeconds) * time.Second
}

// MQTT configures the cloud session.
type MQTT struct {
	BrokerURL             string `yaml:"broker_url"`
	ClientID              string `yaml:"client_id"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	TopicPrefix           string `yaml:"topic_prefix"`
	QoS                   byte   `yaml:"qos"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
	BufferCapacity        int    `yaml:"buffer_capacity"`
}

func (m MQTT) ConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutSeconds) * time.Second
}

// Store configures local persistence.
type Store struct {
	Path           string `yaml:"path"`
	RetentionHours int    `yaml:"retention_hours"`
}

func (s Store) Retention() time.Duration { return time.Duration(s.RetentionHours) * time.Hour }

// Site configures the on-device status API.
type Site struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Output names a relay pin and its polarity. Relay boards differ: some are
// active-high, some active-low. The deployment must state which; there is
// no safe default to guess, so active_low defaults to false and must be
// set explicitly for inverted boards.
type Output struct {
	Pin       string `yaml:"pin"`
	ActiveLow bool   `yaml:"active_low"`
}

// Hardware maps logical channels to physical pins.
type Hardware struct {
	HeaterPrimary   Output `yaml:"heater_primary"`
	HeaterSecondary Output `yaml:"heater_secondary"`
	FanExhaust      Output `yaml:"fan_exhaust"`
	FanCirculation  Output `yaml:"fan_circulation"`
	Pump            Output `yaml:"pump"`
	Light           Output `yaml:"light"`

	PIRPin  string `yaml:"pir_pin"`
	UPSPin  string `yaml:"ups_pin"`
	DEREPin string `yaml:"de_re_pin"` // RS485 driver-enable line

	// SoilSerialDevice is the RS485 tty for the soil probe. Empty leaves
	// the soil channel unconnected.
	SoilSerialDevice string `yaml:"soil_serial_device"`

	AirQualityChannel int `yaml:"adc_airquality_channel"`
	NoiseChannel      int `yaml:"adc_noise_channel"`
	CO2Channel        int `yaml:"adc_co2_channel"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		DeviceID:  "greenhouse-01",
		LogLevel:  "info",
		LogFormat: "text",
		Thresholds: Thresholds{
			TempMin:        10.0,
			TempMax:        35.0,
			TempOptimalMin: 18.0,
			TempOptimalMax: 24.0,
			HumidityMin:    40.0,
			HumidityMax:    80.0,
			MoistureMin:    20.0,
			MoistureMax:    60.0,
			CO2Min:         400.0,
			CO2Max:         1500.0,
			NoiseVolts:     2.5,
			RapidTempDelta: 5.0,
		},
		Timing: Timing{
			SensorPollSeconds:      5,
			AnomalyCheckSeconds:    10,
			CloudSyncSeconds:       60,
			SafeModeDwellSeconds:   300,
			WatchdogTimeoutSeconds: 8,
		},
		Sensors: Sensors{
			MaxConsecutiveErrors: 5,
			ADCSamples:           10,
			VRefNominal:          3.3,
			WarmupSeconds:        24 * 3600,
			LoadResistorOhms:     10000,
			DividerR1Ohms:        10000,
			DividerR2Ohms:        20000,
			CleanAirRatio:        3.6,
			R0Ohms:               10000,
			CurveCoefficient:     116.6020682,
			CurveExponent:        -2.769034857,
		},
		Actuators: Actuators{
			MinDwellSeconds:   60,
			MaxPumpRunSeconds: 600,
		},
		MQTT: MQTT{
			BrokerURL:             "tcp://localhost:1883",
			ClientID:              "greenhouse-controller",
			TopicPrefix:           "greenos",
			QoS:                   0,
			ConnectTimeoutSeconds: 10,
			BufferCapacity:        100,
		},
		Store: Store{
			Path:           "greenhouse.db",
			RetentionHours: 48,
		},
		Site: Site{
			Enabled: true,
			Addr:    ":8080",
		},
		Hardware: Hardware{
			HeaterPrimary:     Output{Pin: "36"},
			HeaterSecondary:   Output{Pin: "38"},
			FanExhaust:        Output{Pin: "16"},
			FanCirculation:    Output{Pin: "18"},
			Pump:              Output{Pin: "37"},
			Light:             Output{Pin: "22"},
			PIRPin:            "29",
			UPSPin:            "31",
			DEREPin:           "33",
			SoilSerialDevice:  "/dev/ttyS0",
			AirQualityChannel: 0,
			NoiseChannel:      1,
			CO2Channel:        2,
		},
	}
}

// Load reads path and overlays it on the defaults. A missing file is not an
// error: the device boots on defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
