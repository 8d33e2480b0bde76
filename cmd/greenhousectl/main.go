package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greenos/controller/actuators"
	"greenos/controller/anomaly"
	"greenos/controller/cloud"
	"greenos/controller/config"
	"greenos/controller/controller"
	"greenos/controller/hardware"
	"greenos/controller/logging"
	"greenos/controller/sensors"
	"greenos/controller/site"
	"greenos/controller/store"
	"greenos/controller/watchdog"
)

func main() {
	configPath := flag.String("config", "/etc/greenhousectl/config.yaml", "path to config file")
	sim := flag.Bool("sim", false, "run against simulated hardware (no GPIO)")
	flag.Parse()

	if err := run(*configPath, *sim); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, sim bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Info("greenhousectl starting", "device_id", cfg.DeviceID, "sim", sim)

	db, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		// Degraded but alive: no calibration persistence, no history.
		log.Warn("local store unavailable", "error", err)
		db = nil
	} else {
		defer db.Close()
	}

	backend, err := openBackend(cfg, sim, log)
	if err != nil {
		return err
	}

	var profiles sensors.ProfileStore
	if db != nil {
		profiles = db
	}
	sens := sensors.New(cfg.Sensors, sensors.Channels{
		AirQuality: cfg.Hardware.AirQualityChannel,
		Noise:      cfg.Hardware.NoiseChannel,
	}, backend, profiles, log, nil)
	acts := actuators.New(cfg.Actuators, backend.Outputs, log, nil)
	det := anomaly.New(cfg.Thresholds, nil)
	cld := cloud.NewManager(cfg.MQTT, cfg.DeviceID, cloud.NewMQTTClient(cfg.MQTT), log)
	defer cld.Close()

	// The supervisor restart path ends the process; the init system is
	// expected to bring it back up.
	dog := watchdog.New(cfg.Timing.WatchdogTimeout(), func() {
		log.Error("watchdog expired, exiting for supervised restart")
		os.Exit(1)
	}, log)

	ctrl := controller.New(cfg, controller.Deps{
		Sensors: sens,
		Acts:    acts,
		Det:     det,
		Cloud:   cld,
		Rec:     recorder(db),
		Dog:     dog,
		Console: controller.NewConsole(os.Stdin),
		Out:     os.Stdout,
		Log:     log,
		Restart: func() { os.Exit(1) },
	})

	if cfg.Site.Enabled {
		web := site.New(cfg.Site, site.StatusFunc(func() any { return ctrl.Status() }), db, log)
		web.Start()
		defer web.Stop(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctrl.Run(ctx)
	return nil
}

// recorder converts a possibly-nil *store.Store into the loop's Recorder
// without smuggling a typed nil into the interface.
func recorder(db *store.Store) controller.Recorder {
	if db == nil {
		return nil
	}
	return db
}

func openBackend(cfg config.Config, sim bool, log *slog.Logger) (hardware.Backend, error) {
	if sim {
		return hardware.NewSim(time.Now().UnixNano()).Backend(), nil
	}
	// The soil channel degrades gracefully: a missing tty leaves the bus
	// unconnected and soil reads report errors upstream.
	var soilPort io.ReadWriter
	if cfg.Hardware.SoilSerialDevice != "" {
		f, err := os.OpenFile(cfg.Hardware.SoilSerialDevice, os.O_RDWR, 0)
		if err != nil {
			log.Warn("soil serial device unavailable",
				"device", cfg.Hardware.SoilSerialDevice, "error", err)
		} else {
			soilPort = f
		}
	}
	board, err := hardware.NewRaspi(cfg.Hardware, soilPort)
	if err != nil {
		return hardware.Backend{}, fmt.Errorf("hardware init: %w", err)
	}
	log.Info("hardware initialized", "soil_bus", soilPort != nil)
	return board.Backend(), nil
}
