package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/db"
	"github.com/thatsimonsguy/psu-controller/internal/api"
	"github.com/thatsimonsguy/psu-controller/internal/bus"
	"github.com/thatsimonsguy/psu-controller/internal/channel"
	"github.com/thatsimonsguy/psu-controller/internal/config"
	"github.com/thatsimonsguy/psu-controller/internal/datadog"
	"github.com/thatsimonsguy/psu-controller/internal/diag"
	"github.com/thatsimonsguy/psu-controller/internal/eeprom"
	"github.com/thatsimonsguy/psu-controller/internal/env"
	"github.com/thatsimonsguy/psu-controller/internal/eventlog"
	"github.com/thatsimonsguy/psu-controller/internal/gpio"
	"github.com/thatsimonsguy/psu-controller/internal/logging"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/mqtt"
	"github.com/thatsimonsguy/psu-controller/internal/notifications"
	"github.com/thatsimonsguy/psu-controller/internal/psu"
	"github.com/thatsimonsguy/psu-controller/internal/sound"
	"github.com/thatsimonsguy/psu-controller/internal/store"
	"github.com/thatsimonsguy/psu-controller/internal/temperature"
	"github.com/thatsimonsguy/psu-controller/system/shutdown"
	"github.com/thatsimonsguy/psu-controller/system/startup"
)

const metricsInterval = 10 * time.Second

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	if cfg.InstallService {
		if err := startup.Install(); err != nil {
			log.Fatal().Err(err).Msg("Failed to install services")
		}
		log.Info().Str("unit", cfg.MainServicePath).Msg("Services installed")
		return
	}

	log.Info().
		Str("db", cfg.DBPath).
		Int("slots", cfg.Slots).
		Msg("Starting PSU controller")

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED, main power rail will not be driven")
	}

	rail := openRail(cfg)

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		shutdown.ShutdownWithError(rail, err, "Failed to open database")
		return
	}
	defer conn.Close()

	st := store.New(conn, model.DeviceConfig{}, defaultProfile(cfg))

	var pub mqtt.Publisher
	if cfg.MQTTBroker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTTBroker, "psu-controller")
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTTBroker).Msg("MQTT unavailable, events stay local")
		} else {
			pub = p
			defer p.Close()
		}
	}

	notifications.Init()
	var notify eventlog.NotifyFunc
	if notifications.Enabled() {
		notify = notifications.Send
	}
	events := eventlog.New(conn, pub, notify)

	thermal := temperature.NewService(tempSensors(cfg), cfg.W1DevicesDir, cfg.TempPollInterval(),
		protectionDefault(cfg.AuxProtection), protectionDefault(cfg.ChannelProtection))

	var identity channel.IdentityReader
	if len(cfg.I2C.EEPROMAddrs) > 0 {
		reader, err := eeprom.Open(cfg.I2C.Bus, cfg.I2C.EEPROMAddrs)
		if err != nil {
			log.Warn().Err(err).Msg("Module identity EEPROMs unavailable, all slots treated as empty")
		} else {
			identity = reader
			defer reader.Close()
		}
	}

	harness := &diag.System{
		DB:          conn,
		Thermal:     thermal,
		Relays:      rail,
		SDCardPath:  cfg.SDCardPath,
		NetworkAddr: cfg.NetworkCheckAddr,
	}

	ctrl := psu.New(psu.Options{
		Slots:             cfg.Slots,
		MinPowerUpDelay:   cfg.MinPowerUpDelay(),
		MaxCurrentCeiling: cfg.MaxCurrentCeiling,
		Master: diag.MasterOptions{
			SDCard:  cfg.SDCardPath != "",
			Network: cfg.NetworkCheckAddr != "",
		},
		StatusEvery: cfg.StatusEveryTicks,
	}, psu.Deps{
		Store:    st,
		Events:   events,
		Rail:     rail,
		Harness:  harness,
		Thermal:  thermal,
		Sound:    sound.NewPlayer(nil, cfg.SoundEnabled),
		Identity: identity,
	}, bus.New(cfg.CommandQueueSize))
	thermal.SetHandler(ctrl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventsDone := make(chan struct{})
	go func() {
		events.Run(ctx)
		close(eventsDone)
	}()
	thermal.Start(ctx)

	if cfg.EnableDatadog {
		datadog.InitMetrics()
		go datadog.Report(ctx, metricsInterval, ctrl)
	}
	if pub != nil {
		go mqtt.ReportStatus(ctx, pub, time.Duration(cfg.StatusPublishSeconds)*time.Second, func() interface{} {
			return ctrl.Status()
		})
	}

	server := api.NewServer(conn, ctrl, thermal)
	go func() {
		if err := server.Start(cfg.HTTPPort); err != nil {
			log.Error().Err(err).Msg("REST API server stopped")
		}
	}()

	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()
	if err := ctrl.Run(ctx, ticker.C); err != nil {
		log.Error().Err(err).Msg("Control loop failed")
	}

	<-eventsDone
	if err := st.Export(cfg.DBPath + ".profiles.json"); err != nil {
		log.Warn().Err(err).Msg("Failed to export profiles")
	}
	log.Info().Msg("Shutting down")
	shutdown.Shutdown(rail)
}

func openRail(cfg config.Config) *gpio.Rail {
	var (
		rail *gpio.Rail
		err  error
	)
	switch cfg.Rail.Backend {
	case config.RailPinctrl:
		rail, err = gpio.NewPinctrlRail(*cfg.Rail.Line, cfg.Rail.ActiveHigh)
	default:
		rail, err = gpio.NewRail(cfg.Rail.Chip, *cfg.Rail.Line, cfg.Rail.ActiveHigh)
	}
	if err == nil {
		return rail
	}
	if !cfg.SafeMode {
		log.Fatal().Err(err).Str("chip", cfg.Rail.Chip).Int("line", *cfg.Rail.Line).Msg("Failed to request main power rail")
	}
	log.Warn().Err(err).Msg("Main power rail unavailable, using in-memory rail")
	rail, _ = gpio.NewFakeRail(cfg.Rail.ActiveHigh)
	return rail
}

func defaultProfile(cfg config.Config) *model.Profile {
	p := &model.Profile{
		Location: model.DefaultProfileSlot,
		Name:     "default",
		Coupling: model.CouplingNone,
	}
	for i := 0; i < cfg.Slots; i++ {
		p.Channels = append(p.Channels, model.ChannelParams{CurrentLimit: cfg.DefaultChannelCurrLimit})
	}
	return p
}

func tempSensors(cfg config.Config) []temperature.Sensor {
	var sensors []temperature.Sensor
	for _, s := range cfg.TempSensors {
		sensors = append(sensors, temperature.Sensor{Name: s.Name, ID: s.ID, Aux: s.Aux})
	}
	return sensors
}

func protectionDefault(p config.Protection) model.ProtectionConfig {
	return model.ProtectionConfig{Level: p.Level, Delay: p.Delay(), Enabled: p.Enabled}
}
