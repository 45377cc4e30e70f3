package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/samplecentring-core/internal/api"
	"github.com/nerrad567/samplecentring-core/internal/bridges/hwr"
	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/config"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/logging"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/samplecentring-core/internal/process"
)

// hardware is the running diffractometer backend.
type hardware struct {
	rig diffractometer.Diffractometer
	cam diffractometer.Camera

	// closers run in reverse order on close.
	closers []func()
}

func (h *hardware) close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
}

// startHardware builds the backend selected by hardware.mode.
func startHardware(ctx context.Context, cfg *config.Config, log *logging.Logger, checks map[string]api.HealthChecker) (*hardware, error) {
	switch cfg.Hardware.Mode {
	case config.HardwareModeSimulated:
		sim := diffractometer.NewSimulator()
		cam := diffractometer.NewSimulatedCamera(sim, cfg.Hardware.SimulatedFrameRate, cfg.Camera.JPEGQuality)
		log.Info("using simulated diffractometer", "frame_rate", cfg.Hardware.SimulatedFrameRate)
		return &hardware{rig: sim, cam: cam}, nil

	case config.HardwareModeMQTT:
		return startMQTTHardware(ctx, cfg, log, checks)

	default:
		return nil, fmt.Errorf("unknown hardware mode %q", cfg.Hardware.Mode)
	}
}

// startMQTTHardware starts the hardware daemon (if supervised), connects to
// the broker and starts the bridge.
func startMQTTHardware(ctx context.Context, cfg *config.Config, log *logging.Logger, checks map[string]api.HealthChecker) (*hardware, error) {
	h := &hardware{}
	fail := func(err error) (*hardware, error) {
		h.close()
		return nil, err
	}

	if d := cfg.Hardware.Daemon; d.Enabled {
		sup := process.New(process.Config{
			Name:            "hwr-daemon",
			Binary:          d.Binary,
			Args:            d.Args,
			RestartDelay:    d.RestartDelay,
			MaxRestarts:     d.MaxRestarts,
			GracefulTimeout: d.GracefulTimeout,
		})
		sup.SetLogger(log.With("component", "hwr-daemon"))
		if err := sup.Start(ctx); err != nil {
			return fail(fmt.Errorf("starting hardware daemon: %w", err))
		}
		h.closers = append(h.closers, func() {
			log.Info("stopping hardware daemon")
			if err := sup.Stop(); err != nil {
				log.Error("error stopping hardware daemon", "error", err)
			}
		})
		checks["hwr_daemon"] = sup
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fail(fmt.Errorf("connecting to MQTT: %w", err))
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	h.closers = append(h.closers, func() {
		st := client.Stats()
		log.Info("disconnecting from MQTT",
			"published", st.Published,
			"received", st.Received,
			"handler_errors", st.HandlerErrors,
			"reconnects", st.Reconnects,
		)
		if err := client.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	})
	checks["mqtt"] = client
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridge, err := hwr.New(hwr.Options{
		MQTTClient:     client,
		Topics:         client.Topics(),
		QoS:            client.QoS(),
		RequestTimeout: cfg.Hardware.RequestTimeout,
		Logger:         log.With("component", "hwr"),
	})
	if err != nil {
		return fail(fmt.Errorf("creating hardware bridge: %w", err))
	}
	if err := bridge.Start(ctx); err != nil {
		return fail(fmt.Errorf("starting hardware bridge: %w", err))
	}
	h.closers = append(h.closers, func() {
		log.Info("stopping hardware bridge")
		bridge.Close()
	})
	log.Info("hardware bridge started", "topic_prefix", cfg.MQTT.TopicPrefix)

	h.rig = bridge
	h.cam = bridge
	return h, nil
}
