// Sample Centring Core
//
// This is the main entry point for the sample centring service. It serves
// the HTTP API the MXCuBE UI uses to centre a sample: motor moves and status,
// saved centred positions, click-driven and automatic centring, and the
// live camera feed.
//
// The diffractometer is either reached over MQTT through the external
// hardware-abstraction daemon, or simulated in-process.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/samplecentring-core/internal/api"
	"github.com/nerrad567/samplecentring-core/internal/audit"
	"github.com/nerrad567/samplecentring-core/internal/camera"
	"github.com/nerrad567/samplecentring-core/internal/centring"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/config"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/database"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/logging"
	"github.com/nerrad567/samplecentring-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// configEnv overrides defaultConfigPath.
	configEnv = "SAMPLECENTRING_CONFIG"

	// relayStatsInterval is how often frame relay counters go to InfluxDB.
	relayStatsInterval = 15 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting sample centring core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"beamline", cfg.Beamline.ID,
	)

	checks := make(map[string]api.HealthChecker)

	// Command journal (optional)
	journal, closeJournal, err := openJournal(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeJournal()

	// Motor telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Beamline.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			st := influxClient.Stats()
			log.Info("closing InfluxDB connection", "points", st.Points, "write_errors", st.WriteErrors)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Diffractometer and camera
	hw, err := startHardware(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer hw.close()

	relay := camera.NewRelay(cfg.Camera.FrameTimeout)
	hw.cam.SetFrameHandler(relay.Publish)
	defer func() {
		log.Info("stopping camera")
		relay.Stop()
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Hardware.RequestTimeout)
		defer cancel()
		if stopErr := hw.cam.Stop(stopCtx); stopErr != nil {
			log.Warn("error stopping camera", "error", stopErr)
		}
	}()

	svc := centring.NewService(centring.Deps{
		Rig:       hw.rig,
		Camera:    hw.cam,
		Relay:     relay,
		Snapshots: camera.NewSnapshotWriter(cfg.Camera.SnapshotDir),
	})
	svc.SetLogger(log.With("component", "centring"))
	if influxClient != nil {
		svc.SetTelemetry(influxClient)
		go reportRelayStats(ctx, relay, influxClient)
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Service: svc,
		Journal: journal,
		Checks:  checks,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	hw.rig.SetEventHandler(server.HandleEvent)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"hardware_mode", cfg.Hardware.Mode,
		"base_path", cfg.API.BasePath,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API server, camera and relay, hardware, InfluxDB, journal.
	return nil
}

// loadConfig reads the config file. Without SAMPLECENTRING_CONFIG a
// missing default file falls back to built-in defaults.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path, explicit := getConfigPath()
	cfg, err := config.Load(path)
	switch {
	case err == nil:
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	case !explicit && errors.Is(err, fs.ErrNotExist):
		log.Warn("no config file, using defaults", "path", path)
		cfg = config.Default()
		if vErr := cfg.Validate(); vErr != nil {
			return nil, fmt.Errorf("validating default config: %w", vErr)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("loading config: %w", err)
	}
}

// getConfigPath returns the configuration file path and whether it was set
// explicitly.
func getConfigPath() (string, bool) {
	if path := os.Getenv(configEnv); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// openJournal opens the SQLite command journal when enabled. The recorder
// is nil otherwise. The returned func flushes the recorder, then closes the
// database.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger, checks map[string]api.HealthChecker) (*audit.Recorder, func(), error) {
	if !cfg.Database.Enabled {
		log.Info("command journal disabled")
		return nil, func() {}, nil
	}

	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	checks["database"] = db
	log.Info("command journal enabled", "path", db.Path())

	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log)
	closeFn := func() {
		log.Info("flushing command journal")
		recorder.Close()
		if err := db.Close(); err != nil {
			log.Error("error closing database", "error", err)
		}
	}
	return recorder, closeFn, nil
}

// reportRelayStats writes frame relay counters to InfluxDB until ctx ends.
func reportRelayStats(ctx context.Context, relay *camera.Relay, influx *influxdb.Client) {
	ticker := time.NewTicker(relayStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st := relay.Stats()
			influx.WriteRelayStats(st.Published, st.Dropped, st.Subscribers, now)
		}
	}
}
