// ReSet Panel Core
//
// This is the main entry point for the ReSet panel core. It keeps a live
// registry of the audio devices, streams and cards exposed by the ReSet
// daemon, applies panel commands optimistically, and serves the registry
// over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/reset-core/internal/api"
	"github.com/nerrad567/reset-core/internal/audio"
	"github.com/nerrad567/reset-core/internal/backend/dbus"
	"github.com/nerrad567/reset-core/internal/backend/mqttbridge"
	"github.com/nerrad567/reset-core/internal/infrastructure/config"
	"github.com/nerrad567/reset-core/internal/infrastructure/database"
	"github.com/nerrad567/reset-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/reset-core/internal/infrastructure/logging"
	"github.com/nerrad567/reset-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/reset-core/internal/journal"
	"github.com/nerrad567/reset-core/internal/metrics"
	"github.com/nerrad567/reset-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// journalBuffer is the number of command records queued for the journal
// writer before new ones are dropped.
const journalBuffer = 256

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the panel together and blocks until ctx is cancelled or a
// long-running component fails.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting ReSet panel core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", config.DefaultPath())

	log = logging.New(cfg.Logging, version)

	// Command journal
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		Migrations:  migrations.FS,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	journalRepo := journal.NewSQLiteRepository(db.DB)
	recorder := journal.NewRecorder(journalRepo, journalBuffer)
	recorder.SetLogger(log.Component("journal"))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Daemon transport
	backend, mqttClient, closeBackend, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	if regErr := backend.RegisterClient(ctx, cfg.Panel.ClientName); regErr != nil {
		log.Warn("daemon client registration failed", "error", regErr)
	}

	// Processor and observers
	proc := audio.NewProcessor(backend, audio.ProcessorConfig{
		QueueSize:      cfg.Processor.QueueSize,
		MaxInflight:    cfg.Processor.MaxInflight,
		CommandTimeout: cfg.GetCommandTimeout(),
	})
	proc.SetLogger(log.Component("processor"))
	proc.AddObserver(m)
	proc.AddObserver(recorder)
	metrics.RegisterQueueDepth(reg, proc.QueueDepth)

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		proc.AddObserver(influxdb.NewTelemetry(influxClient))
		log.Info("InfluxDB telemetry enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	activator := audio.NewActivator(proc, backend, &audio.ActiveDomain{})
	activator.SetLogger(log.Component("worker"))
	activator.SetRecorder(m)
	defer activator.Close()

	var server *api.Server
	if cfg.API.Enabled {
		server, err = api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.Component("api"),
			Audio:    proc,
			Domains:  activator,
			Journal:  journalRepo,
			Gatherer: reg,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		proc.AddObserver(server.Hub())
	}

	if mqttClient != nil {
		// The bridge closes event streams on disconnect; restarting the
		// active domain resyncs once the broker is back.
		mqttClient.SetOnConnect(func() {
			if d := activator.Current(); d == audio.DomainAudio {
				log.Info("MQTT reconnected, restarting audio watch")
				if actErr := activator.Activate(d); actErr != nil {
					log.Warn("re-activating audio failed", "error", actErr)
				}
			}
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return proc.Run(gctx) })
	g.Go(func() error { return recorder.Run(gctx) })

	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	initial, err := audio.ParseDomain(cfg.Panel.InitialDomain)
	if err != nil {
		return abort(err)
	}
	if err := activator.Activate(initial); err != nil {
		return abort(fmt.Errorf("activating %s: %w", initial, err))
	}
	log.Info("domain activated", "domain", initial)

	if server != nil {
		if err := server.Start(gctx); err != nil {
			return abort(fmt.Errorf("starting API server: %w", err))
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	err = g.Wait()
	log.Info("shutdown signal received, cleaning up")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("ReSet panel core stopped")
	return nil
}

// openBackend connects the configured daemon transport. The returned MQTT
// client is nil for D-Bus. The cleanup function is always non-nil.
func openBackend(cfg *config.Config, log *logging.Logger) (audio.Backend, *mqtt.Client, func(), error) {
	switch cfg.Backend.Transport {
	case config.TransportMQTT:
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
		client.SetLogger(log.Component("mqtt"))

		bridge, err := mqttbridge.New(client, cfg.GetRequestTimeout())
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
		}
		bridge.SetLogger(log.Component("mqttbridge"))
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
			bridge.ConnectionLost(err)
		})

		log.Info("daemon reached through MQTT",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		return bridge, client, func() {
			if err := bridge.Close(); err != nil {
				log.Error("error closing MQTT bridge", "error", err)
			}
			log.Info("disconnecting from MQTT")
			if err := client.Close(); err != nil {
				log.Error("error closing MQTT", "error", err)
			}
		}, nil

	default:
		client, err := dbus.Dial(cfg.Backend.DBus)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to D-Bus: %w", err)
		}
		client.SetLogger(log.Component("dbus"))
		log.Info("daemon reached through D-Bus",
			"bus", cfg.Backend.DBus.Bus,
			"destination", cfg.Backend.DBus.Destination,
		)
		return client, nil, func() {
			if err := client.Close(); err != nil {
				log.Error("error closing D-Bus connection", "error", err)
			}
		}, nil
	}
}
