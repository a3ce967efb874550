// Device Registry - MQTT device self-registration daemon
//
// Devices announce themselves over MQTT, the registry assigns each of their
// services a stable numeric instance, projects them onto the local service
// bus and answers every device with its instance map. Identity survives
// reconnects and restarts through the SQLite mapping store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/iotforge/device-registry/migrations"

	"github.com/iotforge/device-registry/internal/announce"
	"github.com/iotforge/device-registry/internal/device"
	"github.com/iotforge/device-registry/internal/expose"
	"github.com/iotforge/device-registry/internal/infrastructure/config"
	"github.com/iotforge/device-registry/internal/infrastructure/database"
	"github.com/iotforge/device-registry/internal/infrastructure/influxdb"
	"github.com/iotforge/device-registry/internal/infrastructure/logging"
	"github.com/iotforge/device-registry/internal/infrastructure/mqtt"
	"github.com/iotforge/device-registry/internal/localbus"
	"github.com/iotforge/device-registry/internal/manager"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// eventBuffer sizes the announcement channel. Announcements are small and
// processing is fast; the buffer only absorbs broker bursts.
const eventBuffer = 64

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting device registry",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open the mapping store and bring the schema up to date
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(repo, log)

	// Connect to the local service bus
	bus, err := localbus.ConnectNATS(cfg.Bus)
	if err != nil {
		return fmt.Errorf("connecting to service bus: %w", err)
	}
	defer func() {
		log.Info("closing service bus connection")
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing service bus", "error", closeErr)
		}
	}()
	bus.SetLogger(log)
	log.Info("service bus connected", "url", cfg.Bus.URL, "portal_id", bus.PortalID())

	exposer := expose.NewExposer(bus, log)

	// Connect to the MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional registration journal)
	var journal manager.Journal
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		journal = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled, registration journal off")
	}

	// Start listening for announcements
	listener, err := announce.NewListener(eventBuffer, log)
	if err != nil {
		return fmt.Errorf("creating announcement listener: %w", err)
	}
	defer listener.Close()

	if err := listener.Subscribe(mqttClient); err != nil {
		return fmt.Errorf("subscribing to announcements: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, bus, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	mgr := manager.New(registry, exposer, mqttClient, listener.Events(), journal, log)
	log.Info("initialisation complete, processing announcements")

	// Blocks until the shutdown signal cancels ctx
	err = mgr.Run(ctx)

	log.Info("device registry stopped")
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// getConfigPath returns the configuration file path.
// Uses DEVREG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEVREG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, bus *localbus.NATSBus, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := bus.HealthCheck(ctx); err != nil {
		return fmt.Errorf("service bus: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
