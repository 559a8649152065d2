// Coldtag Core - cold-chain telemetry backend
//
// This is the main entry point for the Coldtag Core service. It ingests
// gateway and sensor-tag telemetry from MQTT, stores it in SQLite, tracks
// route cycles, and serves the REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/coldtag-core/internal/api"
	"github.com/nerrad567/coldtag-core/internal/correlation"
	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/cache"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/config"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/database"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/logging"
	"github.com/nerrad567/coldtag-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/coldtag-core/internal/ingest"
	"github.com/nerrad567/coldtag-core/internal/routecycle"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
	"github.com/nerrad567/coldtag-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// Deferred cleanups run in reverse order of startup: API, ingest, InfluxDB,
// MQTT, database.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Coldtag Core",
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

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(database.Config{
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	deviceCache, err := newCache(cfg.Cache)
	if err != nil {
		return err
	}
	registry := device.NewRegistry(device.NewSQLiteRepository(db), deviceCache)
	registry.SetLogger(log.Component("device"))

	events := telemetry.NewStore(db)

	cycles := routecycle.NewService(routecycle.NewSQLiteRepository(db), registry)
	cycles.SetLogger(log.Component("routecycle"))

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
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	pipeline := ingest.New(mqttClient, registry, events, ingest.Config{
		QueueSize:   cfg.Ingest.QueueSize,
		RetryDelay:  cfg.GetRetryDelay(),
		QoS:         byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		Deduplicate: cfg.Ingest.Deduplicate,
	})
	pipeline.SetLogger(log.Component("ingest"))
	if influxClient != nil {
		pipeline.SetMirror(influxClient)
	}
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		pipeline.Resubscribe()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		pipeline.Disconnected()
	})
	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("starting ingest: %w", err)
	}
	defer func() {
		log.Info("stopping ingest")
		pipeline.Stop()
	}()

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		OfflineAfter: cfg.GetOfflineAfter(),
		Logger:       log.Component("api"),
		Registry:     registry,
		Events:       events,
		Cycles:       cycles,
		Correlation:  correlation.NewEngine(events),
		Checks:       checks,
		Ingest:       pipeline,
		Cache:        cacheStats(deviceCache),
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns the configuration file path.
// Uses COLDTAG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("COLDTAG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// cacheStats returns the counters of c, or nil when c keeps none.
func cacheStats(c cache.Cache) api.CacheStats {
	if stats, ok := c.(api.CacheStats); ok {
		return stats
	}
	return nil
}

// newCache builds the device read-through cache. A disabled cache is nil,
// which the registry treats as no caching.
func newCache(cfg config.CacheConfig) (cache.Cache, error) {
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // nil disables caching
	}
	c, err := cache.NewLRU(cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("creating device cache: %w", err)
	}
	return c, nil
}
