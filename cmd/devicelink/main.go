// devicelink - device integration service
//
// devicelink supervises connections to networked devices (AV receivers,
// TVs, set-top boxes, media players), keeps entity attributes in sync,
// announces availability over MQTT, and records attribute history in
// InfluxDB. Devices are configured at runtime through the HTTP API and
// persisted in SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/devicelink/migrations"

	"github.com/nerrad567/devicelink/internal/announce"
	"github.com/nerrad567/devicelink/internal/api"
	"github.com/nerrad567/devicelink/internal/backoff"
	"github.com/nerrad567/devicelink/internal/connection"
	"github.com/nerrad567/devicelink/internal/entity"
	"github.com/nerrad567/devicelink/internal/event"
	"github.com/nerrad567/devicelink/internal/history"
	"github.com/nerrad567/devicelink/internal/infrastructure/config"
	"github.com/nerrad567/devicelink/internal/infrastructure/database"
	"github.com/nerrad567/devicelink/internal/infrastructure/influxdb"
	"github.com/nerrad567/devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/devicelink/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting devicelink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Event bus carries all lifecycle and update events
	bus := event.NewBus(log)
	defer bus.Close()

	// Connection manager supervises every configured device
	manager := connection.NewManager(bus, connection.Options{
		Backoff: backoff.Exponential{
			Base:   cfg.Connection.BackoffBaseDuration(),
			Max:    cfg.Connection.BackoffMaxDuration(),
			Jitter: true,
		},
		MaxAttempts:     cfg.Connection.MaxAttempts,
		MaxAuthAttempts: cfg.Connection.MaxAuthAttempts,
		ConnectTimeout:  cfg.Connection.ConnectTimeoutDuration(),
		Logger:          log,
	})
	defer manager.Close()

	// Entity registry and attribute synchronizer
	registry := entity.NewRegistry()
	syncer := entity.NewSyncer(registry, log)

	// Device config store drives supervision through its change hooks
	repo := store.NewSQLiteRepository(db.DB)
	configStore := store.NewStore(repo, log)

	app := &app{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		manager:  manager,
		store:    configStore,
		registry: registry,
		syncer:   syncer,
		cache:    newPayloadCache(),
	}

	// Connect to InfluxDB (optional) and build the attribute recorder
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		recorder := history.NewRecorder(influxClient, log)
		go recorder.Run(ctx, bus.Subscribe(""))
		app.recorder = recorder
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect the MQTT availability announcer (optional)
	if cfg.MQTT.Enabled {
		announcer, announceErr := announce.Connect(cfg.MQTT, log)
		if announceErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", announceErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := announcer.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		go announcer.Run(ctx, bus.Subscribe(""))
		app.announcer = announcer
	} else {
		log.Info("MQTT disabled")
	}

	configStore.OnAdd(app.deviceAdded)
	configStore.OnRemove(app.deviceRemoved)

	// Synchronizer reacts to lifecycle and update events
	go syncer.Run(ctx, bus.Subscribe(""))

	// Bookkeeping: persist last-seen and last-error per device
	go app.bookkeeping(ctx, bus.Subscribe(""))

	// Load persisted device configs; the add hooks start supervision
	if loadErr := configStore.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device configs: %w", loadErr)
	}

	// Start the HTTP API
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Manager:  manager,
			Store:    configStore,
			Registry: registry,
			Syncer:   syncer,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("HTTP API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT announcer (publishes graceful offline)
	// 3. InfluxDB (flushes pending writes)
	// 4. Connection manager (tears down device links)
	// 5. Event bus
	// 6. Database

	log.Info("devicelink stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DEVICELINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEVICELINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
