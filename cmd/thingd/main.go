// thingd hosts the configured Things and exposes them over HTTP, WebSocket
// and MQTT.
//
// Startup order: config, logging, registry, database (history and audit), MQTT
// (optionally with an embedded broker), protocol clients, MQTT binding,
// HTTP API. Shutdown runs in reverse through the defer chain.
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

	"github.com/nerrad567/gray-logic-things/internal/api"
	"github.com/nerrad567/gray-logic-things/internal/audit"
	"github.com/nerrad567/gray-logic-things/internal/history"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/broker"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/mqttbinding"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/protocol/httpclient"
	"github.com/nerrad567/gray-logic-things/internal/protocol/local"
	"github.com/nerrad567/gray-logic-things/internal/protocol/mqttclient"
	"github.com/nerrad567/gray-logic-things/internal/td"
	"github.com/nerrad567/gray-logic-things/internal/thing"
	"github.com/nerrad567/gray-logic-things/migrations"
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

// shutdownTimeout bounds how long protocol clients get to stop.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting thingd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("site", cfg.Site.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}
	log.Info("thing registry initialised", "things", registry.Count())

	// Property and event history (optional)
	var db *database.DB
	var store history.Store
	var sinks []history.Sink
	var sqliteStore *history.SQLiteStore
	var auditLog *audit.SQLiteRepository
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, cfg.Database)
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

		sqliteStore = history.NewSQLiteStore(db.DB)
		store = sqliteStore
		sinks = append(sinks, sqliteStore)
		auditLog = audit.NewSQLiteRepository(db.DB)
		auditRepo = auditLog
	} else {
		log.Info("history store and audit log disabled")
	}

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
		sinks = append(sinks, history.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if len(sinks) > 0 {
		recorder := history.NewRecorder(registry, sinks...)
		recorder.SetLogger(log.Component("history"))
		if sqliteStore != nil && cfg.Database.RetentionDays > 0 {
			recorder.SetRetention(history.Pruners{sqliteStore, auditLog}, time.Duration(cfg.Database.RetentionDays)*24*time.Hour)
		}
		recorder.Start(ctx)
		defer recorder.Stop()
	}

	// MQTT (optional, with optional embedded broker)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Embedded.Enabled {
			b, brokerErr := startBroker(ctx, cfg, log)
			if brokerErr != nil {
				return brokerErr
			}
			defer func() {
				log.Info("stopping embedded broker")
				//nolint:errcheck // logged by the broker
				b.Stop(context.Background())
			}()
		}

		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
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
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Protocol clients
	dispatcher, localClient, err := buildDispatcher(ctx, cfg, registry, mqttClient, log)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := dispatcher.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping protocol clients", "error", stopErr)
		}
	}()

	// MQTT binding
	var binding *mqttbinding.Binding
	if mqttClient != nil && cfg.MQTT.Binding.Enabled {
		binding, err = mqttbinding.New(mqttbinding.Options{
			MQTT:             mqttClient,
			Registry:         registry,
			Client:           localClient,
			StateContentType: cfg.MQTT.Binding.StateContentType,
			RequestTimeout:   cfg.MQTT.GetRequestTimeout(),
			Workers:          cfg.MQTT.Binding.Workers,
			Audit:            auditRepo,
			Logger:           log.Component("mqttbinding"),
		})
		if err != nil {
			return fmt.Errorf("creating MQTT binding: %w", err)
		}
		if startErr := binding.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT binding: %w", startErr)
		}
		defer binding.Stop()
	}

	// HTTP API
	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Registry: registry,
		Client:   localClient,
		History:  store,
		Audit:    auditRepo,
		DB:       db,
		Version:  version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if binding != nil {
		deps.Binding = binding
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal", "api", server.Addr())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns the configuration file path.
// Uses THINGS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("THINGS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path. A missing file at the default path falls back to
// the built-in defaults; a missing explicit path is an error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path != defaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating default config: %w", err)
	}
	return cfg, nil
}

// buildRegistry creates the registry and the configured Things.
func buildRegistry(cfg *config.Config, log *logging.Logger) (*thing.Registry, error) {
	registry := thing.NewRegistry()
	registry.SetLogger(log.Component("registry"))
	registry.SetDescriber(&td.Serializer{
		BaseURL:    cfg.API.BaseURL,
		BearerAuth: cfg.Security.JWT.Secret != "",
	})

	for _, tc := range cfg.Things {
		t := thing.FromConfig(tc)
		t.SetLogger(log.Component("thing").With("thing", tc.Name))
		if err := registry.Add(t); err != nil {
			return nil, fmt.Errorf("adding thing %q: %w", tc.Name, err)
		}
	}
	return registry, nil
}

// startBroker runs the in-process MQTT broker the client then connects to.
func startBroker(ctx context.Context, cfg *config.Config, log *logging.Logger) (*broker.Broker, error) {
	b, err := broker.New(cfg.MQTT.Embedded, cfg.MQTT.Auth, log.Component("broker").Logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedded broker: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting embedded broker: %w", err)
	}
	log.Info("embedded MQTT broker started", "address", b.Address())
	return b, nil
}

// buildDispatcher registers every protocol client and starts them. The
// local client is returned separately because the API and the MQTT binding
// serve requests through it.
func buildDispatcher(ctx context.Context, cfg *config.Config, registry *thing.Registry, mqttClient *mqtt.Client, log *logging.Logger) (*protocol.Dispatcher, protocol.Client, error) {
	dispatcher := protocol.NewDispatcher()
	dispatcher.SetLogger(log.Component("dispatcher"))

	factories := []protocol.ClientFactory{
		local.NewFactory(registry),
		httpclient.NewFactory(cfg.Client.HTTP),
	}
	if mqttClient != nil {
		f := mqttclient.NewSharedFactory(mqttClient, cfg.MQTT)
		f.SetLogger(log.Component("mqttclient"))
		factories = append(factories, f)
	}

	clients, err := startFactories(ctx, dispatcher, factories...)
	if err != nil {
		return nil, nil, err
	}
	log.Info("protocol clients started", "schemes", dispatcher.Schemes())
	return dispatcher, clients[0], nil
}

// startFactories registers each factory and starts the dispatcher. On any
// failure everything registered so far is stopped and destroyed.
func startFactories(ctx context.Context, d *protocol.Dispatcher, factories ...protocol.ClientFactory) ([]protocol.Client, error) {
	clients := make([]protocol.Client, 0, len(factories))
	fail := func(err error) ([]protocol.Client, error) {
		if stopErr := d.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return nil, err
	}

	for _, f := range factories {
		c, err := d.RegisterFactory(ctx, f)
		if err != nil {
			return fail(fmt.Errorf("registering %T: %w", f, err))
		}
		clients = append(clients, c)
	}
	if err := d.Start(ctx); err != nil {
		return fail(fmt.Errorf("starting protocol clients: %w", err))
	}
	return clients, nil
}

// healthCheck verifies every enabled component is healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
