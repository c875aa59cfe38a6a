// Valve Core - rotary valve actuator controller
//
// This is the main entry point for the valve controller. It drives a
// quarter-turn valve through an H-bridge motor, confirms each movement on
// two limit sensors, and takes commands from:
//   - MQTT (cmd_data and control_data topics)
//   - the authenticated REST API
//   - the local websocket channel after the passkey handshake
//
// State is published to MQTT, InfluxDB (optional) and local websocket
// clients on a fixed interval.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-valve/migrations"

	"github.com/nerrad567/gray-logic-valve/internal/api"
	"github.com/nerrad567/gray-logic-valve/internal/auth"
	"github.com/nerrad567/gray-logic-valve/internal/command"
	"github.com/nerrad567/gray-logic-valve/internal/control"
	"github.com/nerrad567/gray-logic-valve/internal/hardware"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-valve/internal/schedule"
	"github.com/nerrad567/gray-logic-valve/internal/telemetry"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
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

const (
	// historyRetention is how long actuation history is kept.
	historyRetention = 90 * 24 * time.Hour

	// historyPruneInterval is how often old history is deleted.
	historyPruneInterval = 24 * time.Hour
)

// CLI is the command line of valvecore.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path." default:"${default_config}" env:"VALVECORE_CONFIG" type:"path"`
	Version kong.VersionFlag `help:"Print version information and exit."`

	Run         RunCmd         `cmd:"" default:"1" help:"Run the valve controller (default)."`
	HashPasskey HashPasskeyCmd `cmd:"" name:"hash-passkey" help:"Print the Argon2id hash of a passkey for security.passkey_hash."`
}

// RunCmd starts the controller and blocks until shutdown.
type RunCmd struct{}

// Run implements the run command.
func (RunCmd) Run(ctx context.Context, cli *CLI) error {
	return run(ctx, cli.Config)
}

// HashPasskeyCmd hashes a passkey so it never has to be stored in clear.
type HashPasskeyCmd struct {
	Passkey string `arg:"" help:"Local channel passkey to hash."`
}

// Run implements the hash-passkey command.
func (c HashPasskeyCmd) Run(out io.Writer) error {
	hash, err := auth.HashPasskey(c.Passkey)
	if err != nil {
		return fmt.Errorf("hashing passkey: %w", err)
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

// newParser builds the kong parser for cli.
func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("valvecore"),
		kong.Description("Rotary valve actuator controller."),
		kong.UsageOnError(),
		kong.Vars{
			"version":        fmt.Sprintf("valvecore %s (commit %s, built %s)", version, commit, date),
			"default_config": defaultConfigPath,
		},
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.BindTo(os.Stdout, (*io.Writer)(nil))
	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting valve core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("device_id", cfg.Device.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	repo := valve.NewSQLiteRepository(db.DB)

	// Hardware: GPIO header or the in-process model
	board, err := hardware.Open(cfg.Hardware, nil)
	if err != nil {
		return fmt.Errorf("opening hardware: %w", err)
	}
	defer func() {
		log.Info("releasing hardware")
		if closeErr := board.Close(); closeErr != nil {
			log.Error("error releasing hardware", "error", closeErr)
		}
	}()
	log.Info("hardware ready", "simulated", cfg.Hardware.Simulated)

	store := valve.NewStore()
	actuator := valve.NewActuator(board.Hardware, store,
		valve.WithLogger(log.With("component", "actuator")),
		valve.WithSpeed(cfg.Hardware.Motor.Speed),
	)
	if initErr := actuator.Init(); initErr != nil {
		return fmt.Errorf("initialising actuator: %w", initErr)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(reg)

	runner, err := schedule.New(
		schedule.WithLocation(cfg.Location()),
		schedule.WithLogger(log.With("component", "schedule")),
	)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if everyErr := runner.Every("prune-history", historyPruneInterval, func() {
		pruneHistory(ctx, repo, log)
	}); everyErr != nil {
		return fmt.Errorf("scheduling history pruning: %w", everyErr)
	}

	handler := command.New(cfg.Device.ID, store,
		command.WithRepository(repo),
		command.WithScheduler(runner),
		command.WithMetrics(recorder),
		command.WithLogger(log.With("component", "command")),
	)
	if restoreErr := handler.Restore(ctx); restoreErr != nil {
		return fmt.Errorf("restoring control config: %w", restoreErr)
	}

	runner.Start()
	defer func() {
		if stopErr := runner.Stop(); stopErr != nil {
			log.Error("error stopping scheduler", "error", stopErr)
		}
	}()

	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Device.ID)
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

	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if subErr := mqttClient.SubscribeInbound(byte(cfg.MQTT.QoS), func(_ string, payload []byte) error {
		return handler.Route(ctx, command.ChannelMQTT, payload)
	}); subErr != nil {
		return fmt.Errorf("subscribing to commands: %w", subErr)
	}
	log.Info("subscribed to commands", "topics", mqttClient.Topics().Inbound())

	// InfluxDB is optional
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	}

	loop := control.New(store, actuator,
		control.WithLogger(log.With("component", "control")),
		control.WithSchedule(runner),
		control.WithHistory(actuationSinks{deviceID: cfg.Device.ID, repo: repo, series: influxClient}),
		control.WithMetrics(recorder),
	)

	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.With("component", "api"),
		DeviceID: cfg.Device.ID,
		Version:  version,
		Store:    store,
		Commands: handler,
		Auth: auth.NewAuthenticator(cfg.Device.ID, cfg.Security.PasskeyHash, cfg.Security.JWT.Secret,
			time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute),
		History:  repo,
		Broker:   mqttClient,
		Loop:     loop,
		Schedule: runner,
		Database: db,
		Gatherer: reg,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	reporterOpts := []telemetry.Option{
		telemetry.WithInterval(cfg.GetPublishInterval()),
		telemetry.WithMQTT(mqttClient),
		telemetry.WithBroadcaster(srv.Hub()),
		telemetry.WithMetrics(recorder),
		telemetry.WithLink(actuator.Green()),
		telemetry.WithLogger(log.With("component", "telemetry")),
	}
	if influxClient != nil {
		reporterOpts = append(reporterOpts, telemetry.WithSeries(influxClient))
	}
	reporter := telemetry.New(cfg.Device.ID, store, reporterOpts...)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return reporter.Run(gctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("running controller: %w", err)
	}

	// Deferred closes run in reverse order: API, InfluxDB, MQTT,
	// scheduler, hardware, database.
	log.Info("valve core stopped")
	return nil
}

// actuationSinks records each actuation in SQLite and, when enabled, InfluxDB.
type actuationSinks struct {
	deviceID string
	repo     valve.HistoryRepository
	series   *influxdb.Client
}

// RecordActuation implements control.HistoryRecorder.
func (s actuationSinks) RecordActuation(ctx context.Context, rec valve.ActuationRecord) error {
	if s.series != nil {
		s.series.WriteActuation(s.deviceID, rec)
	}
	return s.repo.RecordActuation(ctx, rec)
}

// pruneHistory deletes actuation history older than historyRetention.
func pruneHistory(ctx context.Context, repo valve.HistoryRepository, log *logging.Logger) {
	n, err := repo.PruneActuations(ctx, historyRetention)
	if err != nil {
		log.Error("pruning actuation history failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("actuation history pruned", "deleted", n)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
