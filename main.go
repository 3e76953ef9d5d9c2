// Mediagen is an asynchronous media generation service. Clients submit
// prompts over HTTP, workers drive a text-to-image provider and store the
// resulting artifacts, and job state is tracked through a strict lifecycle
// with retries and cancellation.
//
// The binary ships two entry points:
//   - mediagen serve: the HTTP API and readiness probes
//   - mediagen worker: the task consumer that talks to the provider and
//     the storage backend, plus the cron scheduler for maintenance tasks
//
// Usage:
//
//	mediagen serve --config config.yaml [--debug]
//	mediagen worker --config config.yaml [--debug]
//
// Configuration comes from a YAML file layered with environment overrides
// (DATABASE_URL, BROKER_URL, REPLICATE_API_TOKEN, ...). The serve process
// reloads the file on SIGHUP and on file changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjacquet/mediagen/internal/config"
	"github.com/fjacquet/mediagen/internal/logging"
	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/provider"
	"github.com/fjacquet/mediagen/internal/queue"
	"github.com/fjacquet/mediagen/internal/repository"
	"github.com/fjacquet/mediagen/internal/scheduler"
	"github.com/fjacquet/mediagen/internal/server"
	"github.com/fjacquet/mediagen/internal/service"
	"github.com/fjacquet/mediagen/internal/storage"
	"github.com/fjacquet/mediagen/internal/telemetry"
	"github.com/fjacquet/mediagen/internal/worker"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	programName     = "mediagen"        // Application name
	programVersion  = "1.0.0"           // Reported as the OTel service version
	shutdownTimeout = 10 * time.Second  // Maximum time to wait for graceful shutdown
	connectTimeout  = 10 * time.Second  // Startup timeout for database and broker dial
)

var (
	configFile string
	debug      bool
)

// app holds the shared dependencies both subcommands build on top of:
// configuration, database, broker and the telemetry manager. Subcommand
// runners assemble their own services from these.
type app struct {
	cfg              models.Config
	db               *sqlx.DB
	broker           *queue.Client
	telemetryManager *telemetry.Manager // nil when OpenTelemetry is disabled
}

// setup loads the configuration, prepares logging and dials the database
// and the broker. Both subcommands need all of these, so failures here are
// fatal before any work starts.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := setupLogging(cfg, debug); err != nil {
		return nil, err
	}

	log.Infof("Starting %s %s (%s)", programName, programVersion, cfg.AppEnv)
	log.Infof("Provider model: %s", cfg.Provider.Model)
	if debug {
		log.Infof("API token: %s", cfg.MaskAPIToken())
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := repository.Connect(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	broker, err := queue.NewClient(cfg.Broker.URL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("broker connection failed: %w", err)
	}
	if err := broker.Ping(dialCtx); err != nil {
		_ = db.Close()
		_ = broker.Close()
		return nil, fmt.Errorf("broker unreachable: %w", err)
	}

	a := &app{cfg: cfg, db: db, broker: broker}

	if cfg.OpenTelemetry.Enabled {
		a.telemetryManager = telemetry.NewManager(telemetry.Config{
			Enabled:        cfg.OpenTelemetry.Enabled,
			Endpoint:       cfg.OpenTelemetry.Endpoint,
			Insecure:       cfg.OpenTelemetry.Insecure,
			SamplingRate:   cfg.OpenTelemetry.SamplingRate,
			ServiceName:    programName,
			ServiceVersion: programVersion,
			ProviderModel:  cfg.Provider.Model,
		})
	}

	return a, nil
}

// initTelemetry initializes OpenTelemetry and returns the TracerProvider to
// inject into components, or nil when tracing is disabled or failed to come
// up. Telemetry failures never block startup.
func (a *app) initTelemetry(ctx context.Context) trace.TracerProvider {
	if a.telemetryManager == nil {
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := a.telemetryManager.Initialize(initCtx); err != nil {
		log.Warnf("Failed to initialize OpenTelemetry: %v. Continuing without tracing.", err)
	}
	if !a.telemetryManager.IsEnabled() {
		return nil
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("OpenTelemetry trace context propagation configured")
	return a.telemetryManager.TracerProvider()
}

// close releases the shared dependencies. Telemetry is flushed first so
// spans from in-flight work reach the collector before connections drop.
func (a *app) close() {
	if a.telemetryManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.telemetryManager.Shutdown(ctx); err != nil {
			log.Warnf("Telemetry shutdown warning: %v", err)
		}
		cancel()
	}
	if err := a.broker.Close(); err != nil {
		log.Warnf("Broker close warning: %v", err)
	}
	if err := a.db.Close(); err != nil {
		log.Warnf("Database close warning: %v", err)
	}
}

// runServe starts the HTTP API and the configuration watchers, then blocks
// until a shutdown signal or a server error.
//
// Shutdown order:
//  1. Shut down the HTTP server (drain in-flight requests)
//  2. Close shared dependencies (flush telemetry, then broker and database)
func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	migrateCtx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
	err = repository.Migrate(migrateCtx, a.db)
	cancel()
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	_ = a.initTelemetry(cmd.Context())

	jobs := service.NewJobService(repository.NewJobRepository(a.db), a.broker, a.cfg)
	backend, err := storage.New(a.cfg)
	if err != nil {
		return fmt.Errorf("storage backend init failed: %w", err)
	}
	media := service.NewMediaService(repository.NewMediaRepository(a.db), backend)

	srv := server.New(a.cfg, jobs, media, map[string]server.HealthChecker{
		"database": func(ctx context.Context) error { return a.db.PingContext(ctx) },
		"broker":   a.broker.Ping,
	})

	// Buffered so the goroutine can report an error even before the
	// select below starts listening.
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	watchConfig(jobs)

	if err := waitForShutdown(serverErrChan); err != nil {
		log.Errorf("Server error: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	log.Info("Server stopped gracefully")
	return nil
}

// runWorker starts the task consumer and the cleanup scheduler, then blocks
// until a shutdown signal. Cancelling the context stops the queue consumers;
// tasks claimed but not yet acknowledged are redelivered after their lease
// expires.
func runWorker(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	tracerProvider := a.initTelemetry(cmd.Context())

	var providerOpts []provider.Option
	var workerOpts []worker.Option
	if tracerProvider != nil {
		providerOpts = append(providerOpts, provider.WithTracerProvider(tracerProvider))
		workerOpts = append(workerOpts, worker.WithTracerProvider(tracerProvider))
	}

	providerClient, err := provider.New(a.cfg, providerOpts...)
	if err != nil {
		return fmt.Errorf("provider init failed: %w", err)
	}

	backend, err := storage.New(a.cfg)
	if err != nil {
		return fmt.Errorf("storage backend init failed: %w", err)
	}

	jobs := service.NewJobService(repository.NewJobRepository(a.db), a.broker, a.cfg)
	media := repository.NewMediaRepository(a.db)

	w := worker.New(jobs, media, backend, providerClient, a.broker, a.cfg, workerOpts...)

	sched, err := scheduler.New(a.broker)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	sched.Start()

	ctx, cancel := context.WithCancel(cmd.Context())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		sig := <-stop
		log.Infof("Received signal %v, stopping worker...", sig)
		cancel()
	}()

	w.Run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	sched.Stop(stopCtx)
	return nil
}

// setupLogging initializes the logging system with the configured log file.
// If debug mode is enabled, sets the log level to DEBUG for verbose output.
func setupLogging(cfg models.Config, debugMode bool) error {
	if err := logging.PrepareLogs(cfg.Server.LogName); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.SetDebug(debugMode)
	return nil
}

// watchConfig wires live configuration reload: SIGHUP and file changes both
// re-read the file and apply the settings that are safe to change at
// runtime. Settings that require a restart (listen address, database URL)
// keep their startup values.
func watchConfig(jobs *service.JobService) {
	if configFile == "" {
		return
	}

	reload := func(cfg models.Config) {
		jobs.ApplyConfig(cfg)
		log.WithFields(log.Fields{
			"maxRetries":  cfg.Retry.MaxRetries,
			"backoffBase": cfg.Retry.BackoffBase,
		}).Info("Runtime settings applied")
	}

	config.SetupSIGHUPHandler(configFile, reload)
	if _, err := config.Watch(configFile, reload); err != nil {
		log.Warnf("Configuration watch unavailable: %v", err)
	}
}

// waitForShutdown blocks until either a shutdown signal is received or a
// server error arrives on the error channel.
//
// Signals handled:
//   - SIGINT (Ctrl+C)
//   - SIGTERM (kill command)
func waitForShutdown(serverErr <-chan error) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Infof("Received signal %v, initiating graceful shutdown...", sig)
		return nil
	case err := <-serverErr:
		return err
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Asynchronous media generation service",
		Long:  "Mediagen exposes an HTTP API for submitting media generation jobs and runs workers that execute them against a text-to-image provider",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug mode")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "Run the task consumer and maintenance scheduler",
		RunE:  runWorker,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
