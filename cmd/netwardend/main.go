// Command netwardend is the main executable for the NetWarden backend
// service. It initializes the database, device registry, alert manager,
// guardrails engine, and monitor scheduler, serves the HTTP API, and
// handles graceful shutdown when terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netwarden/internal/alerts"
	"netwarden/internal/api"
	"netwarden/internal/config"
	"netwarden/internal/database"
	"netwarden/internal/guardrails"
	"netwarden/internal/models"
	"netwarden/internal/monitor"
	"netwarden/internal/registry"
)

// Global variables for command line flags
var logLevelFlag string

// parseFlags parses command line flags and returns the config path
func parseFlags() string {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	return *configPath
}

// buildNotifiers assembles notification sinks from configuration
func buildNotifiers(cfg *config.Config) []alerts.Notifier {
	sinks := []alerts.Notifier{alerts.NewLogNotifier()}

	for _, url := range cfg.Notifications.WebhookURLs {
		sinks = append(sinks, alerts.NewWebhookNotifier(url))
	}
	if len(cfg.Notifications.ShoutrrrURLs) > 0 {
		sinks = append(sinks, alerts.NewShoutrrrNotifier(cfg.Notifications.ShoutrrrURLs))
	}

	return sinks
}

func main() {
	configPath := parseFlags()

	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(logLevelFlag)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use colored console output for development
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("Starting NetWarden")

	// Load configuration
	cfg := config.GetConfig()
	if err := cfg.LoadConfig(configPath); err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	// Initialize database
	log.Info().Str("path", cfg.Database.Path).Msg("Initializing database")
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Restore the device registry from storage
	reg := registry.New(db)
	if err := reg.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load device registry")
	}

	// Alert manager with configured notification sinks
	alertManager := alerts.NewManager(db, buildNotifiers(cfg)...)

	// Guardrails engine. The executor binding point is where a vendor
	// command layer plugs in; until one is wired, confirmed actions are
	// logged and reported back without touching devices.
	threshold, err := models.ParseRiskLevel(cfg.Guardrails.ConfirmThreshold)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid confirmation threshold")
	}

	classifier := guardrails.NewClassifier(cfg.Guardrails.BlockedCommands)
	pendingStore := guardrails.NewPendingStore(cfg.GetPendingTTL())
	executor := guardrails.ExecutorFunc(func(tool string, params map[string]string) (string, error) {
		log.Info().Str("tool", tool).Interface("params", params).Msg("Executing approved action")
		return fmt.Sprintf("action %s dispatched", tool), nil
	})
	engine := guardrails.NewEngine(classifier, pendingStore, executor, threshold)

	// Monitor scheduler
	scheduler := monitor.New(reg, alertManager, monitor.NewNetProber(), monitor.Options{
		TickInterval:        cfg.GetTickInterval(),
		ProbeTimeout:        cfg.GetProbeTimeout(),
		MaxConcurrentProbes: cfg.Monitor.MaxConcurrentProbes,
		StopTimeout:         cfg.GetStopTimeout(),
	})

	if cfg.Monitor.Enabled {
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start monitor scheduler")
		}
	}

	// Initialize router and API handlers
	router := mux.NewRouter()

	deviceHandler := api.NewDeviceHandler(reg, alertManager, scheduler)
	alertHandler := api.NewAlertHandler(alertManager)
	actionHandler := api.NewActionHandler(engine)
	monitorHandler := api.NewMonitorHandler(scheduler, reg)

	deviceHandler.RegisterRoutes(router)
	alertHandler.RegisterRoutes(router)
	actionHandler.RegisterRoutes(router)
	monitorHandler.RegisterRoutes(router)

	// Set up CORS
	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	// Set up HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	log.Info().Str("signal", sig.String()).Msg("Received termination signal")

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown HTTP server
	log.Info().Msg("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop the monitor scheduler
	if scheduler.IsRunning() {
		log.Info().Msg("Stopping monitor scheduler")
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("Monitor scheduler shutdown failed")
		}
	}

	// Let in-flight notifications finish
	alertManager.Drain()

	log.Info().Msg("NetWarden has been shut down gracefully")
}
