package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"drainwatch/internal/api"
	"drainwatch/internal/api/handlers"
	"drainwatch/internal/banner"
	"drainwatch/internal/config"
	"drainwatch/internal/enrichment"
	"drainwatch/internal/ingestion"
	"drainwatch/internal/metrics"
	"drainwatch/internal/normalize"
	"drainwatch/internal/parser/router"
	"drainwatch/internal/report"

	"github.com/pterm/pterm"
	flag "github.com/spf13/pflag"
)

func main() {
	checkOnly := flag.Bool("check", false, "validate configuration and exit")
	envFile := flag.String("env-file", "", "load environment from this file instead of .env")
	flag.Parse()

	// Initialize logger with INFO level as a sensible default.
	// We'll reconfigure the level after loading the configuration (LOG_LEVEL)
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)

	// Load configuration from .env file and environment variables
	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.WithCaller().Fatal("Failed to load configuration", logger.Args("error", err))
	}

	if *checkOnly {
		if err := cfg.Validate(); err != nil {
			logger.Error("Configuration check failed", logger.Args("error", err))
			os.Exit(1)
		}
		logger.Info("Configuration OK", logger.Args("destinations", len(cfg.Destinations)))
		return
	}

	// Print banner
	banner.Print()

	logger.Info("Initializing DrainWatch...")

	// Apply configured log level from environment variable LOG_LEVEL (default: info)
	// Supported values: trace, debug, info, warn, error, fatal
	lvl := strings.ToLower(cfg.LogLevel)
	var ptermLevel pterm.LogLevel
	switch lvl {
	case "trace":
		ptermLevel = pterm.LogLevelTrace
	case "debug":
		ptermLevel = pterm.LogLevelDebug
	case "info":
		ptermLevel = pterm.LogLevelInfo
	case "warn", "warning":
		ptermLevel = pterm.LogLevelWarn
	case "error":
		ptermLevel = pterm.LogLevelError
	case "fatal":
		ptermLevel = pterm.LogLevelFatal
	default:
		ptermLevel = pterm.LogLevelInfo
	}
	logger = pterm.DefaultLogger.WithLevel(ptermLevel)
	logger.Debug("Log level set", logger.Args("level", lvl))

	logger.Debug("Configuration loaded",
		logger.Args(
			"destinations", len(cfg.Destinations),
			"server_port", cfg.Server.Port,
			"geoip_enabled", cfg.GeoIP.Enabled,
			"graphite_enabled", cfg.Metrics.Enabled,
		))

	// Build the destination mapping. It is immutable after this point.
	mapping, err := report.NewMapping(cfg.Destinations)
	if err != nil {
		logger.WithCaller().Fatal("Invalid destination mapping", logger.Args("error", err))
	}
	if mapping.Len() == 0 {
		logger.WithCaller().Fatal("No destinations configured",
			logger.Args("hint", "set DRAIN_MAPPING_* variables (token|environment|dsn)"))
	}

	// One sender per destination, constructed up front so a bad DSN fails
	// at startup rather than on the first timeout.
	dispatcher, err := report.NewDispatcher(mapping, report.Options{
		SendTimeout: cfg.Dispatch.SendTimeout,
		RateEvery:   cfg.Dispatch.RateEvery,
		RateBurst:   cfg.Dispatch.RateBurst,
		Debug:       cfg.Dispatch.Debug,
	}, logger)
	if err != nil {
		logger.WithCaller().Fatal("Failed to initialize dispatcher", logger.Args("error", err))
	}
	logger.Info("Dispatcher ready", logger.Args("destinations", mapping.Len()))

	// Path normalizer, optionally extended from a patterns file.
	normalizer, err := normalize.New(logger, cfg.Pipeline.PatternsFile)
	if err != nil {
		logger.WithCaller().Fatal("Failed to load normalization patterns", logger.Args("error", err))
	}

	watcherDone := make(chan struct{})
	if cfg.Pipeline.PatternsFile != "" {
		if err := normalizer.Watch(watcherDone); err != nil {
			logger.Warn("Patterns file watcher failed, hot reload disabled", logger.Args("error", err))
		} else {
			logger.Info("Watching normalization patterns", logger.Args("file", cfg.Pipeline.PatternsFile))
		}
	}

	// Initialize GeoIP enricher (optional - reports work without it)
	var geoIP *enrichment.GeoIPEnricher
	if cfg.GeoIP.Enabled {
		logger.Debug("Initializing GeoIP enricher...")
		geoIP, err = enrichment.NewGeoIPEnricher(cfg.GeoIP.CityDBPath, logger)
		if err != nil {
			logger.Warn("GeoIP enricher initialization failed, continuing without GeoIP", logger.Args("error", err))
			geoIP = nil
		} else {
			logger.Info("GeoIP enrichment enabled")
		}
	} else {
		logger.Info("GeoIP enrichment disabled by configuration")
	}

	// Initialize Graphite forwarding (optional)
	var graphite *metrics.GraphiteClient
	var forwarder *metrics.Forwarder
	metricsDone := make(chan struct{})
	if cfg.Metrics.Enabled {
		logger.Debug("Initializing Graphite forwarder...")
		graphite = metrics.NewGraphiteClient(cfg.Metrics.APIKey, cfg.Metrics.Endpoint, logger)
		forwarder = metrics.NewForwarder(graphite, 0, logger)
		go forwarder.Run(metricsDone)
		logger.Info("Graphite forwarding enabled")
	} else {
		logger.Info("Graphite forwarding disabled by configuration")
	}

	// Wire the processing pipeline
	logger.Debug("Initializing processor...")
	processor := ingestion.NewProcessor(
		router.NewParser(logger),
		normalizer,
		mapping,
		dispatcher,
		forwarder,
		geoIP,
		logger,
		cfg.Pipeline.WorkerPoolSize,
	)

	// Periodic stats logging so a quiet drain is distinguishable from a
	// wedged one.
	statsDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-statsDone:
				return
			case <-ticker.C:
				s := processor.Stats()
				logger.Info("Pipeline stats",
					logger.Args(
						"frames_seen", s.FramesSeen,
						"timeouts", s.Timeouts,
						"dispatched", s.Dispatched,
						"dispatch_failed", s.DispatchFailed,
					))
			}
		}
	}()

	// Initialize web server with configured settings
	logger.Info("Initializing web server...")
	drainHandler := handlers.NewDrainHandler(processor, logger)
	statsHandler := handlers.NewStatsHandler(processor, logger)
	webServer := api.NewServer(&api.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Production: cfg.Server.Production,
	}, drainHandler, statsHandler, logger)

	// Start web server in goroutine
	go func() {
		if err := webServer.Run(); err != nil {
			logger.WithCaller().Error("Web server error", logger.Args("error", err))
		}
	}()

	logger.Info("DrainWatch is running",
		logger.Args(
			"url", pterm.Sprintf("http://localhost:%d", cfg.Server.Port),
			"destinations", mapping.Len(),
		))

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutdown signal received, stopping services...")

	// Stop the web server first so no new batches arrive.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownGrace)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.WithCaller().Error("Web server shutdown error", logger.Args("error", err))
	} else {
		logger.Info("Web server stopped successfully")
	}

	// Drain in-flight batches, then flush pending reports.
	logger.Debug("Draining in-flight batches...")
	if !processor.Wait(cfg.Pipeline.ShutdownGrace) {
		logger.Warn("Timed out waiting for in-flight batches")
	}
	dispatcher.Flush(cfg.Dispatch.SendTimeout)

	// Stop the stats loop, pattern watcher and metrics forwarder.
	close(statsDone)
	close(watcherDone)
	close(metricsDone)
	if forwarder != nil {
		forwarder.Shutdown(10 * time.Second)
	}

	if geoIP != nil {
		geoIP.Close()
	}

	stats := processor.Stats()
	logger.Info("DrainWatch stopped gracefully",
		logger.Args(
			"frames_seen", stats.FramesSeen,
			"timeouts", stats.Timeouts,
			"dispatched", stats.Dispatched,
		))
}
