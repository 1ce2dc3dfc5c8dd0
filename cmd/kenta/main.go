package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Engstrom98/Kenta/internal/audio"
	"github.com/Engstrom98/Kenta/internal/config"
	"github.com/Engstrom98/Kenta/internal/diag"
	"github.com/Engstrom98/Kenta/internal/discover"
	"github.com/Engstrom98/Kenta/internal/indicator"
	"github.com/Engstrom98/Kenta/internal/input"
	"github.com/Engstrom98/Kenta/internal/metrics"
	"github.com/Engstrom98/Kenta/internal/ptt"
	"github.com/Engstrom98/Kenta/internal/transport"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "kenta-capture-client"
	serviceVersion    = "1.0.0"

	dialTimeout = 5 * time.Second
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log client startup
	logger.Info("Client starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.String("gpio_chip", cfg.Input.GPIOChip),
		slog.Int("button_offset", cfg.Input.ButtonOffset),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_samples", cfg.Audio.FrameSamples),
		slog.String("backend_service", cfg.Backend.ServiceName),
		slog.String("fallback_address", cfg.Backend.FallbackAddress),
		slog.Duration("grace_period", cfg.Session.GetGracePeriod()),
		slog.Duration("processing_deadline", cfg.Session.GetProcessingDeadline()),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Resolve the backend address once at startup
	resolver, err := discover.NewResolver(discover.Config{
		ServiceName:     cfg.Backend.ServiceName,
		Domain:          cfg.Backend.Domain,
		FallbackAddress: cfg.Backend.FallbackAddress,
		Attempts:        cfg.Backend.ResolveAttempts,
		Timeout:         cfg.Backend.GetResolveTimeout(),
		Backoff:         cfg.Backend.GetResolveBackoff(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create resolver", slog.String("error", err.Error()))
		os.Exit(1)
	}

	address, err := resolver.Resolve(ctx)
	if err != nil {
		logger.Error("Backend resolution failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize audio capture
	capture, err := audio.NewCapture(cfg.Audio.SampleRate, cfg.Audio.Device)
	if err != nil {
		logger.Error("Failed to open audio capture", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer capture.Close()

	source := audio.NewSource(capture, cfg.Audio.WarmupFrames, logger)
	if err := source.Warmup(); err != nil {
		logger.Error("Microphone warm-up failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Audio capture initialized",
		slog.Int("warmup_frames", cfg.Audio.WarmupFrames),
		slog.Duration("frame_period", cfg.Audio.FramePeriod()),
	)

	// Initialize push-to-talk button
	button, err := input.NewButton(cfg.Input.GPIOChip, cfg.Input.ButtonOffset, cfg.Input.ActiveLow)
	if err != nil {
		logger.Error("Failed to open button line", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer button.Close()

	debouncer := input.NewDebouncer(button, cfg.Input.GetDebounceInterval(), false)
	logger.Info("Button initialized",
		slog.String("gpio_chip", cfg.Input.GPIOChip),
		slog.Int("offset", cfg.Input.ButtonOffset),
		slog.Duration("debounce_interval", cfg.Input.GetDebounceInterval()),
	)

	// Initialize status indicator, falling back to log output when no LED
	// line is configured
	var ind indicator.Indicator
	if cfg.Indicator.Enabled {
		led, err := indicator.NewLED(cfg.Indicator.GPIOChip, cfg.Indicator.LEDOffset, logger)
		if err != nil {
			logger.Error("Failed to open LED line", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer led.Close()
		ind = led
	} else {
		ind = indicator.NewLog(logger)
	}

	// Initialize the transport client
	client := transport.NewClient(dialTimeout, logger)

	// Initialize the push-to-talk machine
	machine := ptt.NewMachine(ptt.Config{
		Address:            address,
		GracePeriod:        cfg.Session.GetGracePeriod(),
		AckPollTimeout:     cfg.Session.GetAckPollTimeout(),
		ProcessingDeadline: cfg.Session.GetProcessingDeadline(),
		BlinkInterval:      cfg.Indicator.GetBlinkInterval(),
		IdlePollInterval:   cfg.Input.GetIdlePollInterval(),
	}, source, client, debouncer, ind, appMetrics, logger)

	// Initialize diagnostics HTTP server (if enabled)
	var httpServer *diag.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = diag.NewHTTPServer(cfg.HTTP, logger, cfg, machine, appMetrics)
		logger.Info("Diagnostics HTTP server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Run the control loop in the background
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		machine.Run(ctx)
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Client started successfully, waiting for signals...",
		slog.String("backend_address", address),
	)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop the control loop first so no session outlives shutdown
	cancel()
	<-loopDone

	// Stop HTTP server
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	ind.Set(indicator.SignalOff)

	logger.Info("Client stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
