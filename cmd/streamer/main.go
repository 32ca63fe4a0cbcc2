package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nicolasperez19/passive-sound-localization/internal/config"
	"github.com/nicolasperez19/passive-sound-localization/internal/device"
	"github.com/nicolasperez19/passive-sound-localization/internal/metrics"
	"github.com/nicolasperez19/passive-sound-localization/internal/server"
	"github.com/nicolasperez19/passive-sound-localization/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "passive-sound-localization"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	mode := flag.String("mode", "mixed", "Output mode: mixed (averaged mono PCM on stdout) or multi (per-device frames)")
	listDevices := flag.Bool("list-devices", false, "List available input devices and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *mode != "mixed" && *mode != "multi" {
		fmt.Fprintf(os.Stderr, "Unknown mode %q, expected mixed or multi\n", *mode)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration. In mixed mode stdout
	// carries raw PCM, so logs are forced away from it.
	logger := initLogger(cfg.Logging, *mode == "mixed")

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
		slog.String("mode", *mode),
	)

	logger.Info("Configuration loaded",
		slog.Int("target_sample_rate", cfg.Audio.TargetSampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.Int("chunk_size", cfg.Audio.ChunkSize),
		slog.Any("device_indices", cfg.Devices.Indices),
		slog.Bool("allow_partial", cfg.Devices.AllowPartial),
		slog.Bool("concurrent_reads", cfg.Devices.ConcurrentReads),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the audio host
	host, err := device.NewPortAudioHost()
	if err != nil {
		logger.Error("Failed to initialize audio host", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the capture coordinator; it takes ownership of the host
	coordConfig := stream.Config{
		TargetSampleRate: cfg.Audio.TargetSampleRate,
		Channels:         cfg.Audio.Channels,
		ChunkSize:        cfg.Audio.ChunkSize,
		DeviceIndices:    cfg.Devices.Indices,
		AllowPartial:     cfg.Devices.AllowPartial,
		ConcurrentReads:  cfg.Devices.ConcurrentReads,
		ReadTimeout:      cfg.Devices.GetReadTimeoutDuration(),
	}
	coordinator, err := stream.NewCoordinator(coordConfig, host, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create coordinator", slog.String("error", err.Error()))
		host.Close()
		os.Exit(1)
	}

	if err := coordinator.Start(); err != nil {
		logger.Error("Failed to start capture", slog.String("error", err.Error()))
		host.Close()
		os.Exit(1)
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, coordinator, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			coordinator.Stop()
			os.Exit(1)
		}
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Setup signal handling for graceful shutdown. Stopping the
	// coordinator exhausts the consume loop below.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		coordinator.Stop()
	}()

	logger.Info("Capture started")

	// Consume the stream until the coordinator is stopped
	switch *mode {
	case "mixed":
		err = consumeMixed(coordinator)
	case "multi":
		consumeMulti(coordinator, logger)
	}
	if err != nil {
		logger.Error("Output error, shutting down", slog.String("error", err.Error()))
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the coordinator (idempotent; closes sessions and the host)
	coordinator.Stop()

	// Get final statistics
	status := coordinator.Status()
	logger.Info("Final capture statistics",
		slog.Uint64("cycles", status.Cycles),
		slog.Uint64("empty_cycles", status.EmptyCycles),
		slog.Uint64("frames_yielded", status.FramesYielded),
		slog.Uint64("mixed_chunks_yielded", status.MixedChunksYielded),
	)

	logger.Info("Service stopped")
}

// consumeMixed writes the averaged mono stream to stdout as little-endian
// 16-bit PCM, the format downstream localization tooling reads.
func consumeMixed(coordinator *stream.Coordinator) error {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for chunk := range coordinator.Mixed() {
		if _, err := out.Write(chunk.Bytes()); err != nil {
			return fmt.Errorf("write mixed chunk: %w", err)
		}
	}
	return nil
}

// consumeMulti logs per-device frame coverage; a localization pipeline
// would consume the per-device chunks here instead.
func consumeMulti(coordinator *stream.Coordinator, logger *slog.Logger) {
	var count uint64
	for frame := range coordinator.Frames() {
		count++
		if count%100 == 0 {
			logger.Info("Multi-channel frames flowing",
				slog.Uint64("frames", count),
				slog.Any("devices", frame.Devices),
			)
		}
	}
}

// printDevices lists the available input devices on stdout.
func printDevices() error {
	host, err := device.NewPortAudioHost()
	if err != nil {
		return err
	}
	defer host.Close()

	devices, err := host.Devices()
	if err != nil {
		return err
	}

	fmt.Println("Available input devices:")
	for _, info := range devices {
		fmt.Printf("  [%d] %s (channels: %d, native rate: %d Hz)\n",
			info.Index, info.Name, info.MaxInputChannels, info.DefaultSampleRate)
	}
	return nil
}

// initLogger creates and configures the structured logger based on
// configuration. pcmOnStdout forces logs to stderr when stdout carries
// audio data.
func initLogger(cfg config.LoggingConfig, pcmOnStdout bool) *slog.Logger {
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

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
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
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}
	if pcmOnStdout && output == os.Stdout {
		output = os.Stderr
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
