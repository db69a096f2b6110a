package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/events"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/internal/probe"
)

// Version information
const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	device := flag.String("device", "/dev/video0", "Camera device (ignored with -config)")
	width := flag.Int("width", 1280, "Requested width (ignored with -config)")
	height := flag.Int("height", 720, "Requested height (ignored with -config)")
	fps := flag.Int("fps", 30, "Requested frame rate (ignored with -config)")
	orientation := flag.Int("orientation", 0, "Sensor orientation: 0, 90, 180, 270 (ignored with -config)")
	frontFacing := flag.Bool("front-facing", false, "Camera faces the user (ignored with -config)")
	displayRotation := flag.Int("display-rotation", -1, "Display rotation: 0, 90, 180, 270 (SIGUSR1 rotates by 90)")
	driver := flag.String("driver", "gst", "Camera subsystem: gst, fake")
	listDevices := flag.Bool("list", false, "List video devices and exit")
	maxFrames := flag.Int("max-frames", 0, "Stop after this many frames (0 = unlimited)")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = unlimited)")
	statsInterval := flag.Int("stats-interval", 10, "Seconds between stats reports")
	jsonLogs := flag.Bool("json", false, "Log as JSON")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("camera-session %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if *listDevices {
		devices := probe.New(nil, logger).List()
		if len(devices) == 0 {
			fmt.Println("No video devices found")
			return
		}
		for _, d := range devices {
			fmt.Printf("  %-20s %s\n", d.ID, d.Label)
		}
		return
	}

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{
			InstanceID: "camera-session",
			Camera: config.CameraConfig{
				Device:      *device,
				Orientation: *orientation,
				FrontFacing: *frontFacing,
			},
			Capture: config.CaptureConfig{Width: *width, Height: *height, FPS: *fps},
		}
		config.ApplyEnv(cfg, os.LookupEnv)
		if err := config.Validate(cfg); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}
	if *displayRotation >= 0 {
		cfg.Camera.DisplayRotation = *displayRotation
	}

	backend, err := newBackend(*driver, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up %s driver: %v", *driver, err)
	}

	eventsHandler, emitter := buildEvents(cfg, logger)

	rotation := &camerasession.AtomicRotation{}
	rotation.Set(cfg.Camera.DisplayRotation)

	recorder := metrics.NewRecorder(logger)
	observer := newFrameObserver(backend.source, logger)

	fmt.Printf("\n")
	fmt.Printf("Camera Session - Orion 2.0 Module %s\n", version)
	fmt.Printf("  Driver:           %s\n", *driver)
	fmt.Printf("  Device:           %s\n", cfg.Camera.Device)
	fmt.Printf("  Requested:        %dx%d@%d\n", cfg.Capture.Width, cfg.Capture.Height, cfg.Capture.FPS)
	fmt.Printf("  Orientation:      %d (front facing: %v)\n", cfg.Camera.Orientation, cfg.Camera.FrontFacing)
	fmt.Printf("  Display Rotation: %d\n", cfg.Camera.DisplayRotation)
	fmt.Printf("\n")

	capturer, err := camerasession.NewCapturer(camerasession.CapturerConfig{
		CameraID:    cfg.Camera.Device,
		Width:       cfg.Capture.Width,
		Height:      cfg.Capture.Height,
		Framerate:   cfg.Capture.FPS,
		Manager:     backend.manager,
		FrameSource: backend.source,
		Observer:    observer,
		Events:      eventsHandler,
		Rotation:    rotation,
		Metrics:     recorder,
		StatsPeriod: cfg.Capture.StatsInterval(),
		Logger:      logger,
		Retry: camerasession.RetryConfig{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			RetryDelay:    time.Duration(cfg.Retry.RetryDelayMs) * time.Millisecond,
			MaxRetryDelay: time.Duration(cfg.Retry.MaxRetryDelayMs) * time.Millisecond,
		},
	})
	if err != nil {
		log.Fatalf("Failed to create capturer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

	backend.run(ctx)

	slog.Info("Starting camera session...")
	session, err := capturer.Start(ctx)
	if err != nil {
		capturer.Stop()
		closeEvents(emitter)
		log.Fatalf("Failed to start camera session: %v", err)
	}
	format, _ := session.Format()
	slog.Info("Camera session started", "session_id", session.ID(), "format", format.String())

	fmt.Printf("Press Ctrl+C to stop gracefully\n\n")

	if *statsInterval <= 0 {
		*statsInterval = 10
	}
	statsTicker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
	defer statsTicker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

loop:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGUSR1 {
				next := (rotation.CurrentRotation() + 90) % 360
				rotation.Set(next)
				slog.Info("Display rotated", "rotation", next)
				continue
			}
			fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
			break loop

		case <-deadline:
			fmt.Printf("\nDuration %s elapsed, stopping...\n", *duration)
			break loop

		case <-observer.frameSignal:
			if *maxFrames > 0 && observer.count() >= uint64(*maxFrames) {
				fmt.Printf("\nReached maximum frames (%d), stopping...\n", *maxFrames)
				break loop
			}

		case <-statsTicker.C:
			printStats(session.Stats(), backend)
		}
	}

	cancel()
	slog.Info("Stopping camera session...")
	capturer.Stop()
	closeEvents(emitter)

	printFinal(session.Stats(), recorder, backend)
	slog.Info("Camera session completed")
}

func buildEvents(cfg *config.Config, logger *slog.Logger) (camerasession.EventsHandler, *events.Emitter) {
	handlers := events.Multi{events.NewLogHandler(logger)}

	var sinks []events.Sink
	if cfg.Events.MQTT.Broker != "" {
		sink, err := events.DialMQTT(events.MQTTConfig{
			Broker:   cfg.Events.MQTT.Broker,
			ClientID: cfg.InstanceID + "-camera",
			Topic:    cfg.Events.MQTT.Topic,
			QoS:      cfg.Events.MQTT.QoS,
		}, logger)
		if err != nil {
			slog.Warn("MQTT events disabled", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if cfg.Events.WebSocketURL != "" {
		sink, err := events.DialWebSocket(cfg.Events.WebSocketURL, logger)
		if err != nil {
			slog.Warn("Websocket events disabled", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if len(sinks) == 0 {
		return handlers, nil
	}

	emitter, err := events.NewEmitter(cfg.InstanceID, cfg.Camera.Device, cfg.Events.QueueSize, logger, sinks...)
	if err != nil {
		slog.Warn("Event publishing disabled", "error", err)
		return handlers, nil
	}
	return append(handlers, emitter), emitter
}

func closeEvents(emitter *events.Emitter) {
	if emitter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := emitter.Close(ctx); err != nil {
		slog.Warn("Events not fully drained", "error", err)
	}
	s := emitter.Stats()
	slog.Info("Events published", "published", s.Published, "dropped", s.Dropped, "failed", s.Failed)
}

func printStats(stats camerasession.SessionStats, b *backend) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Session Statistics (Uptime: %s)\n", stats.Uptime.Round(time.Second))
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ State:              %6s\n", stats.State)
	fmt.Printf("│ Format:             %s\n", stats.Format)
	fmt.Printf("│ Frames Delivered:   %6d frames\n", stats.FramesDelivered)
	fmt.Printf("│ Frames Discarded:   %6d frames\n", stats.FramesDiscarded)
	fmt.Printf("│ Capture Failures:   %6d\n", stats.CaptureFailures)
	fmt.Printf("│ First Frame After:  %6d ms\n", stats.StartLatency.Milliseconds())
	if b.errorCounts != nil {
		counts := b.errorCounts()
		total := uint64(0)
		for _, c := range counts {
			total += c
		}
		if total > 0 {
			fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
			fmt.Printf("│ Pipeline Errors\n")
			for name, c := range counts {
				if c > 0 {
					fmt.Printf("│   %-16s  %6d\n", name, c)
				}
			}
		}
	}
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
	fmt.Printf("\n")
}

func printFinal(stats camerasession.SessionStats, recorder *metrics.Recorder, b *backend) {
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Session:            %s\n", stats.SessionID)
	fmt.Printf("  Total Uptime:       %s\n", stats.Uptime.Round(time.Second))
	fmt.Printf("  Frames Delivered:   %d frames\n", stats.FramesDelivered)
	fmt.Printf("  Frames Discarded:   %d frames\n", stats.FramesDiscarded)
	fmt.Printf("  Capture Failures:   %d\n", stats.CaptureFailures)
	if b.frameCounters != nil {
		received, dropped := b.frameCounters()
		fmt.Printf("  Samples Received:   %d\n", received)
		fmt.Printf("  Samples Dropped:    %d (slot busy)\n", dropped)
	}
	fmt.Printf("─────────────────────────────────────────────────────────\n")
	for _, s := range recorder.Summaries() {
		fmt.Printf("  %s (recent: mean %.1f, p95 %.1f, max %.1f)\n", s.Histogram.Name, s.Mean, s.P95, s.Max)
		fmt.Print(s.Histogram.String())
	}
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
}
