// Command rtsd runs the RTS bridge as a long-lived HTTP service that owns the
// URTSI serial port and paces every command sent to it.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/rtsbridge/internal/adapter/somfy"
	"github.com/radio-control/rtsbridge/internal/api"
	"github.com/radio-control/rtsbridge/internal/audit"
	"github.com/radio-control/rtsbridge/internal/auth"
	"github.com/radio-control/rtsbridge/internal/channel"
	"github.com/radio-control/rtsbridge/internal/command"
	"github.com/radio-control/rtsbridge/internal/config"
	"github.com/radio-control/rtsbridge/internal/telemetry"
	"github.com/radio-control/rtsbridge/internal/transport"
)

var _ command.ChannelResolver = (*channel.Registry)(nil)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config (default $RTS_CONFIG or rts.yaml)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.Log)
	log.Printf("Starting rtsd v%s", api.Version)

	enc, err := somfy.NewEncoder(cfg.Bridge.ControllerVersion)
	if err != nil {
		log.Fatalf("Failed to create encoder: %v", err)
	}

	port, err := transport.Open(transport.Config{
		Device:      cfg.Bridge.Port,
		Baud:        cfg.Bridge.BaudRate,
		ReadTimeout: cfg.Bridge.ReadTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to open %s: %v", cfg.Bridge.Port, err)
	}
	log.Printf("Opened %s (URTSI v%d, channels 1-%d)", cfg.Bridge.Port, enc.Version(), enc.MaxChannel())

	registry := channel.NewRegistry(enc.MaxChannel())
	if err := registry.LoadAliases(cfg.Channels); err != nil {
		log.Fatalf("Failed to load channel aliases: %v", err)
	}

	hub := telemetry.NewHub(telemetry.Config{
		EventBufferSize:   cfg.Telemetry.EventBufferSize,
		HeartbeatInterval: cfg.Telemetry.HeartbeatInterval,
		HeartbeatJitter:   cfg.Telemetry.HeartbeatJitter,
	})

	queue := command.NewPacingQueue(enc, port,
		command.WithMinInterval(cfg.Timing.MinInterval),
		command.WithLogger(log.Default()),
		command.WithOutcomeHook(func(h *command.Handle, o command.Outcome, _ bool) {
			registry.Record(o.Request.Channel, o.Request.Action.String(), o.Status.String(), time.Now())
		}),
	)
	dispatcher := command.NewDispatcher(queue, enc)
	dispatcher.SetChannelResolver(registry)
	dispatcher.SetTelemetryHub(hub)

	hub.SetSnapshotSource(func() map[string]interface{} {
		return map[string]interface{}{
			"worker":   dispatcher.State().String(),
			"pending":  dispatcher.Pending(),
			"channels": registry.List(),
		}
	})

	var auditLogger *audit.Logger
	if cfg.Log.Dir != "" {
		auditLogger, err = audit.NewLoggerWithRotation(cfg.Log.Dir, audit.Rotation{
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   true,
		})
		if err != nil {
			log.Fatalf("Failed to initialize audit logger: %v", err)
		}
		dispatcher.SetAuditLogger(auditLogger)
		log.Printf("Audit log: %s", auditLogger.GetFilePath())
	}

	server := api.NewServer(dispatcher, registry, hub, cfg.Server)
	server.SetAwaitTimeout(cfg.Timing.AwaitTimeout)
	if auditLogger != nil {
		server.SetAuditLogger(auditLogger)
	}
	if cfg.Auth.Enabled {
		verifier, err := auth.NewVerifier(auth.VerifierConfig{
			Algorithm:    cfg.Auth.Algorithm,
			SecretKey:    cfg.Auth.SecretKey,
			PublicKeyPEM: cfg.Auth.PublicKeyPEM,
			Leeway:       30 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to create token verifier: %v", err)
		}
		server.SetAuthMiddleware(auth.NewMiddleware(verifier))
		log.Printf("Authentication enabled (%s)", cfg.Auth.Algorithm)
	} else {
		log.Printf("Authentication disabled; all requests run as %q", auth.Anonymous.Subject)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", cfg.Server.Addr)
		serverErr <- server.Start(cfg.Server.Addr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-shutdown:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timing.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}

	// Cancels queued commands, lets the in-flight write finish, then closes the port.
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Printf("Dispatcher shutdown: %v", err)
		exitCode = 1
	}

	hub.Stop()
	if auditLogger != nil {
		if err := auditLogger.Close(); err != nil {
			log.Printf("Error closing audit logger: %v", err)
		}
	}

	log.Println("rtsd shutdown complete")
	os.Exit(exitCode)
}

// setupLogging tees the standard logger into a rotating file when a log
// directory is configured.
func setupLogging(cfg config.LogConfig) {
	if cfg.Dir == "" {
		return
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "rtsd.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}))
}
