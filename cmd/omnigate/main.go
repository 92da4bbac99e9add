// OmniLock Gateway - Electronic Lock Fleet Gateway
//
// This is the main entry point for the OmniLock gateway. The gateway
// terminates TCP connections from GPS-tracking electronic locks, decodes
// their line protocol, and exposes the fleet over:
//   - An HTTP management API (device list, unlock, position, metrics)
//   - Webhook fan-out of sign-in, heartbeat and position events
//   - An optional MQTT mirror for event streaming and remote commands
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/omni-lock-gateway/internal/api"
	"github.com/nerrad567/omni-lock-gateway/internal/gateway"
	"github.com/nerrad567/omni-lock-gateway/internal/infrastructure/config"
	"github.com/nerrad567/omni-lock-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/omni-lock-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/omni-lock-gateway/internal/telemetry"
	"github.com/nerrad567/omni-lock-gateway/internal/webhook"
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
	log.Info("starting OmniLock gateway",
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

	// Session registry and per-device telemetry
	registry := gateway.NewRegistry()
	registry.SetLogger(log)
	collector := telemetry.NewCollector()

	// Webhook fan-out
	webhookClient := webhook.New(webhook.Config{
		Endpoint:   cfg.Webhook.Endpoint,
		AuthHeader: cfg.Webhook.AuthHeader,
		Timeout:    time.Duration(cfg.Webhook.Timeout) * time.Second,
	})
	webhookClient.SetOnError(func(err error) {
		log.Error("webhook delivery failed", "error", err)
	})
	defer func() {
		log.Info("draining webhook deliveries")
		if closeErr := webhookClient.Close(); closeErr != nil {
			log.Error("error closing webhook client", "error", closeErr)
		}
	}()
	log.Info("webhook client ready", "endpoint", cfg.Webhook.Endpoint)

	publishers := gateway.MultiPublisher{webhookClient}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
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

		// Mirror events to the broker and accept commands from it
		mirror := mqtt.NewMirror(mqttClient, registry, byte(cfg.MQTT.QoS))
		mirror.SetLogger(log)
		if startErr := mirror.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT mirror: %w", startErr)
		}
		publishers = append(publishers, mirror)
		log.Info("MQTT mirror started", "qos", cfg.MQTT.QoS)
	} else {
		log.Info("MQTT mirror disabled")
	}

	// Start the device-facing TCP listener
	gatewayAddr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	gatewayServer := gateway.NewServer(gatewayAddr, gateway.SessionDeps{
		Registry:  registry,
		Publisher: publishers,
		Recorder:  collector,
		Logger:    log,
	})
	if err := gatewayServer.Start(); err != nil {
		return fmt.Errorf("starting gateway listener: %w", err)
	}
	defer func() {
		log.Info("stopping gateway listener")
		if closeErr := gatewayServer.Close(); closeErr != nil {
			log.Error("error closing gateway listener", "error", closeErr)
		}
	}()
	log.Info("gateway listening", "address", gatewayServer.Addr())

	// Start the HTTP management API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Registry:  registry,
		Telemetry: collector,
		Gateway:   gatewayServer,
		MQTT:      mqttClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Gateway listener (closes device sessions)
	// 3. MQTT (if enabled)
	// 4. Webhook client (drains in-flight deliveries)

	log.Info("OmniLock gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OMNILOCK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OMNILOCK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mqttClient: MQTT client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, mqttClient *mqtt.Client) error {
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}
