// uabridge - OPC UA to MQTT bridge
//
// uabridge mirrors a configured set of PLC tags between an OPC UA
// server and an MQTT broker. Tag values flow from OPC UA subscriptions
// to retained MQTT state topics; writes flow back from MQTT command
// topics and are confirmed by the PLC before the bridge reports them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plcwire/uabridge/internal/api"
	"github.com/plcwire/uabridge/internal/bridges/opcua"
	"github.com/plcwire/uabridge/internal/history"
	"github.com/plcwire/uabridge/internal/infrastructure/config"
	"github.com/plcwire/uabridge/internal/infrastructure/logging"
	"github.com/plcwire/uabridge/internal/infrastructure/mqtt"
	"github.com/plcwire/uabridge/internal/journal"
	"github.com/plcwire/uabridge/internal/supervisor"
	"github.com/plcwire/uabridge/internal/tags"
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

// historyBackoff bounds the reconnect loop for the history sink.
const (
	historyInitialBackoff = 5 * time.Second
	historyMaxBackoff     = 2 * time.Minute
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
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
	log.Info("starting uabridge",
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

	// Load tag definitions
	registry, err := tags.Load(cfg.Bridge.TagsFile)
	if err != nil {
		return fmt.Errorf("loading tags: %w", err)
	}
	log.Info("tag definitions loaded",
		"path", cfg.Bridge.TagsFile,
		"tags", registry.Len(),
	)

	// Open journal (optional)
	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(cfg.Journal.Path, log)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := jnl.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		log.Info("journal opened", "path", cfg.Journal.Path)
	} else {
		log.Info("journal disabled")
	}

	// Connect to MQTT broker. A broker that is down at boot is retried
	// with backoff rather than treated as fatal; once connected, the paho
	// client handles reconnection itself.
	mqttClient, err := connectMQTT(ctx, cfg.MQTT, log)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Create the OPC UA session and sync engine
	session := opcua.NewSession(cfg.OPCUA, registry, log)
	engine := opcua.NewEngine(opcua.EngineConfig{
		TopicPrefix:   cfg.MQTT.TopicPrefix,
		QoSState:      byte(cfg.MQTT.QoSState),
		QoSCommand:    byte(cfg.MQTT.QoSCommand),
		RetainStates:  cfg.MQTT.RetainStates,
		WriteTimeout:  cfg.GetWriteTimeout(),
		SweepInterval: cfg.GetSweepInterval(),
	}, registry, session, &mqttEngineAdapter{client: mqttClient}, log)

	if jnl != nil {
		engine.SetRecorder(jnl)
	}

	// Feed MQTT connection transitions into the engine's availability latch
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		engine.NotifyMQTTState(true)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		engine.NotifyMQTTState(false)
	})

	// Start the history sink (optional). The backend may be down at
	// boot, so connection runs supervised in the background and the
	// sink is attached once it comes up.
	if cfg.History.Enabled {
		startHistory(ctx, cfg.History, engine, log)
	} else {
		log.Info("history disabled")
	}

	// Start the OPC UA session and the sync engine. The command
	// subscription can fail if the broker drops between connect and
	// start; that window is retried, not fatal.
	session.Start(ctx)
	if err := retry(ctx, cfg.MQTT.Reconnect, log, "engine start", func() error {
		return engine.Start(ctx)
	}); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		log.Info("stopping engine")
		engine.Stop()
	}()
	defer func() {
		log.Info("closing OPC UA session")
		if closeErr := session.Close(); closeErr != nil {
			log.Error("error closing session", "error", closeErr)
		}
	}()
	log.Info("sync engine started",
		"topic_prefix", cfg.MQTT.TopicPrefix,
		"write_timeout", cfg.GetWriteTimeout(),
	)

	// Start the status API (optional)
	if cfg.API.Enabled {
		var js api.JournalSource
		if jnl != nil {
			js = jnl
		}
		apiServer, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Status:  engine,
			Journal: js,
			Version: version,
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
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Session, then engine (engine publishes offline before MQTT closes)
	// 3. MQTT
	// 4. Journal

	log.Info("uabridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses UABRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("UABRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT attempts the initial broker connection, retrying with
// doubling backoff until it succeeds or the context is cancelled.
func connectMQTT(ctx context.Context, cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	var client *mqtt.Client
	err := retry(ctx, cfg.Reconnect, log, "MQTT connect", func() error {
		var connErr error
		client, connErr = mqtt.Connect(cfg)
		return connErr
	})
	return client, err
}

// retry runs attempt until it succeeds, backing off between failures.
// Returns the last error once the context is cancelled.
func retry(ctx context.Context, rc config.ReconnectConfig, log *logging.Logger, what string, attempt func() error) error {
	initial, maxDelay := rc.Backoff()
	delay := initial

	for {
		err := attempt()
		if err == nil {
			return nil
		}
		log.Warn(what+" failed, retrying", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// startHistory launches the supervised history connection loop.
//
// Each attempt connects, attaches the sink to the engine, then blocks
// until shutdown. Connection failures are retried with backoff so a
// late-booting InfluxDB costs only history coverage, never bridge
// uptime.
func startHistory(ctx context.Context, cfg config.HistoryConfig, engine *opcua.Engine, log *logging.Logger) {
	sup := supervisor.New(supervisor.Config{
		Name:           "history",
		InitialBackoff: historyInitialBackoff,
		MaxBackoff:     historyMaxBackoff,
	}, func(ctx context.Context) error {
		client, err := history.Connect(cfg)
		if err != nil {
			return err
		}
		client.SetOnError(func(err error) {
			log.Error("history write error", "error", err)
		})
		engine.SetValueSink(client)
		log.Info("history connected", "url", cfg.URL, "bucket", cfg.Bucket)

		<-ctx.Done()
		log.Info("closing history connection")
		return client.Close()
	})
	sup.SetLogger(log)

	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Error("history supervisor gave up", "error", err)
		}
	}()
}

// mqttEngineAdapter adapts the infrastructure MQTT client to the
// engine's MQTTClient interface. The method sets differ only in the
// Subscribe handler type: the client takes a named MessageHandler, the
// engine a plain func signature.
type mqttEngineAdapter struct {
	client *mqtt.Client
}

// Publish implements opcua.MQTTClient.
func (a *mqttEngineAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements opcua.MQTTClient.
func (a *mqttEngineAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte, retained bool) error) error {
	return a.client.Subscribe(topic, qos, handler)
}

// IsConnected implements opcua.MQTTClient.
func (a *mqttEngineAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
