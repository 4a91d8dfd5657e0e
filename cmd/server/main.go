/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the trip ledger and push service.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, env, flags) and set up logging
  2. Initialize SQLite store
  3. Resolve the APNs signing key (inline or Secret Manager)
  4. Wire gateway, report publisher and dispatcher
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

PUSH DEGRADATION:
  Without an APNs key the server still starts. The push route resolves
  tokens and answers with a "not configured" report instead of sending.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Flush the report publisher and close the database
  4. Exit

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - push/dispatcher.go: Delivery pipeline
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ouest/trip-engine/api"
	"github.com/ouest/trip-engine/config"
	"github.com/ouest/trip-engine/events"
	"github.com/ouest/trip-engine/logging"
	"github.com/ouest/trip-engine/push"
	"github.com/ouest/trip-engine/secrets"
	"github.com/ouest/trip-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	conf, err := config.Load()
	if err != nil {
		logrus.Fatalf("error loading config: %v", err)
	}
	if *port != "" {
		conf.Port = *port
	}
	if *dbPath != "" {
		conf.DBPath = *dbPath
	}
	if err := conf.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.Setup(conf.LogLevel)
	if err != nil {
		logrus.Fatalf("error setting up logging: %v", err)
	}

	ctx := context.Background()

	// Initialize store
	store, err := sqlite.New(conf.DBPath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Push pipeline
	signer := newSigner(ctx, conf.APNs, logger)

	host := push.SandboxHost
	if conf.APNs.Production {
		host = push.ProductionHost
	}
	gateway := push.NewGateway(push.GatewayConfig{
		Host:    host,
		Topic:   conf.APNs.BundleID,
		Timeout: conf.Push.Timeout,
		Logger:  logger,
	})

	opts := []push.Option{
		push.WithLogger(logger),
		push.WithConcurrency(conf.Push.Concurrency),
	}
	publisher, err := events.NewPublisher(ctx, conf.PubSub.ProjectID, conf.PubSub.ReportTopic)
	switch {
	case err == nil:
		defer publisher.Close()
		opts = append(opts, push.WithPublisher(publisher))
	case errors.Is(err, events.ErrServiceNotConfigured):
		logger.Info("pubsub project not set, delivery reports will not be published")
	default:
		logger.Fatalf("error creating report publisher: %v", err)
	}

	dispatcher := push.NewDispatcher(store, gateway, signer, opts...)

	// Create router
	handler := api.NewHandler(store, store, dispatcher, logger)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         ":" + conf.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port":         conf.Port,
			"db":           conf.DBPath,
			"push_enabled": dispatcher.Configured(),
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return
	}

	logger.Info("Server stopped")
}

// newSigner returns nil when no usable key is configured, which puts the
// dispatcher in soft-degrade mode.
func newSigner(ctx context.Context, conf config.APNs, logger logrus.FieldLogger) push.TokenSigner {
	key := conf.PrivateKey
	if key == "" && conf.PrivateKeySecret != "" {
		svc, err := secrets.NewService(ctx)
		if err != nil {
			logger.Errorf("error creating secrets service, push disabled: %v", err)
			return nil
		}
		defer svc.Close()

		if key, err = svc.Read(ctx, conf.PrivateKeySecret); err != nil {
			logger.Errorf("error reading APNs key secret, push disabled: %v", err)
			return nil
		}
	}

	signer, err := push.NewSigner(push.Credentials{
		KeyID:      conf.KeyID,
		TeamID:     conf.TeamID,
		PrivateKey: key,
	})
	if errors.Is(err, push.ErrGatewayUnconfigured) {
		logger.Warn("APNs key not set, push notifications disabled")
		return nil
	}
	if err != nil {
		logger.Errorf("invalid APNs credentials, push disabled: %v", err)
		return nil
	}
	return signer
}
