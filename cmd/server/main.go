// Command server runs the meshi backend: REST API, blob storage and live
// feed subscriptions.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshi/internal/bootstrap"
	"meshi/internal/config"
	"meshi/internal/featureflags"
	"meshi/internal/observability"
	"meshi/internal/server"
)

// @title meshi API
// @version 1.0
// @description Food photo feed with comments, image storage and live updates
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@meshi.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "meshi-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	srv, err := server.NewServer(cfg, bootstrap.Options{DemoFixture: cfg.DemoFixture})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if featureflags.NewManager(cfg.FeatureFlags).EnabledOr(featureflags.GuestLogin, 0, true) {
		if _, err := srv.Auth().EnsureGuest(context.Background()); err != nil {
			log.Fatalf("Failed to provision guest account: %v", err)
		}
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server resource shutdown error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
