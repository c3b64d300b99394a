package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"society-connect/auth"
	"society-connect/infrastructure/ws"
	"society-connect/internal/metrics"
	"society-connect/repositories"
	"society-connect/runtime"
	"society-connect/runtime/workers"
	"society-connect/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close included)
// executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	metrics.Register()

	// 3. Registry, repositories, services
	registry := runtime.NewRegistry(log, config.TransitionBuffer)
	directory := repositories.NewPrincipalDirectory(db, log)
	messageStore := repositories.NewMessageRepository(db, log)

	codec := auth.NewTokenCodec([]byte(config.JWTKey), config.AuthTokenDuration)
	gate := auth.NewGate(codec, directory, log)

	delivery := services.NewDeliveryService(directory, messageStore, registry, log, config.SinkTimeout)
	signaling := services.NewSignalingService(directory, registry, log, config.SinkTimeout)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervision: the presence broadcaster runs as a supervised worker.
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewPresenceWorker(log, registry, registry.Transitions(), config.SinkTimeout))
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 6. HTTP server: websocket endpoint and metrics.
	server := ws.NewServer(log, gate, delivery, signaling, registry, ws.Config{
		HandshakeTimeout: config.HandshakeTimeout,
		WriteTimeout:     config.WriteTimeout,
		SessionBuffer:    config.SessionBuffer,
		SinkTimeout:      config.SinkTimeout,
		MaxFrameBytes:    config.MaxFrameBytes,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.Handle)
	mux.Handle("/metrics", promhttp.Handler())

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
