/*
Package main is the entry point for the realtime relay.

It loads configuration, initializes the global logger, opens the Postgres change feed,
starts the websocket hub and serves it over HTTP until SIGINT or SIGTERM, then shuts
the server and the hub down in that order.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"globalchat/internal/backend"
	"globalchat/internal/backend/memory"
	"globalchat/internal/backend/postgres"
	"globalchat/internal/configs"
	"globalchat/internal/handler"
	"globalchat/internal/pkg/logx"
	"globalchat/internal/relay"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Strs("relay_tables", cfg.RelayTables).
		Bool("relay_require_auth", cfg.RelayRequireAuth).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := openChangeFeed(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open change feed")
	}
	defer closeSource()

	hub := relay.NewHub(source)
	deps := handler.NewAppDeps(hub, cfg)
	defer deps.Close()

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler.Router(deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logx.Info(fmt.Sprintf("Relay starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logx.Info("Received shutdown signal. Starting graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()

		// Hijacked websocket connections are not tracked by Shutdown; the hub closes them.
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		hub.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		logx.Error(err, "Relay stopped with error")
		return
	}

	logx.Info("Relay gracefully stopped.")
}

// openChangeFeed returns the realtime source the hub fans out. The memory driver gives
// a feed nobody writes to, which is only useful to exercise the websocket protocol.
func openChangeFeed(ctx context.Context, cfg *configs.AppConfig) (backend.Realtime, func(), error) {
	if cfg.BackendDriver == configs.DriverMemory {
		logx.Warn("Relay running on the in-memory backend; no changes will be relayed")
		return memory.New(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	rt := postgres.NewRealtime(pool.Config().ConnConfig, postgres.NewTables(pool))
	return rt, func() {
		if err := rt.Close(); err != nil {
			logx.Error(err, "Error closing change feed")
		}
		pool.Close()
	}, nil
}
