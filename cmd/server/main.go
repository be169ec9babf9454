package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/ScooterAI2025/scooter-whatsapp/internal/app"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/config"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/database"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/logging"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/server"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/stream"
	"github.com/ScooterAI2025/scooter-whatsapp/internal/twilio"
)

func setupConfig() *config.Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(srv *server.Server, broadcaster *stream.Broadcaster) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		broadcaster.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(ctx, pool); err != nil {
		cancel()
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	cancel()
	defer pool.Close()

	messageRepo := database.NewMessageRepo(pool)
	twilioClient := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken)

	broadcaster := stream.NewBroadcaster(clock, cfg.HeartbeatInterval, cfg.MaxClients)

	appSvc := app.NewService(messageRepo, twilioClient, broadcaster, cfg.FromNumber, cfg.AutoReplyText)

	srv := server.NewServer(cfg, appSvc, broadcaster, pool, clock)

	done := runGracefulShutdown(srv, broadcaster)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
