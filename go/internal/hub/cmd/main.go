package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/auctionsync/go/internal/config"
	"github.com/mcdev12/auctionsync/go/internal/hub"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("HUB_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := cfg.Hub.Database.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	hubConfig := hub.DefaultConfig()
	hubConfig.ConnectionConfig.DedupeWindow = cfg.Hub.DedupeWindow
	hubConfig.JetStreamConfig.URL = cfg.Hub.NatsURL
	hubConfig.JetStreamConfig.StreamName = cfg.Hub.StreamName
	hubConfig.JetStreamConfig.SubjectFilter = cfg.Hub.WonSubject
	hubConfig.JetStreamConfig.ConsumerName = cfg.Hub.ConsumerName
	hubConfig.ListenerConfig.DatabaseURL = cfg.Hub.Database.DSN()
	hubConfig.ListenerConfig.NotifyChannel = cfg.Hub.NotifyChannel

	log.Info().
		Str("database", cfg.Hub.Database.String()).
		Str("nats_url", cfg.Hub.NatsURL).
		Str("addr", cfg.Hub.Addr).
		Msg("starting notification hub")

	app, err := hub.NewApp(ctx, db, hubConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create notification hub")
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})

	server := &http.Server{
		Addr:        cfg.Hub.Addr,
		Handler:     h2c.NewHandler(corsHandler.Handler(app.Routes()), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	appDone := make(chan error, 1)
	go func() {
		appDone <- app.Start(ctx)
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-appDone:
		log.Error().Err(err).Msg("notification hub exited")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("notification hub shutdown complete")
}
