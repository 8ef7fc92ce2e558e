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
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start auctionsync")
	}
	setupLogging(cfg.LogLevel)

	services := setupServices(cfg.Session)
	server := setupServer(cfg.Session.Addr, services)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("identity", cfg.Session.Identity.Key()).
		Str("api_url", cfg.Session.APIURL).
		Str("hub_ws_url", cfg.Session.HubWebsocketURL).
		Str("addr", server.Addr).
		Msg("starting auctionsync")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return services.Session.Run(ctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("auctionsync stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("auctionsync shutdown complete")
}
