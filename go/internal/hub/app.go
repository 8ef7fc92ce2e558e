// Package hub is the notification duplex service: it stores notifications in
// Postgres, fans them out over websocket connections keyed by identity,
// records per-identity read receipts and turns auction-won events from NATS
// JetStream into auction-win notifications.
package hub

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the notification hub
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	ListenerConfig   ListenerConfig
}

// DefaultConfig returns default configuration for the notification hub
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
		ListenerConfig:   DefaultListenerConfig(),
	}
}

// App wires the hub's components together.
type App struct {
	repo              *Repository
	service           *Service
	connectionManager *ConnectionManager
	eventConsumer     *EventConsumer
	listener          *Listener
	handler           *Handler
}

// NewApp connects the hub to NATS and Postgres LISTEN/NOTIFY. The schema is
// applied before anything can be delivered.
func NewApp(ctx context.Context, db *sql.DB, config Config) (*App, error) {
	clock := clockwork.NewRealClock()

	repo := NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}

	cm := NewConnectionManager(config.ConnectionConfig, clock)
	service := NewService(repo, cm, clock)
	cm.SetFrameHandler(service)

	eventConsumer, err := NewEventConsumer(ctx, service, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	listener, err := NewListener(service, config.ListenerConfig)
	if err != nil {
		eventConsumer.Close()
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	health := NewHealthChecker(db, eventConsumer.Conn(), listener, cm)

	return &App{
		repo:              repo,
		service:           service,
		connectionManager: cm,
		eventConsumer:     eventConsumer,
		listener:          listener,
		handler:           NewHandler(service, cm, health),
	}, nil
}

// Start runs the connection manager, event consumer and listener until ctx
// is cancelled or one of them fails.
func (a *App) Start(ctx context.Context) error {
	log.Info().Msg("starting notification hub")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.connectionManager.Start(ctx)
		return nil
	})
	g.Go(func() error {
		return a.eventConsumer.Start(ctx)
	})
	g.Go(func() error {
		return a.listener.Start(ctx)
	})

	err := g.Wait()
	a.eventConsumer.Close()
	log.Info().Msg("notification hub stopped")
	return err
}

// Routes returns the hub's HTTP routes.
func (a *App) Routes() http.Handler {
	return a.handler.Routes()
}
