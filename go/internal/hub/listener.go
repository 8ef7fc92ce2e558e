package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/auctionsync/go/internal/retry"
	"github.com/rs/zerolog/log"
)

// Deliverer loads a stored notification by id and broadcasts it.
type Deliverer interface {
	Deliver(ctx context.Context, id string) error
}

type ListenerConfig struct {
	DatabaseURL   string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string // Channel name to LISTEN on
	MaxRetries    int
	RetryDelay    time.Duration
	PingInterval  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "notifications_created",
		MaxRetries:    5,
		RetryDelay:    200 * time.Millisecond,
		PingInterval:  90 * time.Second,
	}
}

// notifySource is the part of *pq.Listener the loop uses.
type notifySource interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listener broadcasts notifications inserted by other writers, such as the
// seed tool or a second hub replica, as Postgres announces them.
type Listener struct {
	source    notifySource
	deliverer Deliverer
	cfg       ListenerConfig

	mu      sync.Mutex
	running bool
}

func NewListener(deliverer Deliverer, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return newListener(l, deliverer, cfg), nil
}

func newListener(source notifySource, deliverer Deliverer, cfg ListenerConfig) *Listener {
	return &Listener{
		source:    source,
		deliverer: deliverer,
		cfg:       cfg,
	}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("listener started")

	l.setRunning(true)
	defer l.setRunning(false)

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	notes := l.source.NotificationChannel()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.source.Close()
		case note := <-notes:
			l.handle(ctx, note)
		case <-pingTicker.C:
			if err := l.source.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) handle(ctx context.Context, note *pq.Notification) {
	if note == nil {
		// nil means the connection was re-established; anything
		// inserted meanwhile reaches clients through their reconcile fetch
		return
	}
	if err := l.deliverWithRetry(ctx, note.Extra); err != nil {
		log.Error().Err(err).Str("notification_id", note.Extra).Msg("failed to deliver notification")
	}
}

func (l *Listener) deliverWithRetry(ctx context.Context, id string) error {
	return retry.Do(ctx, retry.Policy{
		MaxAttempts: l.cfg.MaxRetries + 1,
		Backoff:     retry.Linear(l.cfg.RetryDelay),
	}, func(attempt int) error {
		err := l.deliverer.Deliver(ctx, id)
		if err != nil {
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("notification_id", id).
				Msg("failed to deliver, retrying")
		}
		return err
	})
}

// Active reports whether Start is running.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) setRunning(v bool) {
	l.mu.Lock()
	l.running = v
	l.mu.Unlock()
}
