// Package session composes the countdown engine, the bid rank poller and the
// notification channel for one signed-in identity, keeps the auction
// collection fresh and serves the resulting views as JSON.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionsync/go/internal/bidrank"
	"github.com/mcdev12/auctionsync/go/internal/countdown"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/mcdev12/auctionsync/go/internal/notification"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

//go:generate mockgen -source=session.go -destination=mock_auctions.go -package=session

// AuctionLister reads the auction collection.
type AuctionLister interface {
	ListAuctions(ctx context.Context) ([]models.Auction, error)
}

// Config holds the settings of every component of a session.
type Config struct {
	AuctionRefresh time.Duration
	Countdown      countdown.Config
	Bids           bidrank.Config
	Notifications  notification.Config
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		AuctionRefresh: 30 * time.Second,
		Countdown:      countdown.DefaultConfig(),
		Bids:           bidrank.DefaultConfig(),
		Notifications:  notification.DefaultConfig(),
	}
}

// Deps are the remote collaborators of a session.
type Deps struct {
	Auctions AuctionLister
	Bids     bidrank.HistoryFetcher
	Dialer   notification.Dialer
	Backend  notification.Backend
}

// AuctionsStatus is the refresh state of the auction collection.
type AuctionsStatus struct {
	Tracked     int       `json:"tracked"`
	Active      int       `json:"active"`
	Skipped     int       `json:"skipped"`
	LastRefresh time.Time `json:"lastRefresh,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// Status is everything the status endpoint reports.
type Status struct {
	Identity      models.Identity     `json:"identity"`
	Auctions      AuctionsStatus      `json:"auctions"`
	Bids          bidrank.Status      `json:"bids"`
	Notifications notification.Status `json:"notifications"`
}

// Session is the live state of one identity.
type Session struct {
	identity models.Identity
	auctions AuctionLister
	cfg      Config
	clock    clockwork.Clock

	Engine        *countdown.Engine
	Bids          *bidrank.Poller
	Notifications *notification.Manager

	mu             sync.Mutex
	lastRefresh    time.Time
	lastSkipped    int
	lastAuctionErr error
}

// Option configures a Session.
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock drives every component of the session from clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// New builds a session. Nothing runs until Run is called.
func New(identity models.Identity, deps Deps, cfg Config, opts ...Option) *Session {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.AuctionRefresh <= 0 {
		cfg.AuctionRefresh = DefaultConfig().AuctionRefresh
	}

	return &Session{
		identity:      identity,
		auctions:      deps.Auctions,
		cfg:           cfg,
		clock:         o.clock,
		Engine:        countdown.NewEngine(cfg.Countdown, countdown.WithClock(o.clock)),
		Bids:          bidrank.NewPoller(deps.Bids, identity.Key(), cfg.Bids, bidrank.WithClock(o.clock)),
		Notifications: notification.NewManager(deps.Dialer, deps.Backend, cfg.Notifications, notification.WithClock(o.clock)),
	}
}

// Identity returns the identity the session was created for.
func (s *Session) Identity() models.Identity {
	return s.identity
}

// Run keeps every component live until ctx is cancelled, then tears the
// session down. Without a known identity only auctions are tracked.
func (s *Session) Run(ctx context.Context) error {
	log.Info().Str("identity", s.identity.Key()).Msg("session starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.Engine.Run(ctx)
	})
	g.Go(func() error {
		return s.runAuctionRefresh(ctx)
	})

	if s.identity.Known() {
		g.Go(func() error {
			return s.Bids.Run(ctx)
		})
		g.Go(func() error {
			if err := s.Notifications.Connect(ctx, s.identity.Key()); err != nil {
				return fmt.Errorf("connect notifications: %w", err)
			}
			return nil
		})
	} else {
		log.Warn().Msg("no identity, bid history and notifications disabled")
	}

	err := g.Wait()
	s.Close()
	log.Info().Msg("session stopped")
	return err
}

// Close stops the poller and closes the notification channel. It is safe
// to call more than once.
func (s *Session) Close() {
	s.Bids.Stop()
	if err := s.Notifications.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close notification channel")
	}
}

// Reconnect restarts a notification channel that gave up after its
// reconnect budget.
func (s *Session) Reconnect(ctx context.Context) error {
	if !s.identity.Known() {
		return notification.ErrNoIdentity
	}
	err := s.Notifications.Connect(ctx, s.identity.Key())
	if errors.Is(err, notification.ErrAlreadyConnected) {
		return nil
	}
	return err
}

func (s *Session) runAuctionRefresh(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.AuctionRefresh)
	defer ticker.Stop()

	s.refreshAuctions(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.refreshAuctions(ctx)
		}
	}
}

func (s *Session) refreshAuctions(ctx context.Context) {
	if err := s.RefreshAuctions(ctx); err != nil {
		log.Error().Err(err).Msg("failed to refresh auctions")
	}
}

// RefreshAuctions reloads the auction collection into the countdown engine.
// On failure the engine keeps the auctions it already tracks.
func (s *Session) RefreshAuctions(ctx context.Context) error {
	auctions, err := s.auctions.ListAuctions(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastAuctionErr = err
		s.mu.Unlock()
		return err
	}

	skipped := s.Engine.Replace(auctions)

	s.mu.Lock()
	s.lastRefresh = s.clock.Now()
	s.lastSkipped = skipped
	s.lastAuctionErr = nil
	s.mu.Unlock()

	log.Debug().
		Int("auctions", len(auctions)).
		Int("skipped", skipped).
		Msg("auctions refreshed")
	return nil
}

// Status reports the state of every component.
func (s *Session) Status() Status {
	s.mu.Lock()
	auctions := AuctionsStatus{
		LastRefresh: s.lastRefresh,
		Skipped:     s.lastSkipped,
	}
	if s.lastAuctionErr != nil {
		auctions.LastError = "failed to refresh auctions"
	}
	s.mu.Unlock()

	auctions.Tracked = len(s.Engine.Snapshot())
	auctions.Active = s.Engine.Active()

	return Status{
		Identity:      s.identity,
		Auctions:      auctions,
		Bids:          s.Bids.Status(),
		Notifications: s.Notifications.Status(),
	}
}
