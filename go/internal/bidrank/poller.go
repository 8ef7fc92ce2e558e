package bidrank

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/mcdev12/auctionsync/go/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

//go:generate mockgen -source=poller.go -destination=mock_fetcher.go -package=bidrank

// HistoryFetcher reads a bidder's annotated bid history from the backend.
type HistoryFetcher interface {
	FetchBidHistory(ctx context.Context, identity string) ([]models.BidRecord, error)
}

// Config holds the polling settings.
type Config struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultConfig returns the default polling configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		FetchTimeout: 10 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Status is the soft refresh state shown next to the history table.
type Status struct {
	Identity    string    `json:"identity,omitempty"`
	Rows        int       `json:"rows"`
	LastRefresh time.Time `json:"lastRefresh,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	Refreshing  bool      `json:"refreshing"`
}

// Poller keeps one bidder's history fresh on a single shared interval.
// Overlapping refreshes are coalesced and results that arrive after the
// identity changed or the poller stopped are discarded.
type Poller struct {
	fetcher HistoryFetcher
	cfg     Config
	clock   clockwork.Clock

	flights  singleflight.Group
	inflight atomic.Bool

	mu          sync.Mutex
	identity    string
	generation  uint64
	stopped     bool
	history     []models.BidRecord
	lastRefresh time.Time
	lastErr     error

	stopOnce sync.Once
	done     chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithClock sets the clock driving the poll interval and retry backoff.
func WithClock(clock clockwork.Clock) PollerOption {
	return func(p *Poller) {
		p.clock = clock
	}
}

// NewPoller creates a poller scoped to identity. An empty identity leaves
// the bid history query disabled until SetIdentity is called.
func NewPoller(fetcher HistoryFetcher, identity string, cfg Config, opts ...PollerOption) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	p := &Poller{
		fetcher:  fetcher,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		identity: identity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetIdentity rescopes the poller. Any fetch still running for the previous
// identity will not write its result.
func (p *Poller) SetIdentity(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || identity == p.identity {
		return
	}
	p.identity = identity
	p.generation++
	p.history = nil
	p.lastRefresh = time.Time{}
	p.lastErr = nil
}

// Refresh fetches the history now. Concurrent callers share one fetch.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	identity, gen := p.identity, p.generation
	p.mu.Unlock()

	if identity == "" {
		return ErrNoIdentity
	}

	key := fmt.Sprintf("%d:%s", gen, identity)
	_, err, shared := p.flights.Do(key, func() (interface{}, error) {
		p.inflight.Store(true)
		defer p.inflight.Store(false)
		return nil, p.fetch(ctx, identity, gen)
	})
	if shared {
		log.Debug().Str("identity", identity).Msg("joined in-flight bid history fetch")
	}
	return err
}

func (p *Poller) fetch(ctx context.Context, identity string, gen uint64) error {
	policy := retry.Policy{MaxAttempts: p.cfg.MaxAttempts, Clock: p.clock}
	if p.cfg.RetryBackoff > 0 {
		policy.Backoff = retry.Exponential(p.cfg.RetryBackoff, p.cfg.PollInterval)
	}

	var records []models.BidRecord
	err := retry.Do(ctx, policy, func(attempt int) error {
		var (
			fetchCtx context.Context
			cancel   context.CancelFunc
		)
		if p.cfg.FetchTimeout > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		} else {
			fetchCtx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		var err error
		records, err = p.fetcher.FetchBidHistory(fetchCtx, identity)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt+1).Str("identity", identity).Msg("bid history fetch attempt failed")
		}
		return err
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.generation != gen {
		log.Debug().Str("identity", identity).Msg("discarding bid history for stale poller generation")
		return nil
	}

	if err != nil {
		p.lastErr = err
		log.Error().Err(err).Str("identity", identity).Msg("failed to refresh bids")
		return fmt.Errorf("refresh bid history: %w", err)
	}

	p.history = Normalize(records)
	p.lastRefresh = p.clock.Now()
	p.lastErr = nil
	return nil
}

// Run refreshes immediately and then on every poll interval until ctx is
// cancelled or Stop is called. A tick that lands while a fetch is still in
// flight is skipped.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", p.cfg.PollInterval).Msg("bid poller started")

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case <-ticker.Chan():
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if p.inflight.Load() {
		log.Debug().Msg("bid history fetch still in flight, skipping tick")
		return
	}
	// failures are kept as the soft status
	_ = p.Refresh(ctx)
}

// Stop tears the poller down. It is safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.generation++
		p.mu.Unlock()
		close(p.done)
	})
}

// History returns a copy of the latest history.
func (p *Poller) History() []models.BidRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.BidRecord, len(p.history))
	copy(out, p.history)
	return out
}

// View projects the latest history for the history table.
func (p *Poller) View(q Query) Page {
	return Project(p.History(), q)
}

// Board projects the latest history for the status board.
func (p *Poller) Board() []Standing {
	return Board(p.History())
}

// Status reports the soft refresh state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Identity:    p.identity,
		Rows:        len(p.history),
		LastRefresh: p.lastRefresh,
		Refreshing:  p.inflight.Load(),
	}
	if p.lastErr != nil {
		st.LastError = "failed to refresh bids"
	}
	return st
}
