package countdown

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning is returned when Run is called on an engine that is already ticking.
var ErrAlreadyRunning = errors.New("countdown engine already running")

// View is the display state of one tracked auction.
type View struct {
	AuctionID string               `json:"auctionId"`
	Title     string               `json:"title"`
	Status    models.AuctionStatus `json:"status"`
	StartTime time.Time            `json:"startTime"`
	EndTime   time.Time            `json:"endTime"`
	Countdown Status               `json:"countdown"`
	Label     string               `json:"label"`
	Urgency   Urgency              `json:"urgency"`
}

// Config holds the engine's refresh settings.
type Config struct {
	TickInterval time.Duration
}

// DefaultConfig ticks once per second.
func DefaultConfig() Config {
	return Config{TickInterval: time.Second}
}

type entry struct {
	start time.Time
	end   time.Time
	view  View
	done  bool // reached Ended, excluded from further ticks
}

func (en *entry) recompute(now time.Time) (phaseChanged bool) {
	prev := en.view.Countdown.Phase
	st := ComputePhase(now, en.start, en.end)
	en.view.Countdown = st
	en.view.Label = FormatRemaining(st.RemainingSeconds, st.Phase)
	en.view.Urgency = ClassifyUrgency(st.Phase, st.RemainingSeconds)
	en.done = st.Phase == Ended
	return prev != st.Phase
}

// Engine keeps the countdown of every tracked auction current on a single
// shared ticker, regardless of how many auctions are tracked.
type Engine struct {
	clock clockwork.Clock
	cfg   Config

	mu      sync.Mutex
	entries map[string]*entry
	subs    map[int]func([]View)
	nextSub int
	running bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock swaps the real clock, typically for a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates an engine with no tracked auctions.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	e := &Engine{
		clock:   clockwork.NewRealClock(),
		cfg:     cfg,
		entries: make(map[string]*entry),
		subs:    make(map[int]func([]View)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Track adds auctions to the engine or refreshes their display fields.
// Auctions with a missing or malformed window are skipped with a warning;
// the number skipped is returned.
func (e *Engine) Track(auctions ...models.Auction) int {
	now := e.clock.Now()

	e.mu.Lock()
	skipped := 0
	for _, a := range auctions {
		if !e.upsertLocked(a, now) {
			skipped++
		}
	}
	views, subs := e.snapshotLocked(), e.subscribersLocked()
	e.mu.Unlock()

	notify(subs, views)
	return skipped
}

// Replace makes the tracked set exactly the given auctions, as after a
// refresh of the auction collection.
func (e *Engine) Replace(auctions []models.Auction) int {
	now := e.clock.Now()
	keep := make(map[string]struct{}, len(auctions))

	e.mu.Lock()
	skipped := 0
	for _, a := range auctions {
		if e.upsertLocked(a, now) {
			keep[a.ID] = struct{}{}
		} else {
			skipped++
		}
	}
	for id := range e.entries {
		if _, ok := keep[id]; !ok {
			delete(e.entries, id)
		}
	}
	views, subs := e.snapshotLocked(), e.subscribersLocked()
	e.mu.Unlock()

	notify(subs, views)
	return skipped
}

// Untrack stops tracking an auction.
func (e *Engine) Untrack(id string) {
	e.mu.Lock()
	delete(e.entries, id)
	e.mu.Unlock()
}

func (e *Engine) upsertLocked(a models.Auction, now time.Time) bool {
	if a.ID == "" {
		log.Warn().Str("title", a.Title).Msg("skipping auction without id")
		return false
	}

	start, end, err := a.Window()

	if existing, ok := e.entries[a.ID]; ok {
		// The window is server-assigned and immutable once tracked.
		if err == nil && (!start.Equal(existing.start) || !end.Equal(existing.end)) {
			log.Warn().
				Str("auction_id", a.ID).
				Time("tracked_start", existing.start).
				Time("tracked_end", existing.end).
				Msg("ignoring changed time window for tracked auction")
		}
		existing.view.Title = a.Title
		existing.view.Status = a.Status
		return true
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", a.ID).
			Msg("skipping auction with malformed time window")
		return false
	}

	en := &entry{
		start: start,
		end:   end,
		view: View{
			AuctionID: a.ID,
			Title:     a.Title,
			Status:    a.Status,
			StartTime: start,
			EndTime:   end,
		},
	}
	en.recompute(now)
	e.entries[a.ID] = en
	return true
}

// Tick recomputes every auction that has not ended yet and notifies
// subscribers. It returns the resulting snapshot.
func (e *Engine) Tick(now time.Time) []View {
	e.mu.Lock()
	active := 0
	for id, en := range e.entries {
		if en.done {
			continue
		}
		active++
		if en.recompute(now) {
			log.Debug().
				Str("auction_id", id).
				Str("phase", en.view.Countdown.Phase.String()).
				Msg("auction phase changed")
		}
	}
	views := e.snapshotLocked()
	var subs []func([]View)
	if active > 0 {
		subs = e.subscribersLocked()
	}
	e.mu.Unlock()

	notify(subs, views)
	return views
}

// Run drives Tick from one shared ticker until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", e.cfg.TickInterval).Msg("countdown engine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("countdown engine shutting down")
			return nil
		case now := <-ticker.Chan():
			e.Tick(now)
		}
	}
}

// Subscribe registers fn to receive a snapshot after every recomputation.
// The returned function removes the subscription.
func (e *Engine) Subscribe(fn func([]View)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Snapshot returns the current views ordered by end time, then id.
func (e *Engine) Snapshot() []View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Get returns the view of a single auction.
func (e *Engine) Get(id string) (View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.entries[id]
	if !ok {
		return View{}, false
	}
	return en.view, true
}

// Active returns how many tracked auctions still need ticking.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, en := range e.entries {
		if !en.done {
			n++
		}
	}
	return n
}

func (e *Engine) snapshotLocked() []View {
	views := make([]View, 0, len(e.entries))
	for _, en := range e.entries {
		views = append(views, en.view)
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].EndTime.Equal(views[j].EndTime) {
			return views[i].EndTime.Before(views[j].EndTime)
		}
		return views[i].AuctionID < views[j].AuctionID
	})
	return views
}

func (e *Engine) subscribersLocked() []func([]View) {
	subs := make([]func([]View), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func([]View), views []View) {
	for _, fn := range subs {
		fn(views)
	}
}
