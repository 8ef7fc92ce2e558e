// Package notification owns the duplex channel to the notification hub for
// one session: a local Store of notifications fed by server pushes and
// reconciling bulk fetches, plus the connection state machine around it.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/mcdev12/auctionsync/go/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

//go:generate mockgen -source=manager.go -destination=mock_backend.go -package=notification

// Backend is the REST side of the notification service.
type Backend interface {
	FetchNotifications(ctx context.Context, identity string) ([]models.Notification, error)
	MarkRead(ctx context.Context, identity, id string) error
	MarkAllRead(ctx context.Context, identity string, ids []string) error
}

// State is the connection state of the channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Disconnected, Connecting, Connected} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown channel state %q", text)
}

// Config holds the channel's timeouts, retry budget and rate limits.
type Config struct {
	DialTimeout          time.Duration
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	MaxReconnectBackoff  time.Duration
	AckTimeout           time.Duration
	FetchTimeout         time.Duration
	FetchAttempts        int
	SyncTimeout          time.Duration
	SendRate             rate.Limit
	SendBurst            int
	SyncRate             rate.Limit
	SyncBurst            int
}

// DefaultConfig returns the default channel configuration.
func DefaultConfig() Config {
	return Config{
		DialTimeout:          10 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectBackoff:     time.Second,
		MaxReconnectBackoff:  30 * time.Second,
		AckTimeout:           5 * time.Second,
		FetchTimeout:         10 * time.Second,
		FetchAttempts:        3,
		SyncTimeout:          10 * time.Second,
		SendRate:             rate.Every(time.Second),
		SendBurst:            3,
		SyncRate:             rate.Limit(10),
		SyncBurst:            10,
	}
}

// Status is the channel state surfaced next to the notification bell.
type Status struct {
	State       State  `json:"state"`
	Unavailable bool   `json:"unavailable"`
	LastError   string `json:"lastError,omitempty"`
	SyncError   string `json:"syncError,omitempty"`
	Unread      int    `json:"unread"`
	Total       int    `json:"total"`
}

// Manager owns the single notification connection of a session.
type Manager struct {
	dialer      Dialer
	backend     Backend
	cfg         Config
	clock       clockwork.Clock
	sendLimiter *rate.Limiter
	syncLimiter *rate.Limiter

	mu          sync.Mutex
	store       *Store
	state       State
	unavailable bool
	lastSyncErr error
	identity    string
	generation  uint64
	conn        Conn
	pending     map[string]chan error
	running     bool
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}

	// background reconciles and read-state syncs
	syncs sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for backoff, ack timeouts and send throttling.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager creates a disconnected manager.
func NewManager(dialer Dialer, backend Backend, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		dialer:      dialer,
		backend:     backend,
		cfg:         cfg,
		clock:       clockwork.NewRealClock(),
		sendLimiter: rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
		syncLimiter: rate.NewLimiter(cfg.SyncRate, cfg.SyncBurst),
		store:       NewStore(),
		pending:     make(map[string]chan error),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect starts the channel for identity in the background. The channel
// keeps itself connected until ctx is cancelled, Close is called, or the
// reconnect budget runs out, after which Status reports it unavailable and
// Connect may be called again.
func (m *Manager) Connect(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrNoIdentity
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	if m.identity != identity {
		m.store = NewStore()
	}
	m.identity = identity
	m.generation++
	m.running = true
	m.unavailable = false
	m.state = Connecting
	gen := m.generation
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(runCtx, identity, gen, done)
	return nil
}

func (m *Manager) run(ctx context.Context, identity string, gen uint64, done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		if m.generation == gen {
			m.running = false
			m.state = Disconnected
			m.cancel = nil
		}
		m.mu.Unlock()
	}()

	for {
		conn, err := m.dial(ctx, identity, gen)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.mu.Lock()
			if m.generation == gen {
				m.unavailable = true
			}
			m.mu.Unlock()
			log.Error().Err(err).Str("identity", identity).Msg("notifications unavailable")
			return
		}

		if !m.attach(conn, gen) {
			conn.Close()
			return
		}
		log.Info().Str("identity", identity).Msg("notification channel connected")

		go m.reconcile(ctx, identity, gen)

		err = m.readLoop(conn, gen)
		m.detach(conn, gen)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("identity", identity).Msg("notification channel dropped, reconnecting")
	}
}

func (m *Manager) dial(ctx context.Context, identity string, gen uint64) (Conn, error) {
	policy := retry.Policy{MaxAttempts: m.cfg.MaxReconnectAttempts, Clock: m.clock}
	if m.cfg.ReconnectBackoff > 0 {
		policy.Backoff = retry.Exponential(m.cfg.ReconnectBackoff, m.cfg.MaxReconnectBackoff)
	}

	var conn Conn
	err := retry.Do(ctx, policy, func(attempt int) error {
		m.setState(gen, Connecting)

		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()

		c, err := m.dialer.Dial(dialCtx, identity)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Str("identity", identity).Msg("notification channel dial failed")
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect notification channel: %w", err)
	}
	return conn, nil
}

func (m *Manager) setState(gen uint64, state State) {
	m.mu.Lock()
	if m.generation == gen && !m.closed {
		m.state = state
	}
	m.mu.Unlock()
}

func (m *Manager) attach(conn Conn, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.closed {
		return false
	}
	m.conn = conn
	m.state = Connected
	m.unavailable = false
	m.syncs.Add(1) // reconcile
	return true
}

func (m *Manager) detach(conn Conn, gen uint64) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	if m.generation == gen && !m.closed {
		m.state = Disconnected
	}
	pending := m.pending
	m.pending = make(map[string]chan error)
	m.mu.Unlock()

	failPending(pending, ErrNotConnected)
}

func failPending(pending map[string]chan error, err error) {
	for _, ch := range pending {
		select {
		case ch <- err:
		default:
		}
	}
}

func (m *Manager) readLoop(conn Conn, gen uint64) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.handleFrame(data, gen)
	}
}

func (m *Manager) handleFrame(data []byte, gen uint64) {
	var f models.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Warn().Err(err).Msg("dropping undecodable notification frame")
		return
	}

	switch f.Type {
	case models.FrameReceiveNotification:
		m.receive(f.Payload, gen)
	case models.FrameAck:
		m.resolveAck(f)
	default:
		log.Debug().Str("type", string(f.Type)).Msg("ignoring unknown frame type")
	}
}

func (m *Manager) receive(payload json.RawMessage, gen uint64) {
	n, ok := decodeNotification(payload)
	if !ok {
		return
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	added := m.store.Apply(n)
	unread := m.store.Unread()
	m.mu.Unlock()

	if !added {
		log.Debug().Str("notification_id", n.ID).Msg("ignoring duplicate notification")
		return
	}
	log.Debug().
		Str("notification_id", n.ID).
		Str("type", string(n.Type)).
		Int("unread", unread).
		Msg("notification received")
}

func decodeNotification(payload json.RawMessage) (models.Notification, bool) {
	var n models.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		log.Warn().Err(err).Msg("dropping undecodable notification")
		return models.Notification{}, false
	}
	if err := models.Validate(n); err != nil {
		log.Warn().Err(err).Str("notification_id", n.ID).Msg("dropping malformed notification")
		return models.Notification{}, false
	}
	return n, true
}

func (m *Manager) resolveAck(f models.Frame) {
	m.mu.Lock()
	ch, ok := m.pending[f.Ref]
	delete(m.pending, f.Ref)
	m.mu.Unlock()

	if !ok {
		log.Debug().Str("ref", f.Ref).Msg("ack for unknown send")
		return
	}

	var err error
	if !f.Accepted {
		err = fmt.Errorf("%w: %s", ErrRejected, f.Error)
	}
	ch <- err
}

func (m *Manager) reconcile(ctx context.Context, identity string, gen uint64) {
	defer m.syncs.Done()

	policy := retry.Policy{MaxAttempts: m.cfg.FetchAttempts, Clock: m.clock}
	if m.cfg.ReconnectBackoff > 0 {
		policy.Backoff = retry.Linear(m.cfg.ReconnectBackoff)
	}

	var batch []models.Notification
	err := retry.Do(ctx, policy, func(attempt int) error {
		fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
		defer cancel()

		var err error
		batch, err = m.backend.FetchNotifications(fetchCtx, identity)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("identity", identity).Msg("reconciling notification fetch failed")
		}
		return
	}

	valid := make([]models.Notification, 0, len(batch))
	for _, n := range batch {
		if err := models.Validate(n); err != nil {
			log.Warn().Err(err).Str("notification_id", n.ID).Msg("dropping malformed notification")
			continue
		}
		valid = append(valid, n)
	}

	m.mu.Lock()
	if m.generation != gen || m.closed {
		m.mu.Unlock()
		log.Debug().Str("identity", identity).Msg("discarding notification fetch for stale channel")
		return
	}
	pending := m.store.PendingReads(valid)
	added := m.store.Merge(valid)
	unread := m.store.Unread()
	if len(pending) > 0 {
		m.syncs.Add(1)
	}
	m.mu.Unlock()

	log.Info().
		Str("identity", identity).
		Int("fetched", len(batch)).
		Int("added", added).
		Int("unread", unread).
		Int("pending_reads", len(pending)).
		Msg("notifications reconciled")

	// read receipts the server has not recorded yet
	if len(pending) > 0 {
		m.syncReadState("resync_read", func(ctx context.Context) error {
			return m.backend.MarkAllRead(ctx, identity, pending)
		})
	}
}

// Send asks the hub to create and fan out a notification and waits for its
// ack. It fails fast unless the channel is connected; nothing is queued and
// nothing is applied locally before the hub accepts it.
func (m *Manager) Send(ctx context.Context, out models.OutboundNotification) error {
	if err := models.Validate(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != Connected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if !m.sendLimiter.AllowN(m.clock.Now(), 1) {
		m.mu.Unlock()
		return ErrSendThrottled
	}
	conn := m.conn
	ref := uuid.NewString()
	ch := make(chan error, 1)
	m.pending[ref] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, ref)
		m.mu.Unlock()
	}()

	frame, err := models.NewFrame(models.FrameSendNotification, ref, out)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	select {
	case err := <-ch:
		return err
	case <-m.clock.After(m.cfg.AckTimeout):
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkRead marks one notification read locally right away and syncs it to
// the backend in the background. A failed sync is logged, not rolled back,
// and the receipt is sent again on the next reconcile.
func (m *Manager) MarkRead(id string) error {
	m.mu.Lock()
	changed, found := m.store.MarkRead(id)
	identity := m.identity
	doSync := changed && identity != "" && !m.closed
	if doSync {
		m.syncs.Add(1)
	}
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}
	if doSync {
		go m.syncReadState("mark_read", func(ctx context.Context) error {
			return m.backend.MarkRead(ctx, identity, id)
		})
	}
	return nil
}

// MarkAllRead flips every unread notification in one step and syncs the
// change in the background. It returns how many notifications changed.
func (m *Manager) MarkAllRead() int {
	m.mu.Lock()
	ids := m.store.MarkAllRead()
	identity := m.identity
	doSync := len(ids) > 0 && identity != "" && !m.closed
	if doSync {
		m.syncs.Add(1)
	}
	m.mu.Unlock()

	if doSync {
		go m.syncReadState("mark_all_read", func(ctx context.Context) error {
			return m.backend.MarkAllRead(ctx, identity, ids)
		})
	}
	return len(ids)
}

func (m *Manager) syncReadState(op string, fn func(ctx context.Context) error) {
	defer m.syncs.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SyncTimeout)
	defer cancel()

	if err := m.syncLimiter.Wait(ctx); err != nil {
		log.Error().Err(err).Str("op", op).Msg("read state sync throttled out")
		return
	}

	err := fn(ctx)

	m.mu.Lock()
	m.lastSyncErr = err
	m.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("op", op).Msg("failed to sync read state, keeping local state")
		return
	}
	log.Debug().Str("op", op).Msg("read state synced")
}

// Close tears the channel down for good and waits for background work.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.generation++
	m.state = Disconnected
	m.running = false
	cancel, conn, done := m.cancel, m.conn, m.done
	m.cancel, m.conn = nil, nil
	pending := m.pending
	m.pending = make(map[string]chan error)
	m.mu.Unlock()

	failPending(pending, ErrClosed)
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	m.syncs.Wait()

	log.Info().Msg("notification channel closed")
	return nil
}

// Status reports the channel state and counters.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:       m.state,
		Unavailable: m.unavailable,
		Unread:      m.store.Unread(),
		Total:       m.store.Len(),
	}
	if m.unavailable {
		st.LastError = "notifications unavailable"
	}
	if m.lastSyncErr != nil {
		st.SyncError = "failed to sync read state"
	}
	return st
}

// Notifications returns the local set, newest first.
func (m *Manager) Notifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.List()
}

// Unread returns the unread counter.
func (m *Manager) Unread() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Unread()
}
