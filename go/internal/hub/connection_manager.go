package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/rs/zerolog/log"
)

// FrameHandler answers frames sent by clients, e.g. sendNotification requests.
type FrameHandler interface {
	HandleFrame(ctx context.Context, identity string, f models.Frame) (reply models.Frame, ok bool)
}

// ConnectionManager manages the websocket connections of all identities and
// fans notifications out to them.
type ConnectionManager struct {
	// Connection pools organized by identity
	connections map[string]map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock
	handler  FrameHandler

	broadcastCh chan models.Notification

	// ids broadcast within the dedupe window
	delivered   map[string]time.Time
	deliveredMu sync.Mutex
}

// Connection represents a websocket connection to one client
type Connection struct {
	ID       string
	Identity string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	closed      bool // guarded by Manager.mu
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	DedupeWindow    time.Duration
	HandlerTimeout  time.Duration
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		DedupeWindow:    10 * time.Minute,
		HandlerTimeout:  5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new websocket connection manager
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		connections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan models.Notification, 1000),
		delivered:   make(map[string]time.Time),
	}
}

// SetFrameHandler installs the handler for client frames.
func (cm *ConnectionManager) SetFrameHandler(h FrameHandler) {
	cm.mu.Lock()
	cm.handler = h
	cm.mu.Unlock()
}

// Start processes broadcasts until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	prune := cm.clock.NewTicker(cm.config.DedupeWindow)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case n := <-cm.broadcastCh:
			cm.handleBroadcast(n)
		case <-prune.Chan():
			cm.pruneDelivered()
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to websocket for identity
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		Identity:    identity,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("identity", identity).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.connections[conn.Identity] == nil {
		cm.connections[conn.Identity] = make(map[*Connection]bool)
	}
	cm.connections[conn.Identity][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("identity", conn.Identity).
		Int("identity_connections", len(cm.connections[conn.Identity])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unregisterLocked(conn)
}

func (cm *ConnectionManager) unregisterLocked(conn *Connection) {
	connections, exists := cm.connections[conn.Identity]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	conn.closed = true
	close(conn.Send)

	if len(connections) == 0 {
		delete(cm.connections, conn.Identity)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("identity", conn.Identity).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	var conns []*Connection
	for _, pool := range cm.connections {
		for c := range pool {
			conns = append(conns, c)
		}
	}
	for _, c := range conns {
		cm.unregisterLocked(c)
	}
	cm.mu.Unlock()
}

// Broadcast queues a notification for delivery to its recipient, or to every
// connection when addressed to "all". A notification id is broadcast at most
// once per dedupe window; it reports whether n was queued.
func (cm *ConnectionManager) Broadcast(n models.Notification) bool {
	if !cm.markDelivered(n.ID) {
		log.Debug().Str("notification_id", n.ID).Msg("notification already broadcast")
		return false
	}

	select {
	case cm.broadcastCh <- n:
		return true
	default:
		log.Warn().Str("notification_id", n.ID).Msg("broadcast channel full, dropping notification")
		cm.forgetDelivered(n.ID)
		return false
	}
}

func (cm *ConnectionManager) markDelivered(id string) bool {
	cm.deliveredMu.Lock()
	defer cm.deliveredMu.Unlock()

	now := cm.clock.Now()
	if at, ok := cm.delivered[id]; ok && now.Sub(at) < cm.config.DedupeWindow {
		return false
	}
	cm.delivered[id] = now
	return true
}

func (cm *ConnectionManager) forgetDelivered(id string) {
	cm.deliveredMu.Lock()
	delete(cm.delivered, id)
	cm.deliveredMu.Unlock()
}

func (cm *ConnectionManager) pruneDelivered() {
	cm.deliveredMu.Lock()
	defer cm.deliveredMu.Unlock()

	now := cm.clock.Now()
	for id, at := range cm.delivered {
		if now.Sub(at) >= cm.config.DedupeWindow {
			delete(cm.delivered, id)
		}
	}
}

func (cm *ConnectionManager) handleBroadcast(n models.Notification) {
	data, err := encodeReceive(n)
	if err != nil {
		log.Error().Err(err).Str("notification_id", n.ID).Msg("failed to encode notification for broadcast")
		return
	}

	// the sender of a broadcast already holds a read receipt for it
	senderData := data
	if n.Recipient == models.RecipientAll && n.Sender != "" && !n.Read {
		read := n
		read.Read = true
		if senderData, err = encodeReceive(read); err != nil {
			log.Error().Err(err).Str("notification_id", n.ID).Msg("failed to encode notification for sender")
			return
		}
	}

	var slow []*Connection
	sent := 0

	cm.mu.RLock()
	for identity, pool := range cm.connections {
		if n.Recipient != models.RecipientAll && identity != n.Recipient {
			continue
		}
		payload := data
		if identity == n.Sender {
			payload = senderData
		}
		for conn := range pool {
			select {
			case conn.Send <- payload:
				sent++
			default:
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("identity", conn.Identity).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("notification_id", n.ID).
		Str("recipient", n.Recipient).
		Int("connections", sent).
		Msg("notification broadcast")
}

func encodeReceive(n models.Notification) ([]byte, error) {
	frame, err := models.NewFrame(models.FrameReceiveNotification, "", n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame)
}

// ConnectionStats is a snapshot of active connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	Identities       int            `json:"identities"`
	PerIdentity      map[string]int `json:"per_identity"`
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{PerIdentity: make(map[string]int, len(cm.connections))}
	for identity, pool := range cm.connections {
		stats.TotalConnections += len(pool)
		stats.PerIdentity[identity] = len(pool)
	}
	stats.Identities = len(cm.connections)
	return stats
}

// enqueue sends data unless the connection was already unregistered.
func (c *Connection) enqueue(data []byte) bool {
	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) writePump() {
	cfg := c.Manager.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	cfg := c.Manager.config
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	var f models.Frame
	if err := json.Unmarshal(message, &f); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("dropping undecodable client frame")
		return
	}

	c.Manager.mu.RLock()
	handler := c.Manager.handler
	c.Manager.mu.RUnlock()
	if handler == nil {
		log.Debug().Str("type", string(f.Type)).Msg("no frame handler installed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.HandlerTimeout)
	defer cancel()

	reply, ok := handler.HandleFrame(ctx, c.Identity, f)
	if !ok {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply frame")
		return
	}
	if !c.enqueue(data) {
		log.Warn().Str("connection_id", c.ID).Msg("could not deliver reply frame")
	}
}
