package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live duplex connection to the notification hub.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Conn scoped to an identity.
type Dialer interface {
	Dial(ctx context.Context, identity string) (Conn, error)
}

// WebsocketConfig holds client-side websocket settings.
type WebsocketConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// DefaultWebsocketConfig mirrors the hub's ping cadence: the hub pings every
// 30s, so a minute without traffic means the connection is dead.
func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// WebsocketDialer dials the hub's websocket endpoint with gorilla/websocket.
type WebsocketDialer struct {
	endpoint string
	header   http.Header
	config   WebsocketConfig
	dialer   *websocket.Dialer
}

// NewWebsocketDialer creates a dialer for endpoint, e.g. ws://localhost:8090/ws.
func NewWebsocketDialer(endpoint string, header http.Header, config WebsocketConfig) *WebsocketDialer {
	return &WebsocketDialer{
		endpoint: endpoint,
		header:   header,
		config:   config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial connects as identity.
func (d *WebsocketDialer) Dial(ctx context.Context, identity string) (Conn, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse hub endpoint: %w", err)
	}
	q := u.Query()
	q.Set("identity", identity)
	u.RawQuery = q.Encode()

	c, resp, err := d.dialer.DialContext(ctx, u.String(), d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial hub: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return newWSConn(c, d.config), nil
}

type wsConn struct {
	conn    *websocket.Conn
	config  WebsocketConfig
	writeMu sync.Mutex
}

func newWSConn(c *websocket.Conn, config WebsocketConfig) *wsConn {
	w := &wsConn{conn: c, config: config}
	if config.MaxMessageSize > 0 {
		c.SetReadLimit(config.MaxMessageSize)
	}
	w.extendReadDeadline()
	c.SetPingHandler(func(appData string) error {
		w.extendReadDeadline()
		err := c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(config.WriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return w
}

func (w *wsConn) extendReadDeadline() {
	if w.config.ReadTimeout > 0 {
		w.conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
	}
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	w.extendReadDeadline()
	return data, nil
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.config.WriteTimeout > 0 {
		w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}
