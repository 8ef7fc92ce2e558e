package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
)

type HealthStatus struct {
	Healthy           bool            `json:"healthy"`
	DatabaseConnected bool            `json:"database_connected"`
	NATSConnected     bool            `json:"nats_connected"`
	ListenerActive    bool            `json:"listener_active"`
	Connections       ConnectionStats `json:"connections"`
	Errors            []string        `json:"errors"`
}

// HealthChecker reports on the hub's dependencies. Any nil dependency is
// skipped, which keeps the checker usable in tests and partial deployments.
type HealthChecker struct {
	db       *sql.DB
	natsConn *nats.Conn
	listener *Listener
	cm       *ConnectionManager
}

func NewHealthChecker(db *sql.DB, natsConn *nats.Conn, listener *Listener, cm *ConnectionManager) *HealthChecker {
	return &HealthChecker{db: db, natsConn: natsConn, listener: listener, cm: cm}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		} else {
			status.DatabaseConnected = true
		}
	}

	if h.natsConn != nil {
		status.NATSConnected = h.natsConn.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if h.listener != nil {
		status.ListenerActive = h.listener.Active()
		if !status.ListenerActive {
			status.Healthy = false
			status.Errors = append(status.Errors, "listener not active")
		}
	}

	if h.cm != nil {
		status.Connections = h.cm.Stats()
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
