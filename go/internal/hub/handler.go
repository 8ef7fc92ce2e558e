package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	idParamKey     = "id"
	recipientParam = "recipient"
	identityParam  = "identity"
)

// NotificationService is what the HTTP handler needs from Service.
type NotificationService interface {
	List(ctx context.Context, identity string) ([]models.Notification, error)
	MarkRead(ctx context.Context, identity, id string) error
	MarkAllRead(ctx context.Context, identity string, ids []string) (int64, error)
}

// Upgrader attaches a websocket connection to an identity.
type Upgrader interface {
	UpgradeConnection(w http.ResponseWriter, r *http.Request, identity string) error
}

// Handler serves the hub's REST and websocket routes.
type Handler struct {
	svc      NotificationService
	upgrader Upgrader
	health   http.Handler
	stats    func() ConnectionStats
}

func NewHandler(svc NotificationService, cm *ConnectionManager, health http.Handler) *Handler {
	return &Handler{svc: svc, upgrader: cm, health: health, stats: cm.Stats}
}

// Routes builds the hub router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.HandleConnection)
	r.Get("/ws/stats", h.HandleConnectionStats)
	if h.health != nil {
		r.Method(http.MethodGet, "/health", h.health)
	}

	r.Route("/api/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.Put("/read-all", h.MarkAllRead)
		r.Put("/{id}/read", h.MarkRead)
	})
	return r
}

// HandleConnection upgrades /ws?identity= to the duplex notification channel.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get(identityParam)
	if identity == "" {
		http.Error(w, "identity is required", http.StatusBadRequest)
		return
	}

	if err := h.upgrader.UpgradeConnection(w, r, identity); err != nil {
		log.Error().
			Err(err).
			Str("identity", identity).
			Msg("failed to upgrade websocket connection")
		// Upgrade has already written an HTTP error response.
		return
	}
}

func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats())
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get(recipientParam)

	out, err := h.svc.List(r.Context(), identity)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, idParamKey)

	var receipt models.ReadReceipt
	if err := decodeReceipt(r, &receipt); err != nil {
		respondError(w, err)
		return
	}

	if err := h.svc.MarkRead(r.Context(), receipt.Identity, id); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "read": true})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	var receipt models.ReadReceipt
	if err := decodeReceipt(r, &receipt); err != nil {
		respondError(w, err)
		return
	}

	marked, err := h.svc.MarkAllRead(r.Context(), receipt.Identity, receipt.IDs)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": marked})
}

func decodeReceipt(r *http.Request, receipt *models.ReadReceipt) error {
	if err := json.NewDecoder(r.Body).Decode(receipt); err != nil {
		return ErrInvalidRequest
	}
	if err := models.Validate(receipt); err != nil {
		return ErrMissingIdentity
	}
	return nil
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrMissingIdentity):
		status = http.StatusBadRequest
	default:
		log.Error().Err(err).Msg("notification request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Int("status", status).Msg("failed to write json response")
	}
}
