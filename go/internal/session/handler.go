package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mcdev12/auctionsync/go/internal/bidrank"
	"github.com/mcdev12/auctionsync/go/internal/countdown"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/mcdev12/auctionsync/go/internal/notification"
	"github.com/rs/zerolog/log"
)

const defaultPageSize = 10

// Handler serves the session's views.
type Handler struct {
	session     *Session
	sendTimeout time.Duration
}

func NewHandler(s *Session) *Handler {
	return &Handler{session: s, sendTimeout: 10 * time.Second}
}

// RegisterRoutes registers the view routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /view/auctions", h.ListAuctions)
	mux.HandleFunc("GET /view/auctions/{id}", h.GetAuction)
	mux.HandleFunc("GET /view/bids", h.ListBids)
	mux.HandleFunc("GET /view/bids/board", h.BidBoard)
	mux.HandleFunc("POST /view/bids/refresh", h.RefreshBids)
	mux.HandleFunc("GET /view/notifications", h.ListNotifications)
	mux.HandleFunc("POST /view/notifications/{id}/read", h.MarkRead)
	mux.HandleFunc("POST /view/notifications/read-all", h.MarkAllRead)
	mux.HandleFunc("POST /view/notifications/reconnect", h.Reconnect)
	mux.HandleFunc("POST /view/announcements", h.SendAnnouncement)
	mux.HandleFunc("GET /view/status", h.Status)
}

// ListAuctions returns every tracked auction's countdown, optionally only
// those of one urgency class.
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	views := h.session.Engine.Snapshot()

	if urgency := countdown.Urgency(r.URL.Query().Get("urgency")); urgency != "" {
		filtered := make([]countdown.View, 0, len(views))
		for _, v := range views {
			if v.Urgency == urgency {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	view, ok := h.session.Engine.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "auction not tracked")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListBids serves the bid history table: ?filter=Won|Lost|All&q=&sort=asc|desc&page=&size=
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	q, err := parseBidQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"page":   h.session.Bids.View(q),
		"status": h.session.Bids.Status(),
	})
}

func parseBidQuery(r *http.Request) (bidrank.Query, error) {
	values := r.URL.Query()
	q := bidrank.Query{
		Filter: models.BidOutcome(values.Get("filter")),
		Search: values.Get("q"),
		Sort:   bidrank.Direction(values.Get("sort")),
		Page:   1,
		Size:   defaultPageSize,
	}

	switch q.Filter {
	case "", models.OutcomeAll, models.OutcomeWon, models.OutcomeLost:
	default:
		return bidrank.Query{}, errors.New("filter must be All, Won or Lost")
	}
	switch q.Sort {
	case "", bidrank.Asc, bidrank.Desc:
	default:
		return bidrank.Query{}, errors.New("sort must be asc or desc")
	}

	if v := values.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return bidrank.Query{}, errors.New("page must be a positive integer")
		}
		q.Page = page
	}
	if v := values.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			return bidrank.Query{}, errors.New("size must be a positive integer")
		}
		q.Size = size
	}
	return q, nil
}

func (h *Handler) BidBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Bids.Board())
}

// RefreshBids forces a refresh; it joins one already in flight.
func (h *Handler) RefreshBids(w http.ResponseWriter, r *http.Request) {
	err := h.session.Bids.Refresh(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.session.Bids.Status())
	case errors.Is(err, bidrank.ErrNoIdentity):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, bidrank.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("bid refresh failed")
		writeJSON(w, http.StatusBadGateway, h.session.Bids.Status())
	}
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": h.session.Notifications.Notifications(),
		"unread":        h.session.Notifications.Unread(),
	})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.session.Notifications.MarkRead(id); err != nil {
		if errors.Is(err, notification.ErrUnknownNotification) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"unread": h.session.Notifications.Unread(),
	})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	marked := h.session.Notifications.MarkAllRead()
	writeJSON(w, http.StatusOK, map[string]any{
		"marked": marked,
		"unread": h.session.Notifications.Unread(),
	})
}

func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	// The channel outlives this request.
	if err := h.session.Reconnect(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, h.session.Notifications.Status())
}

// SendAnnouncement broadcasts an announcement to every identity through the
// notification channel and reports the hub's ack.
func (h *Handler) SendAnnouncement(w http.ResponseWriter, r *http.Request) {
	var a models.Announcement
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	author := a.Author
	if author == "" {
		author = h.session.Identity().Key()
	}
	payload, err := json.Marshal(a)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := models.OutboundNotification{
		Type:      models.NotificationAnnouncement,
		Title:     a.Title,
		Message:   a.Content,
		Sender:    author,
		Recipient: models.RecipientAll,
		Payload:   payload,
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.sendTimeout)
	defer cancel()

	if err := h.session.Notifications.Send(ctx, out); err != nil {
		writeError(w, sendStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func sendStatus(err error) int {
	switch {
	case errors.Is(err, notification.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, notification.ErrSendThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, notification.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, notification.ErrAckTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, notification.ErrNotConnected), errors.Is(err, notification.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Int("status", status).Msg("failed to write json response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
