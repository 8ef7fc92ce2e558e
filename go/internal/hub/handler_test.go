package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *MockStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewFakeClock())
	svc := NewService(store, cm, nil)
	return NewHandler(svc, cm, nil).Routes(), store
}

func TestHandler_ListNotifications(t *testing.T) {
	router, store := newTestRouter(t)

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.EXPECT().ListFor(gomock.Any(), "alice@example.com", DefaultListLimit).Return([]models.Notification{
		{ID: "n2", Type: models.NotificationAnnouncement, Title: "Hello", Recipient: models.RecipientAll, Timestamp: ts, Read: true},
		{ID: "n1", Type: models.NotificationAuctionWin, Title: "You won", Recipient: "alice@example.com", Timestamp: ts.Add(-time.Hour)},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications?recipient=alice%40example.com", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got []models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "n2", got[0].ID)
	require.True(t, got[0].Read)
	require.False(t, got[1].Read)
}

func TestHandler_ListRequiresRecipient(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_MarkRead(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		setup    func(store *MockStore)
		wantCode int
	}{
		{
			name: "ok",
			body: `{"identity":"alice@example.com"}`,
			setup: func(store *MockStore) {
				store.EXPECT().Get(gomock.Any(), "n1").Return(models.Notification{ID: "n1", Recipient: models.RecipientAll}, nil)
				store.EXPECT().MarkRead(gomock.Any(), "alice@example.com", []string{"n1"}).Return(int64(0), nil)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "unknown",
			body: `{"identity":"alice@example.com"}`,
			setup: func(store *MockStore) {
				store.EXPECT().Get(gomock.Any(), "n1").Return(models.Notification{}, ErrNotFound)
			},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "missing_identity",
			body:     `{}`,
			setup:    func(*MockStore) {},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad_json",
			body:     `{`,
			setup:    func(*MockStore) {},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			router, store := newTestRouter(t)
			tc.setup(store)

			req := httptest.NewRequest(http.MethodPut, "/api/notifications/n1/read", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, tc.wantCode, w.Code)
		})
	}
}

func TestHandler_MarkAllRead(t *testing.T) {
	router, store := newTestRouter(t)

	store.EXPECT().MarkRead(gomock.Any(), "alice@example.com", []string{"n1", "n2"}).Return(int64(2), nil)

	req := httptest.NewRequest(http.MethodPut, "/api/notifications/read-all",
		strings.NewReader(`{"identity":"alice@example.com","ids":["n1","n2"]}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Marked int64 `json:"marked"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.Marked)
}

func TestHandler_WebsocketRequiresIdentity(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthChecker_NoDependencies(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewFakeClock())
	h := NewHealthChecker(nil, nil, nil, cm)

	status := h.Check(context.Background())
	require.True(t, status.Healthy)
	require.Empty(t, status.Errors)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
