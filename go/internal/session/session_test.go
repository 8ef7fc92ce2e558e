package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionsync/go/internal/bidrank"
	"github.com/mcdev12/auctionsync/go/internal/countdown"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/mcdev12/auctionsync/go/internal/notification"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type unreachableDialer struct{}

func (unreachableDialer) Dial(context.Context, string) (notification.Conn, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	session  *Session
	auctions *MockAuctionLister
	bids     *bidrank.MockHistoryFetcher
	clock    *clockwork.FakeClock
	mux      *http.ServeMux
}

func newFixture(t *testing.T, identity models.Identity) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	cfg := DefaultConfig()
	cfg.Bids.MaxAttempts = 1
	cfg.Bids.RetryBackoff = 0
	cfg.Notifications.MaxReconnectAttempts = 1
	cfg.Notifications.ReconnectBackoff = 0

	f := &fixture{
		auctions: NewMockAuctionLister(ctrl),
		bids:     bidrank.NewMockHistoryFetcher(ctrl),
		clock:    clockwork.NewFakeClockAt(t0),
		mux:      http.NewServeMux(),
	}
	f.session = New(identity, Deps{
		Auctions: f.auctions,
		Bids:     f.bids,
		Dialer:   unreachableDialer{},
		Backend:  notification.NewMockBackend(ctrl),
	}, cfg, WithClock(f.clock))
	t.Cleanup(f.session.Close)

	NewHandler(f.session).RegisterRoutes(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	return w
}

func auction(id string, start, end time.Time) models.Auction {
	return models.Auction{
		ID:        id,
		Title:     "Lot " + id,
		Status:    models.AuctionStatusAccepted,
		StartTime: start.Format(time.RFC3339),
		EndTime:   end.Format(time.RFC3339),
	}
}

var alice = models.Identity{Email: "alice@example.com"}

func TestSession_RefreshAuctions(t *testing.T) {
	f := newFixture(t, alice)

	gomock.InOrder(
		f.auctions.EXPECT().ListAuctions(gomock.Any()).Return([]models.Auction{
			auction("a1", t0.Add(-time.Hour), t0.Add(30*time.Minute)),
			auction("a2", t0.Add(time.Hour), t0.Add(3*time.Hour)),
			{ID: "bad", StartTime: "yesterday", EndTime: "tomorrow"},
		}, nil),
		f.auctions.EXPECT().ListAuctions(gomock.Any()).Return(nil, errors.New("502 bad gateway")),
	)

	require.NoError(t, f.session.RefreshAuctions(context.Background()))

	st := f.session.Status().Auctions
	require.Equal(t, 2, st.Tracked)
	require.Equal(t, 2, st.Active)
	require.Equal(t, 1, st.Skipped)
	require.Equal(t, t0, st.LastRefresh)
	require.Empty(t, st.LastError)

	require.Error(t, f.session.RefreshAuctions(context.Background()))

	st = f.session.Status().Auctions
	require.Equal(t, 2, st.Tracked, "a failed refresh keeps the tracked auctions")
	require.Equal(t, "failed to refresh auctions", st.LastError)
}

func TestHandler_ListAuctionsByUrgency(t *testing.T) {
	f := newFixture(t, alice)

	f.auctions.EXPECT().ListAuctions(gomock.Any()).Return([]models.Auction{
		auction("soon", t0.Add(-time.Hour), t0.Add(30*time.Minute)),
		auction("later", t0.Add(time.Hour), t0.Add(3*time.Hour)),
	}, nil)
	require.NoError(t, f.session.RefreshAuctions(context.Background()))

	w := f.do(t, http.MethodGet, "/view/auctions?urgency=ending-soon", "")
	require.Equal(t, http.StatusOK, w.Code)

	var views []countdown.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	require.Equal(t, "soon", views[0].AuctionID)
	require.Equal(t, "30m left", views[0].Label)

	w = f.do(t, http.MethodGet, "/view/auctions/later", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"label":"1h to start"`)

	w = f.do(t, http.MethodGet, "/view/auctions/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ListBids(t *testing.T) {
	f := newFixture(t, alice)

	f.bids.EXPECT().FetchBidHistory(gomock.Any(), "alice@example.com").Return([]models.BidRecord{
		{ID: "b1", AuctionID: "a1", AuctionTitle: "Lamp", BidAmount: 10, Status: "Won", Position: models.At(1), TopBiddersLength: 3},
		{ID: "b2", AuctionID: "a2", AuctionTitle: "Chair", BidAmount: 20, Status: "Lost", Position: models.At(2), TopBiddersLength: 3},
		{ID: "b3", AuctionID: "a3", AuctionTitle: "Desk", BidAmount: 30, Status: "Won", Position: models.At(1), TopBiddersLength: 2},
	}, nil)

	w := f.do(t, http.MethodPost, "/view/bids/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/view/bids?filter=Won&sort=desc&size=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Page   bidrank.Page   `json:"page"`
		Status bidrank.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Page.Total)
	require.Equal(t, 2, body.Page.TotalPages)
	require.Len(t, body.Page.Items, 1)
	require.Equal(t, "b3", body.Page.Items[0].ID)
	require.Equal(t, 3, body.Status.Rows)

	w = f.do(t, http.MethodGet, "/view/bids/board", "")
	require.Equal(t, http.StatusOK, w.Code)
	var board []bidrank.Standing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	require.Len(t, board, 3)
}

func TestHandler_ListBidsRejectsBadQuery(t *testing.T) {
	f := newFixture(t, alice)

	for _, target := range []string{
		"/view/bids?filter=Pending",
		"/view/bids?sort=sideways",
		"/view/bids?page=0",
		"/view/bids?size=abc",
	} {
		w := f.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestHandler_RefreshBidsWithoutIdentity(t *testing.T) {
	f := newFixture(t, models.Identity{})

	w := f.do(t, http.MethodPost, "/view/bids/refresh", "")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_NotificationsWhileDisconnected(t *testing.T) {
	f := newFixture(t, alice)

	w := f.do(t, http.MethodGet, "/view/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"notifications":[],"unread":0}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/view/notifications/n1/read", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/view/notifications/read-all", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"marked":0,"unread":0}`, w.Body.String())

	// Sends fail fast instead of queueing.
	w = f.do(t, http.MethodPost, "/view/announcements", `{"title":"Hi","content":"Welcome"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = f.do(t, http.MethodPost, "/view/announcements", `{"title":"Hi"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSession_RunMarksNotificationsUnavailable(t *testing.T) {
	f := newFixture(t, alice)

	f.auctions.EXPECT().ListAuctions(gomock.Any()).Return(nil, nil).AnyTimes()
	f.bids.EXPECT().FetchBidHistory(gomock.Any(), "alice@example.com").Return(nil, nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.session.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return f.session.Status().Notifications.Unavailable
	}, 2*time.Second, 10*time.Millisecond)

	w := f.do(t, http.MethodGet, "/view/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, "notifications unavailable", st.Notifications.LastError)
	require.Equal(t, "alice@example.com", st.Identity.Email)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}

	require.ErrorIs(t, f.session.Bids.Refresh(context.Background()), bidrank.ErrStopped)
}

func TestSession_RunWithoutIdentityTracksAuctionsOnly(t *testing.T) {
	f := newFixture(t, models.Identity{})

	refreshed := make(chan struct{}, 1)
	f.auctions.EXPECT().ListAuctions(gomock.Any()).DoAndReturn(func(context.Context) ([]models.Auction, error) {
		select {
		case refreshed <- struct{}{}:
		default:
		}
		return []models.Auction{auction("a1", t0.Add(-time.Hour), t0.Add(time.Hour))}, nil
	}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.session.Run(ctx)
	}()

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("auctions were not refreshed")
	}

	require.Eventually(t, func() bool {
		return f.session.Status().Auctions.Tracked == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, notification.Disconnected, f.session.Status().Notifications.State)

	cancel()
	require.NoError(t, <-done)
}
