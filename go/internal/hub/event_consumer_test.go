package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/stretchr/testify/require"
)

type publisherFunc func(ctx context.Context, n models.Notification) error

func (f publisherFunc) Publish(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}

func TestAuctionWinNotification(t *testing.T) {
	endedAt := time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		data    string
		wantErr bool
		check   func(t *testing.T, n models.Notification)
	}{
		{
			name: "valid",
			data: `{"auctionId":"a1","auctionTitle":"Brass Lamp","winner":"bob@example.com","amount":125.5,"endedAt":"2024-06-01T18:30:00Z"}`,
			check: func(t *testing.T, n models.Notification) {
				require.Equal(t, "auction-win-a1", n.ID)
				require.Equal(t, models.NotificationAuctionWin, n.Type)
				require.Equal(t, "You won Brass Lamp", n.Title)
				require.Equal(t, "Your bid of $125.50 won Brass Lamp.", n.Message)
				require.Equal(t, "bob@example.com", n.Recipient)
				require.Equal(t, endedAt, n.Timestamp)

				var payload models.AuctionWonPayload
				require.NoError(t, json.Unmarshal(n.Payload, &payload))
				require.Equal(t, "a1", payload.AuctionID)
			},
		},
		{name: "not_json", data: `{"auctionId":`, wantErr: true},
		{name: "missing_winner", data: `{"auctionId":"a1","auctionTitle":"Brass Lamp"}`, wantErr: true},
		{name: "missing_auction", data: `{"auctionTitle":"Brass Lamp","winner":"bob@example.com"}`, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, err := AuctionWinNotification([]byte(tc.data))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, n)
		})
	}
}

func TestEventConsumer_HandleAuctionWon(t *testing.T) {
	valid := []byte(`{"auctionId":"a1","auctionTitle":"Brass Lamp","winner":"bob@example.com","amount":10}`)

	t.Run("publishes", func(t *testing.T) {
		var got models.Notification
		ec := &EventConsumer{publisher: publisherFunc(func(_ context.Context, n models.Notification) error {
			got = n
			return nil
		})}
		require.NoError(t, ec.handleAuctionWon(context.Background(), valid))
		require.Equal(t, "auction-win-a1", got.ID)
	})

	t.Run("malformed_is_poison", func(t *testing.T) {
		ec := &EventConsumer{publisher: publisherFunc(func(context.Context, models.Notification) error {
			t.Fatal("publish must not be called")
			return nil
		})}
		err := ec.handleAuctionWon(context.Background(), []byte(`nope`))
		require.Error(t, err)
		require.True(t, isPoison(err))
	})

	t.Run("publish_failure_is_retryable", func(t *testing.T) {
		boom := errors.New("db down")
		ec := &EventConsumer{publisher: publisherFunc(func(context.Context, models.Notification) error {
			return boom
		})}
		err := ec.handleAuctionWon(context.Background(), valid)
		require.ErrorIs(t, err, boom)
		require.False(t, isPoison(err))
	})
}
