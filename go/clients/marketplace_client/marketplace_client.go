package marketplace_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mcdev12/auctionsync/go/clients"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/rs/zerolog/log"
)

// MarketplaceClient talks to the marketplace REST API for auctions and bid
// history, and to the notification hub for bulk notification reads and
// read receipts.
type MarketplaceClient struct {
	*clients.BaseClient
	hub *clients.BaseClient
}

// NewMarketplaceClient creates a client. An empty hubURL sends notification
// calls to apiURL.
func NewMarketplaceClient(apiURL, hubURL string) *MarketplaceClient {
	if hubURL == "" {
		hubURL = apiURL
	}
	client := &MarketplaceClient{
		BaseClient: clients.NewBaseClient(apiURL),
		hub:        clients.NewBaseClient(hubURL),
	}

	client.SetHeader(JsonHeader, JsonContentType)
	client.hub.SetHeader(JsonHeader, JsonContentType)

	return client
}

// SetBearerToken authenticates both APIs with the session token.
func (c *MarketplaceClient) SetBearerToken(token string) {
	c.SetHeader(AuthHeader, "Bearer "+token)
	c.hub.SetHeader(AuthHeader, "Bearer "+token)
}

// ListAuctions returns every auction. Rows that cannot be decoded are
// skipped with a warning instead of failing the whole list.
func (c *MarketplaceClient) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	var rows []json.RawMessage
	if err := c.GetJSON(ctx, AuctionsPath, &rows); err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}

	return decodeRows[models.Auction](rows, "auction"), nil
}

// decodeRows decodes each row on its own so one malformed row only drops
// itself.
func decodeRows[T any](rows []json.RawMessage, kind string) []T {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		var v T
		if err := json.Unmarshal(row, &v); err != nil {
			log.Warn().Err(err).Int("row", i).Str("kind", kind).Msg("skipping undecodable row")
			continue
		}
		out = append(out, v)
	}
	return out
}

// FetchBidHistory returns the bid history of one bidder, annotated with
// position and top bidders length. Undecodable rows are skipped.
func (c *MarketplaceClient) FetchBidHistory(ctx context.Context, identity string) ([]models.BidRecord, error) {
	endpoint := BidHistoryPath + "?" + url.Values{BidderEmailParam: {identity}}.Encode()

	var rows []json.RawMessage
	if err := c.GetJSON(ctx, endpoint, &rows); err != nil {
		return nil, fmt.Errorf("fetch bid history: %w", err)
	}
	return decodeRows[models.BidRecord](rows, "bid"), nil
}

// FetchNotifications returns the notifications addressed to identity,
// including broadcasts, with identity's read flags. Undecodable rows are
// skipped.
func (c *MarketplaceClient) FetchNotifications(ctx context.Context, identity string) ([]models.Notification, error) {
	endpoint := NotificationsPath + "?" + url.Values{RecipientParam: {identity}}.Encode()

	var rows []json.RawMessage
	if err := c.hub.GetJSON(ctx, endpoint, &rows); err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	return decodeRows[models.Notification](rows, "notification"), nil
}

// MarkRead records that identity read one notification. Idempotent.
func (c *MarketplaceClient) MarkRead(ctx context.Context, identity, id string) error {
	endpoint := fmt.Sprintf("%s/%s/read", NotificationsPath, url.PathEscape(id))
	if err := c.hub.PutJSON(ctx, endpoint, models.ReadReceipt{Identity: identity}, nil); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead records that identity read the given notifications. Idempotent.
func (c *MarketplaceClient) MarkAllRead(ctx context.Context, identity string, ids []string) error {
	if err := c.hub.PutJSON(ctx, ReadAllPath, models.ReadReceipt{Identity: identity, IDs: ids}, nil); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
