package main

import (
	"net/http"

	"github.com/mcdev12/auctionsync/go/clients/marketplace_client"
	"github.com/mcdev12/auctionsync/go/internal/config"
	"github.com/mcdev12/auctionsync/go/internal/notification"
	"github.com/mcdev12/auctionsync/go/internal/session"
)

type Services struct {
	Marketplace *marketplace_client.MarketplaceClient
	Session     *session.Session
}

func setupServices(cfg config.SessionConfig) *Services {
	// Wire up dependency injection chain
	// REST clients + websocket dialer → components → session

	client := marketplace_client.NewMarketplaceClient(cfg.APIURL, cfg.HubURL)
	header := http.Header{}
	if cfg.Token != "" {
		client.SetBearerToken(cfg.Token)
		header.Set(marketplace_client.AuthHeader, "Bearer "+cfg.Token)
	}

	dialer := notification.NewWebsocketDialer(cfg.HubWebsocketURL, header, notification.DefaultWebsocketConfig())

	sessionConfig := session.Config{
		AuctionRefresh: cfg.AuctionRefresh,
		Countdown:      cfg.Countdown(),
		Bids:           cfg.Bids(),
		Notifications:  cfg.Notifications(),
	}

	s := session.New(cfg.Identity, session.Deps{
		Auctions: client,
		Bids:     client,
		Dialer:   dialer,
		Backend:  client,
	}, sessionConfig)

	return &Services{
		Marketplace: client,
		Session:     s,
	}
}
