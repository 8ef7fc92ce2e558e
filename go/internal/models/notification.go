package models

import (
	"encoding/json"
	"time"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationAnnouncement NotificationType = "announcement"
	NotificationAuctionWin   NotificationType = "auction-win"
)

// RecipientAll addresses a notification to every connected identity.
const RecipientAll = "all"

// Notification is a single server-assigned notification.
type Notification struct {
	ID        string           `json:"_id" validate:"required"`
	Type      NotificationType `json:"type" validate:"required"`
	Title     string           `json:"title" validate:"required"`
	Message   string           `json:"message"`
	Sender    string           `json:"sender,omitempty"`
	Recipient string           `json:"recipient"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

// AddressedTo reports whether the notification should reach the given identity key.
func (n Notification) AddressedTo(key string) bool {
	return n.Recipient == RecipientAll || (key != "" && n.Recipient == key)
}

// OutboundNotification is what a client asks the hub to create and fan out.
type OutboundNotification struct {
	Type      NotificationType `json:"type" validate:"required"`
	Title     string           `json:"title" validate:"required"`
	Message   string           `json:"message" validate:"required"`
	Sender    string           `json:"sender,omitempty"`
	Recipient string           `json:"recipient" validate:"required"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

// Announcement is the embedded payload of an announcement notification.
type Announcement struct {
	ID      string `json:"_id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author,omitempty"`
}

// AuctionWonPayload is published on the auction event stream when an auction
// closes with a winner, and embedded in the resulting auction-win notification.
type AuctionWonPayload struct {
	AuctionID    string    `json:"auctionId" validate:"required"`
	AuctionTitle string    `json:"auctionTitle" validate:"required"`
	AuctionImage string    `json:"auctionImage,omitempty"`
	Winner       string    `json:"winner" validate:"required"`
	Amount       float64   `json:"amount"`
	EndedAt      time.Time `json:"endedAt"`
}

// ReadReceipt is the body of the hub's mark-read endpoints. IDs is only used
// by the bulk endpoint; an empty list marks everything addressed to Identity.
type ReadReceipt struct {
	Identity string   `json:"identity" validate:"required"`
	IDs      []string `json:"ids,omitempty"`
}
