package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedWindow is returned when an auction's start/end timestamps are
// missing, unparseable or out of order.
var ErrMalformedWindow = errors.New("malformed auction time window")

// AuctionStatus is the server-assigned moderation flag, independent of the time-derived phase.
type AuctionStatus string

const (
	AuctionStatusPending  AuctionStatus = "Pending"
	AuctionStatusAccepted AuctionStatus = "Accepted"
	AuctionStatusRejected AuctionStatus = "Rejected"
)

// Auction represents an auction as returned by the auction read endpoint.
// StartTime and EndTime are kept as the raw server strings so a single bad
// row cannot fail decoding of the whole collection.
type Auction struct {
	ID           string        `json:"_id"`
	Title        string        `json:"title"`
	Image        string        `json:"image,omitempty"`
	Status       AuctionStatus `json:"status"`
	StartingBid  float64       `json:"startingBid"`
	CurrentBid   float64       `json:"currentBid"`
	SellerEmail  string        `json:"sellerEmail,omitempty"`
	StartTime    string        `json:"startTime"`
	EndTime      string        `json:"endTime"`
	BiddersCount int           `json:"biddersCount"`
}

// timeLayouts are the absolute timestamp formats accepted from the backend.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
}

// Window parses the auction's start and end timestamps.
func (a Auction) Window() (time.Time, time.Time, error) {
	start, err := parseTimestamp(a.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start time %q: %w", a.StartTime, err)
	}
	end, err := parseTimestamp(a.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end time %q: %w", a.EndTime, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s before start %s: %w", a.EndTime, a.StartTime, ErrMalformedWindow)
	}
	return start, end, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing: %w", ErrMalformedWindow)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable: %w", ErrMalformedWindow)
}
