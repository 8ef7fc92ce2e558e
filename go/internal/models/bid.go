package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// BidOutcome is the coarse status of a bid history row.
type BidOutcome string

const (
	OutcomeAll  BidOutcome = "All"
	OutcomeWon  BidOutcome = "Won"
	OutcomeLost BidOutcome = "Lost"
)

// Position is a bidder's 1-based rank among an auction's top bidders.
// The backend sends either a number or "N/A".
type Position struct {
	Rank  int
	Valid bool
}

// NoPosition is the "N/A" position.
var NoPosition = Position{}

// At returns a valid position with the given rank.
func At(rank int) Position {
	return Position{Rank: rank, Valid: true}
}

// String renders the position the way the backend does.
func (p Position) String() string {
	if !p.Valid {
		return "N/A"
	}
	return strconv.Itoa(p.Rank)
}

// MarshalJSON encodes a valid position as a number and an invalid one as "N/A".
func (p Position) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte(`"N/A"`), nil
	}
	return []byte(strconv.Itoa(p.Rank)), nil
}

// UnmarshalJSON accepts numbers, numeric strings, "N/A" and null.
func (p *Position) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = NoPosition
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode position: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "N/A") {
			*p = NoPosition
			return nil
		}
		rank, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("decode position %q: %w", s, err)
		}
		*p = At(rank)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode position: %w", err)
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("decode position %s: not an integral rank", data)
	}
	*p = At(int(f))
	return nil
}

// BidRecord is one row of a bidder's bid history, already annotated server-side
// with the bidder's rank among the auction's top bidders.
type BidRecord struct {
	ID               string    `json:"_id"`
	AuctionID        string    `json:"auctionId"`
	AuctionTitle     string    `json:"auctionTitle"`
	AuctionImage     string    `json:"auctionImage,omitempty"`
	BidderName       string    `json:"bidderName"`
	BidderEmail      string    `json:"bidderEmail"`
	BidAmount        float64   `json:"bidAmount"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"`
	Position         Position  `json:"position"`
	TopBiddersLength int       `json:"topBiddersLength"`
}

// Outcome maps the free-form status onto Won, Lost or in-progress ("").
func (b BidRecord) Outcome() BidOutcome {
	switch {
	case strings.EqualFold(b.Status, string(OutcomeWon)):
		return OutcomeWon
	case strings.EqualFold(b.Status, string(OutcomeLost)):
		return OutcomeLost
	default:
		return ""
	}
}
