package bidrank

import (
	"sort"
	"time"

	"github.com/mcdev12/auctionsync/go/internal/models"
)

// Standing is a bidder's aggregate state in one auction on the status board.
type Standing struct {
	AuctionID        string            `json:"auctionId"`
	AuctionTitle     string            `json:"auctionTitle"`
	AuctionImage     string            `json:"auctionImage,omitempty"`
	BestBid          float64           `json:"bestBid"`
	Bids             int               `json:"bids"`
	LastBidAt        time.Time         `json:"lastBidAt"`
	Position         models.Position   `json:"position"`
	TopBiddersLength int               `json:"topBiddersLength"`
	Progress         float64           `json:"progress"`
	Outcome          models.BidOutcome `json:"outcome,omitempty"`
}

// Board groups a bidder's history into one standing per auction, ordered by
// most recent bid first. Ranks are taken as delivered: the best (lowest)
// position across the bidder's rows in an auction wins.
func Board(history []models.BidRecord) []Standing {
	byAuction := make(map[string]*Standing)
	order := make([]string, 0)

	for _, b := range Normalize(history) {
		s, ok := byAuction[b.AuctionID]
		if !ok {
			s = &Standing{
				AuctionID:    b.AuctionID,
				AuctionTitle: b.AuctionTitle,
				AuctionImage: b.AuctionImage,
			}
			byAuction[b.AuctionID] = s
			order = append(order, b.AuctionID)
		}

		s.Bids++
		if b.BidAmount > s.BestBid {
			s.BestBid = b.BidAmount
		}
		if b.Timestamp.After(s.LastBidAt) {
			s.LastBidAt = b.Timestamp
		}
		if b.TopBiddersLength > s.TopBiddersLength {
			s.TopBiddersLength = b.TopBiddersLength
		}
		if b.Position.Valid && (!s.Position.Valid || b.Position.Rank < s.Position.Rank) {
			s.Position = b.Position
		}
		s.Outcome = mergeOutcome(s.Outcome, b.Outcome())
	}

	out := make([]Standing, 0, len(order))
	for _, id := range order {
		s := byAuction[id]
		s.Progress = ProgressPercent(models.BidRecord{Position: s.Position, TopBiddersLength: s.TopBiddersLength})
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastBidAt.After(out[j].LastBidAt)
	})
	return out
}

// Won dominates Lost, which dominates in-progress.
func mergeOutcome(cur, next models.BidOutcome) models.BidOutcome {
	switch {
	case cur == models.OutcomeWon || next == models.OutcomeWon:
		return models.OutcomeWon
	case cur == models.OutcomeLost || next == models.OutcomeLost:
		return models.OutcomeLost
	default:
		return ""
	}
}
