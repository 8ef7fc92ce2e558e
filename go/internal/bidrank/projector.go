// Package bidrank projects a bidder's server-ranked bid history into the
// filtered, searched and sorted views shown in the history table and the
// status board. Everything in this file is pure.
package bidrank

import (
	"slices"
	"strconv"
	"strings"

	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Direction orders SortByAmount.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// FilterByOutcome keeps the rows whose outcome matches filter. OutcomeAll and
// an empty filter keep everything.
func FilterByOutcome(history []models.BidRecord, filter models.BidOutcome) []models.BidRecord {
	if filter == "" || filter == models.OutcomeAll {
		return slices.Clone(history)
	}
	out := make([]models.BidRecord, 0, len(history))
	for _, b := range history {
		if b.Outcome() == filter {
			out = append(out, b)
		}
	}
	return out
}

// Search keeps the rows where query occurs, case-insensitively, in the bidder
// name, the stringified amount, the status or the auction title.
func Search(history []models.BidRecord, query string) []models.BidRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return slices.Clone(history)
	}
	out := make([]models.BidRecord, 0, len(history))
	for _, b := range history {
		if matches(b, q) {
			out = append(out, b)
		}
	}
	return out
}

func matches(b models.BidRecord, q string) bool {
	fields := [...]string{
		b.BidderName,
		FormatAmount(b.BidAmount),
		b.Status,
		b.AuctionTitle,
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// FormatAmount stringifies an amount the way it is searched: shortest exact
// decimal, no trailing zeros.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// SortByAmount returns a copy sorted by bid amount. Ties keep their relative order.
func SortByAmount(history []models.BidRecord, dir Direction) []models.BidRecord {
	out := slices.Clone(history)
	slices.SortStableFunc(out, func(a, b models.BidRecord) int {
		c := compareFloat(a.BidAmount, b.BidAmount)
		if dir == Desc {
			return -c
		}
		return c
	})
	return out
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Page is one page of a projected history.
type Page struct {
	Items      []models.BidRecord `json:"items"`
	Page       int                `json:"page"`
	Size       int                `json:"size"`
	Total      int                `json:"total"`
	TotalPages int                `json:"totalPages"`
}

// Paginate slices history into 1-based pages. A non-positive size returns a
// single page holding everything; pages past the end are empty.
func Paginate(history []models.BidRecord, page, size int) Page {
	total := len(history)
	if size <= 0 {
		size = total
	}
	if page < 1 {
		page = 1
	}

	p := Page{Page: page, Size: size, Total: total, Items: []models.BidRecord{}}
	if size == 0 {
		return p
	}
	p.TotalPages = (total + size - 1) / size

	from := (page - 1) * size
	if from >= total {
		return p
	}
	to := min(from+size, total)
	p.Items = slices.Clone(history[from:to])
	return p
}

// ProgressPercent is the progress-bar width for a row: position over the top
// bidders length, clamped to [0, 100]. No position or an empty top set is 0.
func ProgressPercent(b models.BidRecord) float64 {
	if !b.Position.Valid || b.TopBiddersLength <= 0 {
		return 0
	}
	pct := float64(b.Position.Rank) / float64(b.TopBiddersLength) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// Normalize enforces 1 <= position <= topBiddersLength on every row. Rows that
// violate it get no position and are logged as a data-quality problem.
func Normalize(history []models.BidRecord) []models.BidRecord {
	out := slices.Clone(history)
	for i := range out {
		b := &out[i]
		if b.TopBiddersLength < 0 {
			b.TopBiddersLength = 0
		}
		if !b.Position.Valid {
			continue
		}
		if b.Position.Rank < 1 || b.Position.Rank > b.TopBiddersLength {
			log.Warn().
				Str("bid_id", b.ID).
				Str("auction_id", b.AuctionID).
				Int("position", b.Position.Rank).
				Int("top_bidders_length", b.TopBiddersLength).
				Msg("bid position out of range, dropping it")
			b.Position = models.NoPosition
		}
	}
	return out
}

// Query bundles the history table controls.
type Query struct {
	Filter models.BidOutcome
	Search string
	Sort   Direction
	Page   int
	Size   int
}

// Project applies filter, search, sort and pagination in that order.
func Project(history []models.BidRecord, q Query) Page {
	rows := FilterByOutcome(history, q.Filter)
	rows = Search(rows, q.Search)
	if q.Sort != "" {
		rows = SortByAmount(rows, q.Sort)
	}
	return Paginate(rows, q.Page, q.Size)
}
