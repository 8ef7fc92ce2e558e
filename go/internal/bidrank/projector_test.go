package bidrank

import (
	"testing"
	"time"

	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func fixture() []models.BidRecord {
	return []models.BidRecord{
		{ID: "b1", AuctionID: "a1", AuctionTitle: "Vintage Camera", BidderName: "Alice", BidAmount: 120, Timestamp: t0, Status: "Won", Position: models.At(1), TopBiddersLength: 3},
		{ID: "b2", AuctionID: "a2", AuctionTitle: "Oak Desk", BidderName: "Alice", BidAmount: 75.5, Timestamp: t0.Add(time.Minute), Status: "Lost", Position: models.At(3), TopBiddersLength: 3},
		{ID: "b3", AuctionID: "a3", AuctionTitle: "Camera Lens", BidderName: "Alice", BidAmount: 120, Timestamp: t0.Add(2 * time.Minute), Status: "Pending", Position: models.At(2), TopBiddersLength: 5},
		{ID: "b4", AuctionID: "a1", AuctionTitle: "Vintage Camera", BidderName: "Alice", BidAmount: 90, Timestamp: t0.Add(3 * time.Minute), Status: "won", Position: models.NoPosition, TopBiddersLength: 3},
		{ID: "b5", AuctionID: "a4", AuctionTitle: "Desk Lamp", BidderName: "Alice", BidAmount: 1200, Timestamp: t0.Add(4 * time.Minute), Status: "Lost", Position: models.At(5), TopBiddersLength: 5},
	}
}

func ids(rows []models.BidRecord) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestFilterByOutcome(t *testing.T) {
	tests := []struct {
		name   string
		filter models.BidOutcome
		want   []string
	}{
		{name: "all", filter: models.OutcomeAll, want: []string{"b1", "b2", "b3", "b4", "b5"}},
		{name: "empty_is_all", filter: "", want: []string{"b1", "b2", "b3", "b4", "b5"}},
		{name: "won_case_insensitive", filter: models.OutcomeWon, want: []string{"b1", "b4"}},
		{name: "lost", filter: models.OutcomeLost, want: []string{"b2", "b5"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FilterByOutcome(fixture(), tc.filter)
			require.Equal(t, tc.want, ids(got))
			require.Equal(t, ids(got), ids(FilterByOutcome(got, tc.filter)), "filter must be idempotent")
		})
	}
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty_is_identity", query: "  ", want: []string{"b1", "b2", "b3", "b4", "b5"}},
		{name: "title_case_insensitive", query: "CAMERA", want: []string{"b1", "b3", "b4"}},
		{name: "amount_stringified", query: "75.5", want: []string{"b2"}},
		{name: "amount_prefix", query: "120", want: []string{"b1", "b3", "b5"}},
		{name: "status", query: "pend", want: []string{"b3"}},
		{name: "bidder_name", query: "alice", want: []string{"b1", "b2", "b3", "b4", "b5"}},
		{name: "no_match", query: "bicycle", want: []string{}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ids(Search(fixture(), tc.query)))
		})
	}
}

func TestFilterSearchCommute(t *testing.T) {
	h := fixture()
	filters := []models.BidOutcome{models.OutcomeAll, models.OutcomeWon, models.OutcomeLost}
	queries := []string{"", "camera", "desk", "120", "lost", "zzz"}

	for _, f := range filters {
		for _, q := range queries {
			a := FilterByOutcome(Search(h, q), f)
			b := Search(FilterByOutcome(h, f), q)
			require.Equal(t, ids(a), ids(b), "filter=%s query=%q", f, q)
		}
	}
}

func TestSortByAmount_Stable(t *testing.T) {
	h := fixture()

	asc := SortByAmount(h, Asc)
	require.Equal(t, []string{"b2", "b4", "b1", "b3", "b5"}, ids(asc))

	desc := SortByAmount(h, Desc)
	require.Equal(t, []string{"b5", "b1", "b3", "b4", "b2"}, ids(desc))

	// input untouched
	require.Equal(t, []string{"b1", "b2", "b3", "b4", "b5"}, ids(h))
}

func TestPaginate(t *testing.T) {
	h := fixture()

	tests := []struct {
		name      string
		page      int
		size      int
		want      []string
		wantPages int
	}{
		{name: "first_page", page: 1, size: 2, want: []string{"b1", "b2"}, wantPages: 3},
		{name: "last_partial", page: 3, size: 2, want: []string{"b5"}, wantPages: 3},
		{name: "past_end", page: 4, size: 2, want: []string{}, wantPages: 3},
		{name: "page_below_one", page: 0, size: 2, want: []string{"b1", "b2"}, wantPages: 3},
		{name: "no_size_single_page", page: 1, size: 0, want: []string{"b1", "b2", "b3", "b4", "b5"}, wantPages: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := Paginate(h, tc.page, tc.size)
			require.Equal(t, tc.want, ids(p.Items))
			require.Equal(t, tc.wantPages, p.TotalPages)
			require.Equal(t, len(h), p.Total)
		})
	}

	empty := Paginate(nil, 1, 0)
	require.Empty(t, empty.Items)
	require.Zero(t, empty.TotalPages)
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name string
		rec  models.BidRecord
		want float64
	}{
		{name: "two_of_five", rec: models.BidRecord{Position: models.At(2), TopBiddersLength: 5}, want: 40},
		{name: "na_empty_set", rec: models.BidRecord{Position: models.NoPosition, TopBiddersLength: 0}, want: 0},
		{name: "valid_rank_empty_set", rec: models.BidRecord{Position: models.At(1), TopBiddersLength: 0}, want: 0},
		{name: "clamped_high", rec: models.BidRecord{Position: models.At(9), TopBiddersLength: 3}, want: 100},
		{name: "clamped_low", rec: models.BidRecord{Position: models.At(-2), TopBiddersLength: 3}, want: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tc.want, ProgressPercent(tc.rec), 1e-9)
		})
	}
}

func TestNormalize_RankBound(t *testing.T) {
	h := []models.BidRecord{
		{ID: "ok", Position: models.At(2), TopBiddersLength: 3},
		{ID: "zero", Position: models.At(0), TopBiddersLength: 3},
		{ID: "over", Position: models.At(4), TopBiddersLength: 3},
		{ID: "na", Position: models.NoPosition, TopBiddersLength: 3},
		{ID: "neg_len", Position: models.At(1), TopBiddersLength: -1},
	}

	got := Normalize(h)
	for _, r := range got {
		if r.Position.Valid {
			require.GreaterOrEqual(t, r.Position.Rank, 1)
			require.LessOrEqual(t, r.Position.Rank, r.TopBiddersLength)
		}
	}
	require.True(t, got[0].Position.Valid)
	require.False(t, got[1].Position.Valid)
	require.False(t, got[2].Position.Valid)
	require.False(t, got[4].Position.Valid)
	require.Equal(t, 0, got[4].TopBiddersLength)

	// input untouched
	require.True(t, h[2].Position.Valid)
}

func TestProject(t *testing.T) {
	p := Project(fixture(), Query{Filter: models.OutcomeWon, Search: "camera", Sort: Desc, Page: 1, Size: 1})
	require.Equal(t, []string{"b1"}, ids(p.Items))
	require.Equal(t, 2, p.Total)
	require.Equal(t, 2, p.TotalPages)
}

func TestBoard(t *testing.T) {
	board := Board(fixture())
	require.Len(t, board, 4)

	// most recent bid first
	require.Equal(t, "a4", board[0].AuctionID)

	var camera Standing
	for _, s := range board {
		if s.AuctionID == "a1" {
			camera = s
		}
	}
	require.Equal(t, 2, camera.Bids)
	require.Equal(t, float64(120), camera.BestBid)
	require.Equal(t, models.At(1), camera.Position)
	require.Equal(t, models.OutcomeWon, camera.Outcome)
	require.InDelta(t, 33.333, camera.Progress, 0.01)
	require.True(t, camera.LastBidAt.Equal(t0.Add(3*time.Minute)))
}
