package notification

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

func note(id string, read bool) models.Notification {
	return models.Notification{
		ID:        id,
		Type:      models.NotificationAnnouncement,
		Title:     "Title " + id,
		Message:   "message",
		Recipient: models.RecipientAll,
		Timestamp: ts,
		Read:      read,
	}
}

func countUnread(s *Store) int {
	n := 0
	for _, x := range s.List() {
		if !x.Read {
			n++
		}
	}
	return n
}

func TestStore_ApplyIsAtMostOnce(t *testing.T) {
	s := NewStore()

	require.True(t, s.Apply(note("n1", false)))
	require.False(t, s.Apply(note("n1", false)))

	require.Equal(t, 1, s.Len())
	require.Equal(t, 1, s.Unread())
}

func TestStore_ApplyDoesNotOverwritePayload(t *testing.T) {
	s := NewStore()

	first := note("n1", false)
	first.Payload = json.RawMessage(`{"auctionId":"a1"}`)
	s.Apply(first)

	stale := note("n1", false)
	stale.Title = "stale"
	stale.Payload = json.RawMessage(`{"auctionId":"zzz"}`)
	s.Apply(stale)
	s.Merge([]models.Notification{stale})

	got, ok := s.Get("n1")
	require.True(t, ok)
	require.Equal(t, "Title n1", got.Title)
	require.JSONEq(t, `{"auctionId":"a1"}`, string(got.Payload))
}

func TestStore_ApplyIgnoresEmptyID(t *testing.T) {
	s := NewStore()
	require.False(t, s.Apply(models.Notification{Title: "no id"}))
	require.Zero(t, s.Merge([]models.Notification{{Title: "no id"}}))
	require.Zero(t, s.Len())
}

func TestStore_MergeKeepsLocalReadFlags(t *testing.T) {
	s := NewStore()
	s.Apply(note("n1", false))
	s.Apply(note("n2", false))
	changed, found := s.MarkRead("n1")
	require.True(t, changed)
	require.True(t, found)

	// a bulk fetch that started before the mark-read still says unread
	added := s.Merge([]models.Notification{note("n1", false), note("n2", true), note("n3", false)})
	require.Equal(t, 1, added)

	n1, _ := s.Get("n1")
	n2, _ := s.Get("n2")
	n3, _ := s.Get("n3")
	require.True(t, n1.Read)
	require.True(t, n2.Read)
	require.False(t, n3.Read)
	require.Equal(t, 1, s.Unread())
}

func TestStore_PendingReads(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"n1", "n2", "n3"} {
		s.Apply(note(id, false))
	}
	s.MarkRead("n3")
	s.MarkRead("n1")

	batch := []models.Notification{note("n1", false), note("n2", false), note("n3", true), note("n4", false)}
	require.Equal(t, []string{"n1"}, s.PendingReads(batch))
	require.Empty(t, NewStore().PendingReads(batch))
}

func TestStore_MarkRead(t *testing.T) {
	s := NewStore()
	s.Apply(note("n1", false))

	changed, found := s.MarkRead("n1")
	require.True(t, changed)
	require.True(t, found)

	changed, found = s.MarkRead("n1")
	require.False(t, changed)
	require.True(t, found)

	changed, found = s.MarkRead("missing")
	require.False(t, changed)
	require.False(t, found)

	require.Zero(t, s.Unread())
}

func TestStore_MarkAllReadSeven(t *testing.T) {
	s := NewStore()
	for i := 0; i < 7; i++ {
		s.Apply(note(fmt.Sprintf("n%d", i), false))
	}
	s.Apply(note("already", true))
	require.Equal(t, 7, s.Unread())

	ids := s.MarkAllRead()
	require.Len(t, ids, 7)
	require.NotContains(t, ids, "already")
	require.Zero(t, s.Unread())
	for _, n := range s.List() {
		require.True(t, n.Read)
	}

	require.Empty(t, s.MarkAllRead())
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := NewStore()
	old := note("old", false)
	old.Timestamp = ts.Add(-time.Hour)
	s.Apply(old)
	s.Apply(note("a", false))
	s.Apply(note("b", false))

	var got []string
	for _, n := range s.List() {
		got = append(got, n.ID)
	}
	require.Equal(t, []string{"b", "a", "old"}, got)
}

func TestStore_CounterNeverDiverges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewStore()
	readOnce := make(map[string]bool)

	for step := 0; step < 2000; step++ {
		id := fmt.Sprintf("n%d", rng.Intn(40))
		switch rng.Intn(5) {
		case 0:
			s.Apply(note(id, rng.Intn(2) == 0))
		case 1:
			s.Merge([]models.Notification{note(id, rng.Intn(2) == 0), note(fmt.Sprintf("n%d", rng.Intn(40)), false)})
		case 2:
			s.MarkRead(id)
		case 3:
			if rng.Intn(20) == 0 {
				s.MarkAllRead()
			}
		case 4:
			s.Apply(note(id, false))
		}

		require.Equal(t, countUnread(s), s.Unread(), "step %d", step)
		for _, n := range s.List() {
			if readOnce[n.ID] {
				require.True(t, n.Read, "notification %s became unread at step %d", n.ID, step)
			}
			if n.Read {
				readOnce[n.ID] = true
			}
		}
	}
}
