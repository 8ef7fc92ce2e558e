package notification

import (
	"sort"

	"github.com/mcdev12/auctionsync/go/internal/models"
)

// Store is the local notification set. It holds at most one entry per id,
// never turns a read notification unread, and keeps the unread counter equal
// to the number of held notifications with Read == false.
//
// Store does no I/O and no locking; the Manager serialises access to it.
type Store struct {
	items  map[string]*models.Notification
	seq    map[string]int
	next   int
	unread int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		items: make(map[string]*models.Notification),
		seq:   make(map[string]int),
	}
}

// Apply adds a pushed notification. A notification whose id is already held
// is ignored, payload included. It reports whether the set changed.
func (s *Store) Apply(n models.Notification) bool {
	if n.ID == "" {
		return false
	}
	if _, ok := s.items[n.ID]; ok {
		return false
	}
	s.insert(n)
	return true
}

// Merge unions a bulk fetch into the set. Unknown ids are added; for known
// ids only the read flag is taken from the batch, and only towards read.
// It returns how many notifications were added.
func (s *Store) Merge(batch []models.Notification) int {
	added := 0
	for _, n := range batch {
		if n.ID == "" {
			continue
		}
		existing, ok := s.items[n.ID]
		if !ok {
			s.insert(n)
			added++
			continue
		}
		if n.Read && !existing.Read {
			existing.Read = true
			s.unread--
		}
	}
	return added
}

func (s *Store) insert(n models.Notification) {
	cp := n
	cp.Payload = append([]byte(nil), n.Payload...)
	s.items[n.ID] = &cp
	s.seq[n.ID] = s.next
	s.next++
	if !cp.Read {
		s.unread++
	}
}

// PendingReads returns the ids that are read locally but still unread in
// batch, sorted.
func (s *Store) PendingReads(batch []models.Notification) []string {
	var ids []string
	for _, n := range batch {
		if n.Read {
			continue
		}
		if existing, ok := s.items[n.ID]; ok && existing.Read {
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// MarkRead flips one notification to read. changed is false when it was
// already read; found is false when the id is not held.
func (s *Store) MarkRead(id string) (changed, found bool) {
	n, ok := s.items[id]
	if !ok {
		return false, false
	}
	if n.Read {
		return false, true
	}
	n.Read = true
	s.unread--
	return true, true
}

// MarkAllRead flips every unread notification and returns their ids.
func (s *Store) MarkAllRead() []string {
	ids := make([]string, 0, s.unread)
	for id, n := range s.items {
		if !n.Read {
			n.Read = true
			ids = append(ids, id)
		}
	}
	s.unread = 0
	sort.Strings(ids)
	return ids
}

// Unread returns the unread counter.
func (s *Store) Unread() int {
	return s.unread
}

// Len returns the number of held notifications.
func (s *Store) Len() int {
	return len(s.items)
}

// Get returns a copy of one notification.
func (s *Store) Get(id string) (models.Notification, bool) {
	n, ok := s.items[id]
	if !ok {
		return models.Notification{}, false
	}
	return *n, true
}

// List returns copies of all notifications, newest first. Equal timestamps
// keep arrival order, latest arrival first.
func (s *Store) List() []models.Notification {
	out := make([]models.Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out
}
