package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultListLimit caps the bulk GET.
const DefaultListLimit = 200

// Broadcaster fans a stored notification out to live connections.
type Broadcaster interface {
	Broadcast(n models.Notification) bool
}

// Service owns notification creation, listing and read receipts. Every
// notification is stored before it is broadcast.
type Service struct {
	store       Store
	broadcaster Broadcaster
	clock       clockwork.Clock
}

func NewService(store Store, broadcaster Broadcaster, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, broadcaster: broadcaster, clock: clock}
}

// Create assigns an id and timestamp to a client request, stores it and
// broadcasts it. A missing sender defaults to the requesting identity.
func (s *Service) Create(ctx context.Context, identity string, out models.OutboundNotification) (models.Notification, error) {
	if out.Sender == "" {
		out.Sender = identity
	}
	if err := models.Validate(out); err != nil {
		return models.Notification{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	n := models.Notification{
		ID:        uuid.NewString(),
		Type:      out.Type,
		Title:     out.Title,
		Message:   out.Message,
		Sender:    out.Sender,
		Recipient: out.Recipient,
		Timestamp: s.clock.Now().UTC(),
		Payload:   out.Payload,
	}
	if err := s.Publish(ctx, n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// Publish stores a fully formed notification and broadcasts it the first time
// its id is seen. Replays of a known id are accepted without a second broadcast.
func (s *Service) Publish(ctx context.Context, n models.Notification) error {
	if err := models.Validate(n); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if n.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidRequest)
	}

	created, err := s.store.Insert(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	if !created {
		log.Debug().Str("notification_id", n.ID).Msg("notification already stored")
		return nil
	}

	s.broadcaster.Broadcast(n)

	log.Info().
		Str("notification_id", n.ID).
		Str("type", string(n.Type)).
		Str("recipient", n.Recipient).
		Msg("notification published")
	return nil
}

// Deliver broadcasts a notification written by another process.
func (s *Service) Deliver(ctx context.Context, id string) error {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load notification %s: %w", id, err)
	}
	s.broadcaster.Broadcast(n)
	return nil
}

// List returns what identity should see, with identity's read flags.
func (s *Service) List(ctx context.Context, identity string) ([]models.Notification, error) {
	if identity == "" {
		return nil, ErrMissingIdentity
	}
	out, err := s.store.ListFor(ctx, identity, DefaultListLimit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Notification{}
	}
	return out, nil
}

// MarkRead records that identity read one notification. Repeating it is a no-op.
func (s *Service) MarkRead(ctx context.Context, identity, id string) error {
	if identity == "" {
		return ErrMissingIdentity
	}
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !n.AddressedTo(identity) {
		return ErrNotFound
	}
	if _, err := s.store.MarkRead(ctx, identity, []string{id}); err != nil {
		return err
	}
	return nil
}

// MarkAllRead records receipts for ids, or for everything addressed to
// identity when ids is empty. It returns the number of new receipts.
func (s *Service) MarkAllRead(ctx context.Context, identity string, ids []string) (int64, error) {
	if identity == "" {
		return 0, ErrMissingIdentity
	}
	return s.store.MarkRead(ctx, identity, ids)
}

// HandleFrame answers sendNotification frames from websocket clients.
func (s *Service) HandleFrame(ctx context.Context, identity string, f models.Frame) (models.Frame, bool) {
	if f.Type != models.FrameSendNotification {
		log.Debug().Str("type", string(f.Type)).Msg("ignoring client frame")
		return models.Frame{}, false
	}

	var out models.OutboundNotification
	if err := json.Unmarshal(f.Payload, &out); err != nil {
		return models.Ack(f.Ref, fmt.Errorf("%w: %v", ErrInvalidRequest, err)), true
	}

	n, err := s.Create(ctx, identity, out)
	if err != nil {
		if !errors.Is(err, ErrInvalidRequest) {
			log.Error().Err(err).Str("identity", identity).Msg("failed to create notification")
		}
		return models.Ack(f.Ref, err), true
	}

	log.Debug().Str("notification_id", n.ID).Str("ref", f.Ref).Msg("send acknowledged")
	return models.Ack(f.Ref, nil), true
}
