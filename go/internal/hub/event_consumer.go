package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher stores and fans out a notification.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// JetStreamConsumerConfig holds configuration for the auction event consumer
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string // e.g. "auction.events.won"
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // retention of the stream when this consumer creates it
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "AUCTION_EVENTS",
		ConsumerName:  "notification-hub",
		SubjectFilter: "auction.events.won",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        7 * 24 * time.Hour,
	}
}

// EventConsumer turns auction-won events into auction-win notifications.
type EventConsumer struct {
	publisher Publisher
	nc        *nats.Conn
	js        jetstream.JetStream
	consumer  jetstream.Consumer
	config    JetStreamConsumerConfig
}

// NewEventConsumer connects to NATS and ensures the stream and durable consumer exist.
func NewEventConsumer(ctx context.Context, publisher Publisher, config JetStreamConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.Name("notification-hub"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ec := &EventConsumer{
		publisher: publisher,
		nc:        nc,
		js:        js,
		config:    config,
	}

	if err := ec.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	if err := ec.ensureConsumer(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

// Conn exposes the NATS connection for health checks.
func (ec *EventConsumer) Conn() *nats.Conn {
	return ec.nc
}

// ensureStream creates the auction event stream when the marketplace has not yet.
func (ec *EventConsumer) ensureStream(ctx context.Context) error {
	if _, err := ec.js.Stream(ctx, ec.config.StreamName); err == nil {
		return nil
	}

	sc := jetstream.StreamConfig{
		Name:        ec.config.StreamName,
		Description: "Auction lifecycle events",
		Subjects:    []string{ec.config.SubjectFilter},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      ec.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}
	if _, err := ec.js.CreateStream(ctx, sc); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	log.Info().
		Str("stream", ec.config.StreamName).
		Msg("created JetStream stream")
	return nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   "Notification hub auction-win consumer",
		FilterSubject: ec.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("JetStream consumer ready")

	ec.consumer = consumer
	return nil
}

// Start consumes auction events until ctx is cancelled
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("subject", ec.config.SubjectFilter).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			ec.processMessage(ctx, msg)
		}
	}
}

func (ec *EventConsumer) processMessage(ctx context.Context, msg jetstream.Msg) {
	err := ec.handleAuctionWon(ctx, msg.Data())
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	case isPoison(err):
		// Redelivery cannot fix a malformed event.
		log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed auction event")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
	default:
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
	}
}

type poisonError struct{ err error }

func (e poisonError) Error() string { return e.err.Error() }
func (e poisonError) Unwrap() error { return e.err }

func isPoison(err error) bool {
	var p poisonError
	return errors.As(err, &p)
}

// handleAuctionWon publishes the winner's auction-win notification. The id is
// derived from the auction so redeliveries are stored and broadcast once.
func (ec *EventConsumer) handleAuctionWon(ctx context.Context, data []byte) error {
	n, err := AuctionWinNotification(data)
	if err != nil {
		return poisonError{err}
	}
	if err := ec.publisher.Publish(ctx, n); err != nil {
		return fmt.Errorf("publish auction-win notification: %w", err)
	}

	log.Info().
		Str("notification_id", n.ID).
		Str("recipient", n.Recipient).
		Msg("auction-win notification created")
	return nil
}

// AuctionWinNotification builds the notification for an auction-won event.
func AuctionWinNotification(data []byte) (models.Notification, error) {
	var won models.AuctionWonPayload
	if err := json.Unmarshal(data, &won); err != nil {
		return models.Notification{}, fmt.Errorf("unmarshal auction won event: %w", err)
	}
	if err := models.Validate(won); err != nil {
		return models.Notification{}, fmt.Errorf("invalid auction won event: %w", err)
	}

	payload, err := json.Marshal(won)
	if err != nil {
		return models.Notification{}, fmt.Errorf("marshal auction won payload: %w", err)
	}

	ts := won.EndedAt.UTC()
	if won.EndedAt.IsZero() {
		ts = time.Now().UTC()
	}

	return models.Notification{
		ID:        "auction-win-" + won.AuctionID,
		Type:      models.NotificationAuctionWin,
		Title:     "You won " + won.AuctionTitle,
		Message:   fmt.Sprintf("Your bid of %s won %s.", formatAmount(won.Amount), won.AuctionTitle),
		Sender:    "system",
		Recipient: won.Winner,
		Timestamp: ts,
		Payload:   payload,
	}, nil
}

func formatAmount(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// Close closes the NATS connection.
func (ec *EventConsumer) Close() {
	if ec.nc != nil {
		ec.nc.Close()
	}
}
