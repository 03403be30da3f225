package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler receives messages from a Pub/Sub subscription and hands them to an Ingest.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	ingest           *Ingest
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Ingest           *Ingest

	// MaxOutstandingMessages bounds concurrent handling. Default: 10.
	MaxOutstandingMessages int

	Logger zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	outstanding := cfg.MaxOutstandingMessages
	if outstanding <= 0 {
		outstanding = 10
	}
	subscriber.ReceiveSettings.MaxOutstandingMessages = outstanding
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		ingest:           cfg.Ingest,
		logger:           cfg.Logger.With().Str("component", "pubsub").Logger(),
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, h.handleMessage)
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	h.logger.Debug().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Msg("received pubsub message")

	if h.ingest.Handle(ctx, msg.Data) {
		msg.Ack()
		return
	}

	event := h.logger.Warn().Str("message_id", msg.ID)
	if msg.DeliveryAttempt != nil {
		event = event.Int("delivery_attempt", *msg.DeliveryAttempt)
	}
	event.Msg("location update not applied; message will be redelivered")
	msg.Nack()
}
