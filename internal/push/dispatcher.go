package push

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bustracking/bustracking/internal/history"
)

// DefaultConcurrency bounds concurrent native sends per notification.
const DefaultConcurrency = 10

// Recorder stores dispatched notifications.
type Recorder interface {
	Record(ctx context.Context, d *history.Delivery) error
}

// Metrics receives dispatch counters.
type Metrics interface {
	NotificationSent(kind, channel string, recipients int)
	DeliveryFailed(channel string, count int)
}

// DispatcherConfig holds the delivery channels of a Dispatcher. Both channels
// are optional; with neither the notification is only logged.
type DispatcherConfig struct {
	Relay       Relay
	Native      Sender
	History     Recorder
	Metrics     Metrics
	Concurrency int
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Dispatcher sends notifications relay-first with a per-token native fallback.
type Dispatcher struct {
	relay       Relay
	native      Sender
	history     Recorder
	metrics     Metrics
	concurrency int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		relay:       cfg.Relay,
		native:      cfg.Native,
		history:     cfg.History,
		metrics:     cfg.Metrics,
		concurrency: concurrency,
		logger:      cfg.Logger.With().Str("component", "push").Logger(),
		now:         now,
	}
}

// Send delivers n to tokens and returns the number of distinct recipients
// targeted. Delivery failures are logged and recorded, never returned.
func (d *Dispatcher) Send(ctx context.Context, tokens []string, n Notification) int {
	tokens = DedupeTokens(tokens)
	if len(tokens) == 0 {
		d.logger.Info().
			Str("kind", n.Kind).
			Str("trip_id", n.TripID).
			Str("title", n.Title).
			Msg("no recipient tokens; notification skipped")
		return 0
	}

	channel, failed := d.deliver(ctx, tokens, n)

	d.logger.Info().
		Str("kind", n.Kind).
		Str("trip_id", n.TripID).
		Str("channel", channel).
		Int("recipients", len(tokens)).
		Int("failed", failed).
		Msg("notification dispatched")

	if d.metrics != nil {
		d.metrics.NotificationSent(n.Kind, channel, len(tokens))
		if failed > 0 {
			d.metrics.DeliveryFailed(channel, failed)
		}
	}

	d.record(ctx, tokens, n, channel, failed)

	return len(tokens)
}

func (d *Dispatcher) deliver(ctx context.Context, tokens []string, n Notification) (string, int) {
	if d.relay != nil {
		err := d.relay.Send(ctx, tokens, n)
		if err == nil {
			return history.ChannelRelay, 0
		}
		if d.native == nil {
			d.logger.Error().Err(err).Str("trip_id", n.TripID).Msg("relay delivery failed and no native sender configured")
			return history.ChannelRelay, len(tokens)
		}
		d.logger.Warn().Err(err).Str("trip_id", n.TripID).Msg("relay delivery failed; falling back to native")
	}

	if d.native != nil {
		return history.ChannelFCM, d.fanOut(ctx, tokens, n)
	}

	d.logger.Info().
		Str("title", n.Title).
		Str("body", n.Body).
		Strs("tokens", tokens).
		Interface("data", n.Data).
		Msg("no push channel configured; notification logged only")
	return history.ChannelLog, 0
}

// fanOut sends to every token concurrently. One token failing never cancels the others.
func (d *Dispatcher) fanOut(ctx context.Context, tokens []string, n Notification) int {
	native := n
	native.Data = make(map[string]any, len(n.Data))
	for k, v := range StringifyData(n.Data) {
		native.Data[k] = v
	}

	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	g.SetLimit(d.concurrency)

	for _, token := range tokens {
		g.Go(func() error {
			if err := d.native.SendToToken(ctx, token, native); err != nil {
				failed.Add(1)
				d.logger.Warn().
					Err(err).
					Str("token_suffix", suffix(token)).
					Str("trip_id", n.TripID).
					Msg("native delivery failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(failed.Load())
}

func (d *Dispatcher) record(ctx context.Context, tokens []string, n Notification, channel string, failed int) {
	if d.history == nil {
		return
	}

	err := d.history.Record(ctx, &history.Delivery{
		ID:         history.NewID(),
		TripID:     n.TripID,
		Kind:       n.Kind,
		Title:      n.Title,
		Body:       n.Body,
		Data:       StringifyData(n.Data),
		Channel:    channel,
		Recipients: len(tokens),
		Failed:     failed,
		CreatedAt:  d.now().UTC(),
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to record notification history")
	}
}

func suffix(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[len(token)-6:]
}
