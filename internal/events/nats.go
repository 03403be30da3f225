// Package events publishes trip events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/tracking"
)

// DefaultSubjectPrefix is prepended to every event subject.
const DefaultSubjectPrefix = "bustracking"

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Metrics receives publish outcomes.
type Metrics interface {
	EventPublished(eventType string, d time.Duration, err error)
	NATSSetConnected(connected bool)
}

// Config holds connection settings for the NATS publisher.
type Config struct {
	URL           string
	SubjectPrefix string
	ClientName    string
	Metrics       Metrics
	Logger        zerolog.Logger
}

// Publisher publishes tracking events as JSON on <prefix>.<event type>.<route id>.
type Publisher struct {
	conn    Conn
	nc      *nats.Conn
	prefix  string
	metrics Metrics
	logger  zerolog.Logger
}

// Connect dials NATS and returns a publisher that owns the connection.
func Connect(cfg Config) (*Publisher, error) {
	name := cfg.ClientName
	if name == "" {
		name = "bustracking"
	}
	logger := cfg.Logger.With().Str("component", "events").Logger()
	m := cfg.Metrics

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info().Msg("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}

	p := NewPublisher(nc, cfg.SubjectPrefix, m, cfg.Logger)
	p.nc = nc
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string, m Metrics, logger zerolog.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{
		conn:    conn,
		prefix:  prefix,
		metrics: m,
		logger:  logger.With().Str("component", "events").Logger(),
	}
}

// Publish encodes ev and publishes it. NATS publishes are buffered, so this
// does not block on the network.
func (p *Publisher) Publish(_ context.Context, ev tracking.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	subject := Subject(p.prefix, ev)
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.EventPublished(string(ev.Type), time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("publishing %s: %w", subject, err)
	}

	p.logger.Debug().Str("subject", subject).Msg("event published")
	return nil
}

// Close drains and closes the connection when the publisher owns one.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.logger.Warn().Err(err).Msg("draining nats connection")
		}
		p.nc.Close()
	}
}

// Subject returns the subject an event is published on. Event types already
// contain a dot (trip.started, stop.arrived) which becomes a subject level.
func Subject(prefix string, ev tracking.Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, ev.Type, subjectToken(ev.RouteID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
