// Package events mirrors broadcast auction events onto NATS subjects for
// consumers outside the line protocol.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/auction"
)

// NATSConfig holds connection settings for the event mirror.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // e.g. "auction.events"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the default mirror configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "auction.events",
		MaxReconnects: -1, // infinite
		ReconnectWait: 2 * time.Second,
	}
}

// envelope is the wire shape of one mirrored event.
type envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NATSPublisher implements auction.Mirror over a NATS connection. Publishing
// is fire-and-forget: a mirror failure never affects the auction itself.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS with the reconnect behavior the rest of
// the system assumes (keep retrying, log transitions).
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Publish sends one event to <prefix>.<type>.
func (p *NATSPublisher) Publish(typ auction.EventType, payload any) {
	env := envelope{
		ID:        uuid.New().String(),
		Type:      string(typ),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal mirror event")
		return
	}

	subject := p.prefix + "." + string(typ)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish mirror event")
	}
}

// Close flushes and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Error().Err(err).Msg("failed to drain NATS connection")
	}
}
