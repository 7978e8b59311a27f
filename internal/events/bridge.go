package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"TradeArena/internal/observability"
)

// Bridge mirrors engine events onto NATS JetStream for out-of-process
// consumers (streaming layer, dashboards). Subjects follow the pattern
// arena.tournaments.events.{type}.{tournament_id}.
type Bridge struct {
	js      jetstream.JetStream
	sub     *Subscription
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewBridge subscribes to all events on the channel and prepares the
// forwarder. Call Run to start draining.
func NewBridge(js jetstream.JetStream, channel *Channel, metrics *observability.Metrics, logger zerolog.Logger) *Bridge {
	return &Bridge{
		js:      js,
		sub:     channel.Subscribe(""),
		logger:  logger,
		metrics: metrics,
	}
}

// Run forwards events until the context is cancelled. Publish failures are
// logged and dropped; downstream consumers are observers, never owners.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-b.sub.C:
			if !ok {
				return nil
			}
			if err := b.publish(ctx, evt); err != nil {
				b.logger.Warn().Err(err).
					Str("type", string(evt.Type)).
					Str("tournament_id", evt.TournamentID).
					Msg("bridge publish failed")
				if b.metrics != nil {
					b.metrics.BridgeErrors.Inc()
				}
				continue
			}
			if b.metrics != nil {
				b.metrics.BridgePublished.WithLabelValues(string(evt.Type)).Inc()
			}
		}
	}
}

func (b *Bridge) publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("arena.tournaments.events.%s.%s", evt.Type, evt.TournamentID)
	_, err = b.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "ARENA_TOURNAMENT_EVENTS",
		Subjects:  []string{"arena.tournaments.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
