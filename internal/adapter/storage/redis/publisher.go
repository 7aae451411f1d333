package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"breakbread-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventPublisher implements ports.EventPublisher over Redis pub/sub.
// Delivery is fire-and-forget: subscribers that are offline miss events.
type EventPublisher struct {
	client  *goredis.Client
	channel string
	log     zerolog.Logger
}

func NewEventPublisher(client *goredis.Client, channel string, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{client: client, channel: channel, log: log}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	p.log.Debug().
		Str("channel", p.channel).
		Str("type", string(event.Type)).
		Str("key", event.Key).
		Int64("receivers", receivers).
		Msg("Event published")
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (p *EventPublisher) Close() error {
	return nil
}
