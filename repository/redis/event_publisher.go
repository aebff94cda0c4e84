package redis

import (
	"context"
	"encoding/json"
	"fmt"

	redislib "github.com/redis/go-redis/v9"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

const defaultRecent = 500

// EventPublisher fans domain events out on a pub/sub channel and keeps a
// capped list of the latest events per deal for late subscribers.
type EventPublisher struct {
	client  redislib.UniversalClient
	channel string
	prefix  string
	keep    int64
}

func NewEventPublisher(client redislib.UniversalClient, channel string, keep int) *EventPublisher {
	if keep <= 0 {
		keep = defaultRecent
	}
	return &EventPublisher{
		client:  client,
		channel: channel,
		prefix:  "events:",
		keep:    int64(keep),
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Name, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, payload)
	key := p.key(event.AggregateKind, event.AggregateID)
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, p.keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Name, err)
	}
	return nil
}

// Recent returns the newest events of an aggregate, newest first.
func (p *EventPublisher) Recent(ctx context.Context, kind, aggregateID string, limit int) ([]domain.Event, error) {
	if limit <= 0 || int64(limit) > p.keep {
		limit = int(p.keep)
	}
	raw, err := p.client.LRange(ctx, p.key(kind, aggregateID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(raw))
	for _, item := range raw {
		var ev domain.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (p *EventPublisher) key(kind, aggregateID string) string {
	return fmt.Sprintf("%s%s:%s", p.prefix, kind, aggregateID)
}
