package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"github.com/punchamoorthee/coinledger/internal/logging"
)

// RedisBus publishes events on a Redis channel so every storefront process
// sees the same invalidations. Local subscribers are fed from the channel,
// including for events this process published.
type RedisBus struct {
	client  goredis.UniversalClient
	channel string
	source  string
	logger  logging.Logger
	local   *MemoryBus
}

func NewRedisBus(client goredis.UniversalClient, channel, source string, logger logging.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: channel,
		source:  source,
		logger:  logging.OrDiscard(logger),
		local:   NewMemoryBus(),
	}
}

func (b *RedisBus) Invalidate(ctx context.Context, tags ...Tag) error {
	if len(tags) == 0 {
		return nil
	}
	payload, err := json.Marshal(Event{Tags: slices.Clone(tags), Source: b.source})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(fn func(Event)) func() {
	return b.local.Subscribe(fn)
}

// Run relays channel messages to local subscribers until ctx is done.
// ready, when non-nil, is closed once the subscription is confirmed.
func (b *RedisBus) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.WithError(err).WithField("channel", b.channel).Warn("dropping malformed invalidation")
				continue
			}
			b.local.deliver(ev)
		}
	}
}
