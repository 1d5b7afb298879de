package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// PubSub publishes decision events on Redis channels: one for all
// decisions and one per pair.
type PubSub struct {
	client redis.Cmdable
}

func NewPubSub(client redis.Cmdable) *PubSub {
	return &PubSub{client: client}
}

func (p *PubSub) Name() string { return "redis-pubsub" }

func PairChannel(pair models.Pair) string {
	return fmt.Sprintf("%s%s/%s", constants.PubSubChannelDecisionsByPair, pair.InputMint, pair.OutputMint)
}

func (p *PubSub) Write(ctx context.Context, b Batch) error {
	if len(b.Decisions) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, ev := range b.Decisions {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal decision: %w", err)
		}
		pipe.Publish(ctx, constants.PubSubChannelDecisions, data)
		pipe.Publish(ctx, PairChannel(ev.Pair), data)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe delivers decisions published on channel until ctx ends.
func Subscribe(ctx context.Context, client *redis.Client, channel string, handler func(models.DecisionEvent)) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.DecisionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handler(ev)
		}
	}
}
