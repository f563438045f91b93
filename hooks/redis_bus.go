package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus implementation that fans events out over a Redis pub/sub
// channel in addition to any locally registered subscribers. This lets
// multiple runtime processes behind a load balancer share one session's
// event stream: a session's WebSocket connection need not be pinned to the
// process instance that is executing its run, because every process
// subscribes to the same channel and forwards events to its own local
// subscribers (typically a stream.Subscriber feeding a wire.Session).
//
// RedisBus wraps a local Bus for in-process delivery and layers Redis
// publish/subscribe on top for cross-process fan-out. Publish always
// delivers locally first; the Redis publish failing does not fail the local
// delivery, but is returned as an error after local subscribers have run.
type RedisBus struct {
	local   Bus
	client  redis.UniversalClient
	channel string
}

// NewRedisBus constructs a RedisBus publishing to and consuming from the
// given Redis channel. Events are encoded with the same ActivityInput
// envelope used for Temporal-adjacent hook serialization, so the wire format
// is shared rather than invented twice.
func NewRedisBus(client redis.UniversalClient, channel string) *RedisBus {
	return &RedisBus{
		local:   NewBus(),
		client:  client,
		channel: channel,
	}
}

// Publish delivers the event to local subscribers, then republishes it on
// the Redis channel so sibling processes' RedisBus instances (subscribed via
// Listen) observe it too.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if err := b.local.Publish(ctx, event); err != nil {
		return err
	}
	input, err := EncodeToHookInput(event, event.TurnID())
	if err != nil {
		return fmt.Errorf("hooks: encode event for redis publish: %w", err)
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("hooks: marshal redis envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, encoded).Err(); err != nil {
		return fmt.Errorf("hooks: publish to redis channel %q: %w", b.channel, err)
	}
	return nil
}

// Register adds a local subscriber. It does not itself start consuming from
// Redis; call Listen once per process to bridge remote events into this
// bus's local subscribers.
func (b *RedisBus) Register(sub Subscriber) (Subscription, error) {
	return b.local.Register(sub)
}

// Listen subscribes to the Redis channel and forwards every decoded event to
// local subscribers until ctx is canceled or the subscription errors. It is
// intended to run in its own goroutine for the lifetime of the process.
func (b *RedisBus) Listen(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var input ActivityInput
			if err := json.Unmarshal([]byte(msg.Payload), &input); err != nil {
				continue
			}
			evt, err := DecodeFromHookInput(&input)
			if err != nil {
				continue
			}
			if err := b.local.Publish(ctx, evt); err != nil {
				return err
			}
		}
	}
}
