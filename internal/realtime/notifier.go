package realtime

import (
	"context"
	"log"
	"runtime/debug"

	"statescape/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes topic events into Redis channels so every instance
// in the fleet can deliver them to its local subscribers. A nil Redis client
// makes every method a no-op; callers fall back to local delivery.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Ready reports whether the notifier has a usable Redis client.
func (n *Notifier) Ready() bool {
	return n != nil && n.rdb != nil
}

// Publish sends the payload to the topic's channel.
func (n *Notifier) Publish(ctx context.Context, t Topic, payload []byte) error {
	if !n.Ready() {
		return nil
	}
	ctx, span := observability.TraceRedisOperation(ctx, "publish")
	defer span.End()
	err := n.rdb.Publish(ctx, t.Channel(), payload).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// StartSubscriber subscribes to all topic channels and calls onEvent for each
// incoming message until ctx is cancelled. Messages on channels that do not
// parse as topics are dropped with a log line.
func (n *Notifier) StartSubscriber(ctx context.Context, onEvent func(t Topic, payload []byte)) error {
	if !n.Ready() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, channelPrefix+"*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				t, err := TopicFromChannel(msg.Channel)
				if err != nil {
					log.Printf("dropping message on unparseable channel %s: %v", msg.Channel, err)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in topic subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onEvent(t, []byte(msg.Payload))
				}()
			}
		}
	}()

	return nil
}
