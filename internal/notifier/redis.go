package notifier

import (
	model "bidding-core/internal/models"
	"bidding-core/utils"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker carries auction events over Redis pub/sub so every server
// instance sees every accepted bid. One Redis channel per auction keeps the
// per-auction ordering Redis already guarantees for a single publisher.
type RedisBroker struct {
	client     *redis.Client
	bufferSize int
}

// NewRedisClient opens a client and verifies the connection
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisBroker wraps an open client
func NewRedisBroker(client *redis.Client, bufferSize int) *RedisBroker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &RedisBroker{client: client, bufferSize: bufferSize}
}

// Publish sends event on its auction's channel
func (b *RedisBroker) Publish(ctx context.Context, event model.AuctionEvent) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, TopicFor(event.AuctionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event for auction %s: %w", event.Type, event.AuctionID, err)
	}
	return nil
}

// Subscribe listens on an auction's channel until ctx is done or Close is called
func (b *RedisBroker) Subscribe(ctx context.Context, auctionID string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, TopicFor(auctionID))
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to auction %s: %w", auctionID, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	out := make(chan model.AuctionEvent, b.bufferSize)

	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := DecodeEvent([]byte(msg.Payload))
				if err != nil {
					utils.Warn("notifier: dropping undecodable event", map[string]any{
						"channel": msg.Channel,
						"error":   err.Error(),
					})
					continue
				}
				select {
				case out <- event:
				default:
					utils.Warn("notifier: dropped slow subscriber", map[string]any{"auction_id": auctionID})
					cancel()
					return
				}
			}
		}
	}()

	sub := newSubscription(auctionID, out, cancel)
	sub.bindContext(ctx)
	return sub, nil
}

// Close releases the Redis client
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
