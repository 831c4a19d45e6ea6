package notifier

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestRedisBroker connects to BIDDING_TEST_REDIS_ADDR. Tests are skipped
// when it is unset.
func newTestRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()

	addr := os.Getenv("BIDDING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BIDDING_TEST_REDIS_ADDR not set")
	}

	client, err := NewRedisClient(addr, os.Getenv("BIDDING_TEST_REDIS_PASSWORD"), 0)
	require.NoError(t, err)

	broker := NewRedisBroker(client, 16)
	t.Cleanup(func() { _ = broker.Close() })
	return broker
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	broker := newTestRedisBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	auctionID := "auction-" + uuid.NewString()
	sub, err := broker.Subscribe(ctx, auctionID)
	require.NoError(t, err)
	defer sub.Close()

	for _, amount := range []int64{110, 120, 130} {
		require.NoError(t, broker.Publish(ctx, bidEvent(auctionID, amount)))
	}

	for _, amount := range []int64{110, 120, 130} {
		ev := receive(t, sub)
		require.Equal(t, auctionID, ev.AuctionID)
		require.EqualValues(t, amount, ev.Bid.Amount.IntPart())
	}

	sub.Close()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-sub.Events():
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
