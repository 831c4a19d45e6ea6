package notifier

import (
	model "bidding-core/internal/models"
	"context"
	"errors"
	"sync"
)

//go:generate mockgen -destination=mock_notifier.go -package=notifier bidding-core/internal/notifier Broker

// ErrClosed is returned by a broker that has been shut down
var ErrClosed = errors.New("notifier: broker closed")

// Broker fans auction events out to subscribers keyed by auction ID.
//
// Delivery is at-least-once and best effort: events for one auction arrive in
// publish order, there is no ordering across auctions, and there is no replay.
// A subscriber whose channel is closed must refetch the auction and its recent
// bids to resynchronize.
type Broker interface {
	Publish(ctx context.Context, event model.AuctionEvent) error
	Subscribe(ctx context.Context, auctionID string) (*Subscription, error)
	Close() error
}

// Subscription is a live stream of events for one auction
type Subscription struct {
	AuctionID string

	events  <-chan model.AuctionEvent
	closeFn func()
	once    sync.Once

	mu   sync.Mutex
	stop func() bool
}

func newSubscription(auctionID string, events <-chan model.AuctionEvent, closeFn func()) *Subscription {
	return &Subscription{
		AuctionID: auctionID,
		events:    events,
		closeFn:   closeFn,
	}
}

// bindContext closes the subscription when ctx is done
func (s *Subscription) bindContext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = context.AfterFunc(ctx, s.Close)
}

// Events returns the delivery channel. It is closed when the subscription ends,
// either by Close, by the subscribe context ending, or by the broker dropping a
// subscriber that fell behind.
func (s *Subscription) Events() <-chan model.AuctionEvent {
	return s.events
}

// Close stops delivery. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}

// TopicFor names the pub/sub topic carrying an auction's events
func TopicFor(auctionID string) string {
	return "auction:" + auctionID + ":events"
}
