package notifier

import model "bidding-core/internal/models"

// NewStaticSubscription returns a subscription over a caller-owned channel.
// Handlers and tests use it to stand in for a live broker.
func NewStaticSubscription(auctionID string, events <-chan model.AuctionEvent, onClose func()) *Subscription {
	return newSubscription(auctionID, events, onClose)
}
