package bidding

import (
	"bidding-core/internal/models"
	"bidding-core/utils"
	"context"
	"fmt"
	"time"
)

// AnnounceEnded publishes AuctionEnded for every auction whose end time has
// passed and whose end has not been announced yet. It returns the number of
// events published.
func (s *BiddingService) AnnounceEnded(ctx context.Context) (int, error) {
	now := s.now()
	ended, err := s.repo.ListEndedUnannounced(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("service: failed to list ended auctions: %w", err)
	}

	announced := 0
	for _, auction := range ended {
		// Publish before marking: a failed publish is retried on the next
		// sweep, and a second instance racing us only produces a duplicate.
		if err := s.broker.Publish(ctx, models.NewAuctionEndedEvent(auction.ID, now)); err != nil {
			utils.Error("service: failed to publish auction end", map[string]any{
				"auction_id": auction.ID,
				"error":      err.Error(),
			})
			continue
		}
		first, err := s.repo.MarkEndAnnounced(ctx, auction.ID)
		if err != nil {
			return announced, fmt.Errorf("service: failed to mark end of auction %s: %w", auction.ID, err)
		}
		announced++
		if first {
			utils.Info("service: auction ended", map[string]any{
				"auction_id":   auction.ID,
				"final_bid":    auction.CurrentBid.StringFixed(MoneyScale),
				"bidder_count": auction.BidderCount,
			})
		}
	}
	return announced, nil
}

// RunEndWatcher calls AnnounceEnded every interval until ctx is done
func (s *BiddingService) RunEndWatcher(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("service: end watch interval must be positive, got %s", interval)
	}

	utils.Info("end watcher started", map[string]any{"interval": interval.String()})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.AnnounceEnded(ctx); err != nil && ctx.Err() == nil {
			utils.Warn("end watcher: sweep failed", map[string]any{"error": err.Error()})
		}

		select {
		case <-ctx.Done():
			utils.Info("end watcher stopped", nil)
			return nil
		case <-ticker.C:
		}
	}
}
