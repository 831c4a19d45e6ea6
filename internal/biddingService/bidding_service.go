package bidding

import (
	"bidding-core/internal/biddingerrors"
	"bidding-core/internal/models"
	"bidding-core/internal/notifier"
	"bidding-core/internal/repository"
	"bidding-core/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	defaultMaxRetries = 3
	defaultRetryBase  = 20 * time.Millisecond
)

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo   repository.AuctionDB
	broker notifier.Broker
	locks  *auctionLocks

	now        func() time.Time
	limits     Limits
	maxRetries uint64
	retryBase  time.Duration
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithClock replaces the wall clock used for end-time checks and bid timestamps
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithLimits sets the amount ceiling enforced by the validator
func WithLimits(limits Limits) Option {
	return func(s *BiddingService) { s.limits = limits }
}

// WithRetry bounds how often a failed ledger write is retried, and the base of
// the exponential backoff between attempts
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(s *BiddingService) {
		s.maxRetries = maxRetries
		if base > 0 {
			s.retryBase = base
		}
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, broker notifier.Broker, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:       repo,
		broker:     broker,
		locks:      newAuctionLocks(),
		now:        func() time.Time { return time.Now().UTC() },
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time
func (s *BiddingService) Now() time.Time {
	return s.now()
}

// SubmitBid validates and records a bid for an auction.
//
// Submissions for one auction are handled one at a time; different auctions
// proceed in parallel. ctx bounds the wait for the auction's turn and the state
// read. Once the ledger write starts it runs to completion regardless of ctx, so
// a caller never sees an ambiguous half-applied bid.
//
// A rejected bid returns a *biddingerrors.RejectionError wrapping
// ErrAuctionEnded, ErrBidTooLow or ErrInvalidAmount together with the current
// price. Amounts outside the range of money fail with ErrInvalidAmount before
// the auction is touched.
func (s *BiddingService) SubmitBid(ctx context.Context, auctionID string, bidder models.Bidder, amount decimal.Decimal) (models.Bid, error) {
	if auctionID == "" || bidder.ID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if err := CheckRange(amount); err != nil {
		return models.Bid{}, fmt.Errorf("service: auction %s: %w", auctionID, err)
	}

	release, err := s.locks.acquire(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: waiting to bid on auction %s: %w", auctionID, err)
	}
	defer release()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}

	now := s.now()
	if err := Validate(auction, ProposedBid{Amount: amount, Bidder: bidder}, now, s.limits); err != nil {
		return models.Bid{}, err
	}

	bid := models.Bid{
		ID:                utils.GenerateID(),
		AuctionID:         auctionID,
		BidderID:          bidder.ID,
		BidderDisplayName: bidder.DisplayName,
		IsGuest:           bidder.IsGuest,
		Amount:            amount,
		SubmittedAt:       now,
	}

	writeCtx := context.WithoutCancel(ctx)
	stored, summary, err := s.appendWithRetry(writeCtx, bid)
	if err != nil {
		return models.Bid{}, err
	}

	// Published before the auction lock is released so subscribers see
	// events in acceptance order.
	event := models.NewBidAcceptedEvent(stored, summary, s.now())
	if err := s.broker.Publish(writeCtx, event); err != nil {
		utils.Error("service: failed to publish accepted bid", map[string]any{
			"auction_id": auctionID,
			"bid_id":     stored.ID,
			"error":      err.Error(),
		})
	}

	return stored, nil
}

// appendWithRetry writes bid to the ledger, retrying storage failures with
// exponential backoff. Rejections and unknown auctions are returned at once.
func (s *BiddingService) appendWithRetry(ctx context.Context, bid models.Bid) (models.Bid, models.Auction, error) {
	var (
		stored   models.Bid
		summary  models.Auction
		attempts int
		lastErr  error
	)

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		// A previous attempt may have committed without us hearing back.
		if attempts > 1 {
			if found, auction, ok := s.recoverCommitted(ctx, bid); ok {
				stored, summary = found, auction
				return nil
			}
		}

		var err error
		stored, summary, err = s.repo.AppendBid(ctx, bid)
		if err == nil || isFinal(err) {
			return err
		}

		lastErr = err
		utils.Warn("service: ledger write failed, retrying", map[string]any{
			"auction_id": bid.AuctionID,
			"bid_id":     bid.ID,
			"attempt":    attempts,
			"error":      err.Error(),
		})
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		return stored, summary, nil
	case biddingerrors.IsRejection(err):
		return models.Bid{}, models.Auction{}, err
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return models.Bid{}, models.Auction{}, fmt.Errorf("service: failed to record bid for auction %s: %w", bid.AuctionID, err)
	default:
		if lastErr == nil {
			lastErr = err
		}
		utils.Error("service: giving up on ledger write", map[string]any{
			"auction_id": bid.AuctionID,
			"bid_id":     bid.ID,
			"attempts":   attempts,
			"error":      lastErr.Error(),
		})
		return models.Bid{}, models.Auction{}, fmt.Errorf("service: %w after %d attempts: %v", biddingerrors.ErrPersistenceFailure, attempts, lastErr)
	}
}

func (s *BiddingService) recoverCommitted(ctx context.Context, bid models.Bid) (models.Bid, models.Auction, bool) {
	highest, err := s.repo.HighestBid(ctx, bid.AuctionID)
	if err != nil || highest.ID != bid.ID {
		return models.Bid{}, models.Auction{}, false
	}
	auction, err := s.repo.GetAuction(ctx, bid.AuctionID)
	if err != nil {
		return models.Bid{}, models.Auction{}, false
	}
	return highest, auction, true
}

func isFinal(err error) bool {
	return biddingerrors.IsRejection(err) || errors.Is(err, biddingerrors.ErrAuctionNotFound)
}

// GetAuction returns the current summary of an auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// ListAuctions returns every auction summary
func (s *BiddingService) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	auctions, err := s.repo.ListAuctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// GetBidsForAuction returns a page of an auction's ledger, newest first unless
// opts asks otherwise
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string, opts models.ListOptions) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}
	if opts.Order == "" {
		opts.Order = models.OrderDesc
	}
	if opts.Limit < 0 || opts.Offset < 0 || (opts.Order != models.OrderDesc && opts.Order != models.OrderAsc) {
		return nil, fmt.Errorf("service: %w - bad listing options", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.ListByAuction(ctx, auctionID, opts)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for a specific auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.HighestBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	return winningBid, nil
}

// GetAuctionsByBidder returns all auctions a bidder has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]models.Auction, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for bidder %s: %w", bidderID, err)
	}
	return auctions, nil
}

// Subscribe opens an event stream for an auction and returns the auction's
// state read after the stream was opened, so the caller starts from a snapshot
// no older than the first event it will receive.
func (s *BiddingService) Subscribe(ctx context.Context, auctionID string) (*notifier.Subscription, models.Auction, error) {
	if auctionID == "" {
		return nil, models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	sub, err := s.broker.Subscribe(ctx, auctionID)
	if err != nil {
		return nil, models.Auction{}, fmt.Errorf("service: failed to subscribe to auction %s: %w", auctionID, err)
	}

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		sub.Close()
		return nil, models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return sub, auction, nil
}
