package repository

import (
	"bidding-core/internal/biddingerrors"
	model "bidding-core/internal/models"
	"bidding-core/utils"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

//go:generate mockgen -destination=mock_repository.go -package=repository bidding-core/internal/repository AuctionDB

// AuctionDB defines the ledger and auction summary storage for the bidding core.
// AppendBid is the only mutation of a running auction: it writes the ledger entry
// and the summary in one atomic step.
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context) ([]model.Auction, error)
	AppendBid(ctx context.Context, bid model.Bid) (model.Bid, model.Auction, error)
	ListByAuction(ctx context.Context, auctionID string, opts model.ListOptions) ([]model.Bid, error)
	HighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
	ListEndedUnannounced(ctx context.Context, now time.Time) ([]model.Auction, error)
	MarkEndAnnounced(ctx context.Context, auctionID string) (bool, error)
}

type auctionState struct {
	auction      model.Auction
	bids         []model.Bid
	bidders      map[string]struct{}
	lastBidAt    time.Time
	endAnnounced bool
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu             sync.RWMutex
	auctions       map[string]*auctionState // key: auctionID
	bidderAuctions map[string][]string      // key: bidderID -> value: auctionIDs in first-bid order
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:       make(map[string]*auctionState),
		bidderAuctions: make(map[string][]string),
	}
}

// CreateAuction registers an auction with no bids. CurrentBid starts at StartingBid.
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) (model.Auction, error) {
	if auction.ID == "" {
		auction.ID = utils.GenerateID()
	}
	if auction.CreatedAt.IsZero() {
		auction.CreatedAt = time.Now().UTC()
	}
	auction.CurrentBid = auction.StartingBid
	auction.BidderCount = 0

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.ID]; ok {
		return model.Auction{}, fmt.Errorf("create auction %s: %w", auction.ID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.ID] = &auctionState{
		auction: auction,
		bidders: make(map[string]struct{}),
	}
	return auction, nil
}

// GetAuction returns the current summary of an auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return st.auction, nil
}

// ListAuctions returns every auction ordered by end time, soonest first
func (r *MemoryRepo) ListAuctions(_ context.Context) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0, len(r.auctions))
	for _, st := range r.auctions {
		out = append(out, st.auction)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndTime.Before(out[j].EndTime)
	})
	return out, nil
}

// AppendBid records an accepted bid and updates the auction summary under one lock.
// The storage guard re-checks price and end time so a caller that skipped the
// service's serialization still cannot break the ledger invariants.
func (r *MemoryRepo) AppendBid(_ context.Context, bid model.Bid) (model.Bid, model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.auctions[bid.AuctionID]
	if !ok {
		return model.Bid{}, model.Auction{}, fmt.Errorf("append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}

	if bid.ID == "" {
		bid.ID = utils.GenerateID()
	}
	if bid.SubmittedAt.IsZero() {
		bid.SubmittedAt = time.Now().UTC()
	}
	if bid.SubmittedAt.Before(st.lastBidAt) {
		bid.SubmittedAt = st.lastBidAt
	}

	if !bid.SubmittedAt.Before(st.auction.EndTime) {
		return model.Bid{}, model.Auction{}, biddingerrors.Reject(biddingerrors.ErrAuctionEnded, bid.AuctionID, st.auction.CurrentBid, "")
	}
	if !bid.Amount.GreaterThan(st.auction.CurrentBid) {
		return model.Bid{}, model.Auction{}, biddingerrors.Reject(biddingerrors.ErrBidTooLow, bid.AuctionID, st.auction.CurrentBid, "")
	}

	st.bids = append(st.bids, bid)
	st.lastBidAt = bid.SubmittedAt
	st.auction.CurrentBid = bid.Amount
	if _, seen := st.bidders[bid.BidderID]; !seen {
		st.bidders[bid.BidderID] = struct{}{}
		st.auction.BidderCount = len(st.bidders)
		r.bidderAuctions[bid.BidderID] = append(r.bidderAuctions[bid.BidderID], bid.AuctionID)
	}

	return bid, st.auction, nil
}

// ListByAuction returns a page of an auction's ledger ordered by submission time,
// then amount
func (r *MemoryRepo) ListByAuction(_ context.Context, auctionID string, opts model.ListOptions) ([]model.Bid, error) {
	r.mu.RLock()
	st, ok := r.auctions[auctionID]
	if !ok {
		r.mu.RUnlock()
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	bids := append([]model.Bid(nil), st.bids...)
	r.mu.RUnlock()

	SortLedger(bids, opts.Order)
	return Page(bids, opts), nil
}

// HighestBid returns the winning bid of an auction
func (r *MemoryRepo) HighestBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.auctions[auctionID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if len(st.bids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	highest := st.bids[0]
	for _, b := range st.bids[1:] {
		if b.Amount.GreaterThan(highest.Amount) {
			highest = b
		}
	}
	return highest, nil
}

// GetAuctionsByBidder returns all auctions a bidder has bid on
func (r *MemoryRepo) GetAuctionsByBidder(_ context.Context, bidderID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs, ok := r.bidderAuctions[bidderID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrBidderNoBids)
	}

	auctions := make([]model.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if st, exists := r.auctions[id]; exists {
			auctions = append(auctions, st.auction)
		}
	}
	return auctions, nil
}

// ListEndedUnannounced returns auctions past their end time whose closing has not been published
func (r *MemoryRepo) ListEndedUnannounced(_ context.Context, now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Auction
	for _, st := range r.auctions {
		if !st.endAnnounced && !now.Before(st.auction.EndTime) {
			out = append(out, st.auction)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

// MarkEndAnnounced records that an auction's end was published. It returns true
// only for the first caller.
func (r *MemoryRepo) MarkEndAnnounced(_ context.Context, auctionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.auctions[auctionID]
	if !ok {
		return false, fmt.Errorf("mark end announced for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if st.endAnnounced {
		return false, nil
	}
	st.endAnnounced = true
	return true, nil
}

// SortLedger orders bids by SubmittedAt and then Amount, both descending for
// OrderDesc (the default) and both ascending for OrderAsc.
func SortLedger(bids []model.Bid, order model.SortOrder) {
	asc := order == model.OrderAsc
	sort.SliceStable(bids, func(i, j int) bool {
		a, b := bids[i], bids[j]
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			if asc {
				return a.SubmittedAt.Before(b.SubmittedAt)
			}
			return a.SubmittedAt.After(b.SubmittedAt)
		}
		if asc {
			return a.Amount.LessThan(b.Amount)
		}
		return a.Amount.GreaterThan(b.Amount)
	})
}

// Page applies offset and limit to an already ordered ledger slice
func Page(bids []model.Bid, opts model.ListOptions) []model.Bid {
	if opts.Offset > 0 {
		if opts.Offset >= len(bids) {
			return []model.Bid{}
		}
		bids = bids[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(bids) {
		bids = bids[:opts.Limit]
	}
	return bids
}
