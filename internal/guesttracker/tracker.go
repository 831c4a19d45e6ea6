package guesttracker

import (
	"bidding-core/utils"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidRecord is returned for records missing an auction, email or positive amount
var ErrInvalidRecord = errors.New("invalid guest bid record")

// GuestBidRecord is a bid a guest placed, remembered on the guest's own machine.
// It is informational only: the server's ledger decides who is winning.
type GuestBidRecord struct {
	ID          string          `json:"id"`
	AuctionID   string          `json:"auction_id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name"`
	Amount      decimal.Decimal `json:"amount"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Tracker lets an anonymous bidder recognize their own bids and standing
// without a server session
type Tracker struct {
	mu      sync.Mutex
	store   Store
	records []GuestBidRecord
	now     func() time.Time
}

// New loads previously saved records from store
func New(store Store) (*Tracker, error) {
	records, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("guesttracker: load records: %w", err)
	}
	return &Tracker{
		store:   store,
		records: records,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record remembers a bid and persists the full record set
func (t *Tracker) Record(auctionID, email, displayName string, amount decimal.Decimal) (GuestBidRecord, error) {
	email = normalizeEmail(email)
	if auctionID == "" || email == "" || !amount.IsPositive() {
		return GuestBidRecord{}, fmt.Errorf("guesttracker: %w", ErrInvalidRecord)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := GuestBidRecord{
		ID:          utils.GenerateID(),
		AuctionID:   auctionID,
		Email:       email,
		DisplayName: displayName,
		Amount:      amount,
		SubmittedAt: t.now(),
	}

	next := append(append([]GuestBidRecord(nil), t.records...), rec)
	if err := t.store.Save(next); err != nil {
		return GuestBidRecord{}, fmt.Errorf("guesttracker: save records: %w", err)
	}
	t.records = next
	return rec, nil
}

// BidsFor returns the recorded bids for an auction, newest first
func (t *Tracker) BidsFor(auctionID string) []GuestBidRecord {
	return t.filter(func(rec GuestBidRecord) bool { return rec.AuctionID == auctionID })
}

// BidsBy returns one guest's recorded bids for an auction, newest first. A
// store shared by several guests only ever shows each guest their own bids.
func (t *Tracker) BidsBy(auctionID, email string) []GuestBidRecord {
	email = normalizeEmail(email)
	return t.filter(func(rec GuestBidRecord) bool {
		return rec.AuctionID == auctionID && rec.Email == email
	})
}

func (t *Tracker) filter(keep func(GuestBidRecord) bool) []GuestBidRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := []GuestBidRecord{}
	for _, rec := range t.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// HighestFor returns the guest's own highest recorded amount on an auction
func (t *Tracker) HighestFor(auctionID, email string) (decimal.Decimal, bool) {
	email = normalizeEmail(email)

	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		highest decimal.Decimal
		found   bool
	)
	for _, rec := range t.records {
		if rec.AuctionID != auctionID || rec.Email != email {
			continue
		}
		if !found || rec.Amount.GreaterThan(highest) {
			highest = rec.Amount
			found = true
		}
	}
	return highest, found
}

// IsHighestBidder compares the guest's own highest recorded amount with the
// authoritative current bid supplied by the caller
func (t *Tracker) IsHighestBidder(auctionID, email string, currentBid decimal.Decimal) bool {
	highest, found := t.HighestFor(auctionID, email)
	if !found {
		return false
	}
	return highest.GreaterThanOrEqual(currentBid)
}

// Forget drops every record for an auction, e.g. once it has ended
func (t *Tracker) Forget(auctionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := make([]GuestBidRecord, 0, len(t.records))
	for _, rec := range t.records {
		if rec.AuctionID != auctionID {
			kept = append(kept, rec)
		}
	}
	if err := t.store.Save(kept); err != nil {
		return fmt.Errorf("guesttracker: save records: %w", err)
	}
	t.records = kept
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
