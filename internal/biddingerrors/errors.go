package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Repository-level errors
var (
	ErrAuctionNotFound    = errors.New("auction not found")
	ErrAuctionExists      = errors.New("auction already exists")
	ErrNoBids             = errors.New("no bids found for auction")
	ErrBidderNoBids       = errors.New("bidder has not placed any bids")
	ErrPersistenceFailure = errors.New("bid could not be persisted")
)

// business logic errors
var (
	ErrInvalidBid    = errors.New("invalid bid")
	ErrAuctionEnded  = errors.New("auction has ended")
	ErrBidTooLow     = errors.New("bid amount too low")
	ErrInvalidAmount = errors.New("invalid bid amount")
)

// RejectionError is returned when a bid is turned down by validation. It carries
// the auction's current price so a client can resubmit without refetching.
type RejectionError struct {
	Reason     error
	AuctionID  string
	CurrentBid decimal.Decimal
	Detail     string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (auction %s, current bid %s)", e.Reason, e.AuctionID, e.CurrentBid.StringFixed(2))
	}
	return fmt.Sprintf("%v: %s (auction %s, current bid %s)", e.Reason, e.Detail, e.AuctionID, e.CurrentBid.StringFixed(2))
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// Reject builds a RejectionError for the given reason sentinel
func Reject(reason error, auctionID string, currentBid decimal.Decimal, detail string) *RejectionError {
	return &RejectionError{
		Reason:     reason,
		AuctionID:  auctionID,
		CurrentBid: currentBid,
		Detail:     detail,
	}
}

// IsRejection reports whether err is an expected validation outcome rather than a failure
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// CurrentBidOf extracts the current price carried by a rejection, if any
func CurrentBidOf(err error) (decimal.Decimal, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.CurrentBid, true
	}
	return decimal.Zero, false
}
