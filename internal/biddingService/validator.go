package bidding

import (
	"bidding-core/internal/biddingerrors"
	"bidding-core/internal/models"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits a bid amount may carry
const MoneyScale int32 = 2

// Representation bounds for amounts. Anything outside is not money, and
// comparing it costs time proportional to the exponent.
const (
	maxIntegerDigits  = 18
	minAmountExponent = -18
)

var integerLimit = decimal.New(1, maxIntegerDigits)

// Limits bounds acceptable bid amounts. A zero MaxAmount disables the ceiling.
type Limits struct {
	MaxAmount decimal.Decimal
}

// ProposedBid is a bid that has not been through validation yet
type ProposedBid struct {
	Amount decimal.Decimal
	Bidder models.Bidder
}

// CheckRange rejects amounts whose decimal representation is far outside the
// range of money. Only amounts already known to be small are compared by value,
// so it is cheap for any input and safe to run before taking a lock.
func CheckRange(amount decimal.Decimal) error {
	if problem := rangeProblem(amount); problem != "" {
		return fmt.Errorf("%w: %s", biddingerrors.ErrInvalidAmount, problem)
	}
	return nil
}

func rangeProblem(amount decimal.Decimal) string {
	exp := int64(amount.Exponent())
	if exp < minAmountExponent {
		return fmt.Sprintf("amount has more than %d decimal places", -minAmountExponent)
	}
	// bits * log10(2) + 1 overcounts the coefficient's digits by at most one
	digits := int64(amount.Coefficient().BitLen())*30103/100000 + 1
	if exp+digits > maxIntegerDigits+1 || amount.Abs().Cmp(integerLimit) >= 0 {
		return fmt.Sprintf("amount has more than %d integer digits", maxIntegerDigits)
	}
	return ""
}

// Validate decides whether proposed may be accepted against auction at now.
// It has no side effects. The rules apply in order: the auction must still be
// open, the amount must be representable as money, the amount must beat the
// current bid strictly, and the amount must be a positive value within
// MoneyScale and the configured ceiling.
func Validate(auction models.Auction, proposed ProposedBid, now time.Time, limits Limits) error {
	if !now.Before(auction.EndTime) {
		return biddingerrors.Reject(biddingerrors.ErrAuctionEnded, auction.ID, auction.CurrentBid,
			fmt.Sprintf("ended at %s", auction.EndTime.UTC().Format(time.RFC3339)))
	}

	if problem := rangeProblem(proposed.Amount); problem != "" {
		return biddingerrors.Reject(biddingerrors.ErrInvalidAmount, auction.ID, auction.CurrentBid, problem)
	}

	if proposed.Amount.LessThanOrEqual(auction.CurrentBid) {
		return biddingerrors.Reject(biddingerrors.ErrBidTooLow, auction.ID, auction.CurrentBid,
			fmt.Sprintf("bid %s must exceed %s", proposed.Amount.StringFixed(MoneyScale), auction.CurrentBid.StringFixed(MoneyScale)))
	}

	switch {
	case !proposed.Amount.IsPositive():
		return biddingerrors.Reject(biddingerrors.ErrInvalidAmount, auction.ID, auction.CurrentBid, "amount must be positive")
	case !proposed.Amount.Equal(proposed.Amount.Truncate(MoneyScale)):
		return biddingerrors.Reject(biddingerrors.ErrInvalidAmount, auction.ID, auction.CurrentBid,
			fmt.Sprintf("amount has more than %d decimal places", MoneyScale))
	case limits.MaxAmount.IsPositive() && proposed.Amount.GreaterThan(limits.MaxAmount):
		return biddingerrors.Reject(biddingerrors.ErrInvalidAmount, auction.ID, auction.CurrentBid,
			fmt.Sprintf("amount exceeds ceiling %s", limits.MaxAmount.StringFixed(MoneyScale)))
	}

	return nil
}
