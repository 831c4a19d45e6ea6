package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is derived from EndTime, never stored
type AuctionStatus string

const (
	StatusActive AuctionStatus = "active"
	StatusEnded  AuctionStatus = "ended"
)

// Bidder is the identity supplied by the session layer. The core treats it as opaque.
type Bidder struct {
	ID          string `json:"bidder_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	IsGuest     bool   `json:"is_guest"`
}

// Auction is the denormalized summary of an auction's ledger
type Auction struct {
	ID          string          `json:"auction_id" db:"id"`
	Title       string          `json:"title" db:"title"`
	StartingBid decimal.Decimal `json:"starting_bid" db:"starting_bid"`
	CurrentBid  decimal.Decimal `json:"current_bid" db:"current_bid"`
	BidderCount int             `json:"bidder_count" db:"bidder_count"`
	EndTime     time.Time       `json:"end_time" db:"end_time"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Status reports whether the auction still accepts bids at now
func (a Auction) Status(now time.Time) AuctionStatus {
	if now.Before(a.EndTime) {
		return StatusActive
	}
	return StatusEnded
}

// Bid is an immutable ledger entry
type Bid struct {
	ID                string          `json:"bid_id" db:"id"`
	AuctionID         string          `json:"auction_id" db:"auction_id"`
	BidderID          string          `json:"bidder_id" db:"bidder_id"`
	BidderDisplayName string          `json:"bidder_display_name" db:"bidder_display_name"`
	IsGuest           bool            `json:"is_guest" db:"is_guest"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	SubmittedAt       time.Time       `json:"submitted_at" db:"submitted_at"`
}

// SortOrder selects the direction of a ledger listing
type SortOrder string

const (
	OrderDesc SortOrder = "desc"
	OrderAsc  SortOrder = "asc"
)

// ListOptions pages through an auction's ledger. A zero Limit means no limit.
type ListOptions struct {
	Order  SortOrder
	Limit  int
	Offset int
}

// EventType names the kinds of auction change notifications
type EventType string

const (
	EventBidAccepted  EventType = "bid_accepted"
	EventAuctionEnded EventType = "auction_ended"
)

// AuctionEvent is published on every ledger mutation and when an auction closes.
// Bid and Auction are set for bid_accepted only.
type AuctionEvent struct {
	Type        EventType `json:"type" cbor:"type"`
	AuctionID   string    `json:"auction_id" cbor:"auction_id"`
	Bid         *Bid      `json:"bid,omitempty" cbor:"bid,omitempty"`
	Auction     *Auction  `json:"auction,omitempty" cbor:"auction,omitempty"`
	PublishedAt time.Time `json:"published_at" cbor:"published_at"`
}

// NewBidAcceptedEvent builds the event published after a successful submission
func NewBidAcceptedEvent(bid Bid, auction Auction, at time.Time) AuctionEvent {
	return AuctionEvent{
		Type:        EventBidAccepted,
		AuctionID:   auction.ID,
		Bid:         &bid,
		Auction:     &auction,
		PublishedAt: at,
	}
}

// NewAuctionEndedEvent builds the event published once an auction closes
func NewAuctionEndedEvent(auctionID string, at time.Time) AuctionEvent {
	return AuctionEvent{
		Type:        EventAuctionEnded,
		AuctionID:   auctionID,
		PublishedAt: at,
	}
}
