package helpers

import (
	"errors"
	"time"

	model "bidding-core/internal/models"
	"bidding-core/utils"

	"github.com/shopspring/decimal"
)

var errMissingBidder = errors.New("bidder_id is required unless a guest email is given")

// Request/Response DTOs
type SubmitBidRequest struct {
	BidderID    string           `json:"bidder_id"`
	DisplayName string           `json:"display_name"`
	Email       string           `json:"email"`
	IsGuest     bool             `json:"is_guest"`
	Amount      *decimal.Decimal `json:"amount" binding:"required"`
}

// Bidder resolves the request's identity. Guests may omit bidder_id and are
// then identified by their email.
func (r SubmitBidRequest) Bidder() (model.Bidder, error) {
	id := r.BidderID
	if id == "" && r.IsGuest && r.Email != "" {
		id = utils.GuestBidderID(r.Email)
	}
	if id == "" {
		return model.Bidder{}, errMissingBidder
	}
	return model.Bidder{
		ID:          id,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		IsGuest:     r.IsGuest,
	}, nil
}

// BidListQuery holds the paging parameters of GET /auctions/:auction_id/bids
type BidListQuery struct {
	Order  string `form:"order" binding:"omitempty,oneof=asc desc"`
	Limit  int    `form:"limit" binding:"min=0"`
	Offset int    `form:"offset" binding:"min=0"`
}

func (q BidListQuery) Options() model.ListOptions {
	return model.ListOptions{
		Order:  model.SortOrder(q.Order),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
}

type BidResponse struct {
	BidID             string `json:"bid_id"`
	AuctionID         string `json:"auction_id"`
	BidderID          string `json:"bidder_id"`
	BidderDisplayName string `json:"bidder_display_name"`
	IsGuest           bool   `json:"is_guest"`
	Amount            string `json:"amount"`
	SubmittedAt       string `json:"submitted_at"`
}

type AuctionResponse struct {
	AuctionID   string `json:"auction_id"`
	Title       string `json:"title"`
	StartingBid string `json:"starting_bid"`
	CurrentBid  string `json:"current_bid"`
	BidderCount int    `json:"bidder_count"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
}

// RejectionData accompanies a rejected bid so the client can resubmit
type RejectionData struct {
	AuctionID  string `json:"auction_id"`
	CurrentBid string `json:"current_bid"`
}

// EventResponse is the data of one server-sent event
type EventResponse struct {
	Type        string           `json:"type"`
	AuctionID   string           `json:"auction_id"`
	Bid         *BidResponse     `json:"bid,omitempty"`
	Auction     *AuctionResponse `json:"auction,omitempty"`
	PublishedAt string           `json:"published_at"`
}

const moneyScale = 2

func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:             bid.ID,
		AuctionID:         bid.AuctionID,
		BidderID:          bid.BidderID,
		BidderDisplayName: bid.BidderDisplayName,
		IsGuest:           bid.IsGuest,
		Amount:            bid.Amount.StringFixed(moneyScale),
		SubmittedAt:       bid.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
}

func NewBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b))
	}
	return out
}

// NewAuctionResponse renders an auction summary with its status at now
func NewAuctionResponse(a model.Auction, now time.Time) AuctionResponse {
	return AuctionResponse{
		AuctionID:   a.ID,
		Title:       a.Title,
		StartingBid: a.StartingBid.StringFixed(moneyScale),
		CurrentBid:  a.CurrentBid.StringFixed(moneyScale),
		BidderCount: a.BidderCount,
		EndTime:     a.EndTime.UTC().Format(time.RFC3339),
		Status:      string(a.Status(now)),
	}
}

func NewAuctionResponses(auctions []model.Auction, now time.Time) []AuctionResponse {
	out := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, NewAuctionResponse(a, now))
	}
	return out
}

func NewEventResponse(ev model.AuctionEvent, now time.Time) EventResponse {
	resp := EventResponse{
		Type:        string(ev.Type),
		AuctionID:   ev.AuctionID,
		PublishedAt: ev.PublishedAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.Bid != nil {
		bid := NewBidResponse(*ev.Bid)
		resp.Bid = &bid
	}
	if ev.Auction != nil {
		auction := NewAuctionResponse(*ev.Auction, now)
		resp.Auction = &auction
	}
	return resp
}
