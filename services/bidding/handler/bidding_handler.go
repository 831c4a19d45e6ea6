package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	bidding "bidding-core/internal/biddingService"
	"bidding-core/internal/biddingerrors"
	model "bidding-core/internal/models"
	"bidding-core/internal/notifier"
	"bidding-core/services/bidding/helpers"
	"bidding-core/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mock_bidding_handler.go -package=handler bidding-core/services/bidding/handler BiddingServiceInterface

type BiddingServiceInterface interface {
	Now() time.Time
	SubmitBid(ctx context.Context, auctionID string, bidder model.Bidder, amount decimal.Decimal) (model.Bid, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context) ([]model.Auction, error)
	GetBidsForAuction(ctx context.Context, auctionID string, opts model.ListOptions) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
	Subscribe(ctx context.Context, auctionID string) (*notifier.Subscription, model.Auction, error)
}

const defaultHeartbeat = 15 * time.Second

type BiddingHandler struct {
	service   BiddingServiceInterface
	heartbeat time.Duration
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service, heartbeat: defaultHeartbeat}
}

// SubmitBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) SubmitBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}
	bidder, err := req.Bidder()
	if err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}

	// The amount is not rendered here: its text can be arbitrarily long.
	if err := bidding.CheckRange(*req.Amount); err != nil {
		status := helpers.WriteServiceError(c, err)
		utils.Warn("SubmitBidHandler: amount out of range", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidder.ID,
			"exponent":   req.Amount.Exponent(),
			"status":     status,
		})
		return
	}

	bid, err := h.service.SubmitBid(c.Request.Context(), auctionID, bidder, *req.Amount)
	if err != nil {
		status := helpers.WriteServiceError(c, err)
		fields := map[string]any{
			"handler":    "SubmitBidHandler",
			"auction_id": auctionID,
			"bidder_id":  bidder.ID,
			"amount":     req.Amount.String(),
			"status":     status,
			"error":      err.Error(),
		}
		switch {
		case biddingerrors.IsRejection(err):
			utils.Info("SubmitBidHandler: bid rejected", fields)
		case helpers.IsContextError(err):
			utils.Warn("SubmitBidHandler: request ended before the bid was taken", fields)
		default:
			utils.Error("SubmitBidHandler: failed to submit bid", fields)
		}
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid accepted")
	helpers.LogSuccess("SubmitBidHandler", "bid accepted", map[string]any{
		"bid_id":     bid.ID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// ListAuctionsHandler handles GET /auctions
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	auctions, err := h.service.ListAuctions(c.Request.Context())
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Error("ListAuctionsHandler: error listing auctions", map[string]any{"error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(auctions, h.service.Now()), "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{"count": len(auctions)})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(auction, h.service.Now()), "auction retrieved successfully")
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var query helpers.BidListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		helpers.HandleBindError(c, "GetBidsByAuctionHandler", err)
		return
	}

	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID, query.Options())
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("GetBidsByAuctionHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.WriteServiceError(c, err)
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.ID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// GetAuctionsByBidderHandler handles GET /bidders/:bidder_id/auctions
func (h *BiddingHandler) GetAuctionsByBidderHandler(c *gin.Context) {
	bidderID := c.Param("bidder_id")
	auctions, err := h.service.GetAuctionsByBidder(c.Request.Context(), bidderID)
	if err != nil && !errors.Is(err, biddingerrors.ErrBidderNoBids) {
		helpers.WriteServiceError(c, err)
		utils.Warn("GetAuctionsByBidderHandler: error retrieving auctions", map[string]any{"bidder_id": bidderID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(auctions, h.service.Now()), "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByBidderHandler", "auctions retrieved successfully", map[string]any{
		"bidder_id":      bidderID,
		"auctions_count": len(auctions),
	})
}
