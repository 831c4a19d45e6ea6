package helpers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bidding-core/internal/biddingerrors"
	"bidding-core/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// StatusClientClosedRequest is the nginx convention for a client that went away
// before the server answered
const StatusClientClosedRequest = 499

// Message sent when a request's deadline ran out before it was served
const MessageTimedOut = "request timed out, try again"

// IsContextError reports whether err comes from the request's own context
// ending rather than from the service
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid bid amount"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionEnded):
		return http.StatusGone, "auction has ended"
	case errors.Is(err, biddingerrors.ErrPersistenceFailure):
		return http.StatusServiceUnavailable, "bid could not be recorded, try again"
	case errors.Is(err, biddingerrors.ErrBidderNoBids):
		return http.StatusOK, "no auctions found for bidder"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, MessageTimedOut
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "client closed request"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// WriteServiceError maps err and writes the error envelope. Rejections also
// carry the auction's current price.
func WriteServiceError(c *gin.Context, err error) int {
	status, message := MapErrorToHTTP(err)
	var rej *biddingerrors.RejectionError
	if errors.As(err, &rej) {
		utils.JSONErrorWithData(c, status, fmt.Errorf("%s: %w", message, err), message, RejectionData{
			AuctionID:  rej.AuctionID,
			CurrentBid: rej.CurrentBid.StringFixed(moneyScale),
		})
		return status
	}
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	return status
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
