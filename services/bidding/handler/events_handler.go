package handler

import (
	"io"
	"time"

	model "bidding-core/internal/models"
	"bidding-core/services/bidding/helpers"
	"bidding-core/utils"

	"github.com/gin-gonic/gin"
)

// SSE event names besides the auction event types
const (
	eventSnapshot = "snapshot"
	eventResync   = "resync"
	eventPing     = "ping"
)

// StreamEventsHandler handles GET /auctions/:auction_id/events.
//
// The first frame is a snapshot of the auction. Each accepted bid and the
// auction's end follow as they happen. If the broker drops the subscriber a
// resync frame is sent and the stream closes; the client should refetch and
// reconnect.
func (h *BiddingHandler) StreamEventsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	ctx := c.Request.Context()

	sub, auction, err := h.service.Subscribe(ctx, auctionID)
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("StreamEventsHandler: subscribe failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	now := h.service.Now()
	c.SSEvent(eventSnapshot, helpers.NewAuctionResponse(auction, now))
	if auction.Status(now) == model.StatusEnded {
		c.SSEvent(string(model.EventAuctionEnded), gin.H{"auction_id": auctionID})
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	utils.Info("StreamEventsHandler: subscriber connected", map[string]any{"auction_id": auctionID})
	events := sub.Events()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				c.SSEvent(eventResync, gin.H{"auction_id": auctionID})
				utils.Warn("StreamEventsHandler: subscriber dropped", map[string]any{"auction_id": auctionID})
				return false
			}
			c.SSEvent(string(ev.Type), helpers.NewEventResponse(ev, h.service.Now()))
			return ev.Type != model.EventAuctionEnded
		case <-heartbeat.C:
			c.SSEvent(eventPing, gin.H{"at": h.service.Now().Format(time.RFC3339)})
			return true
		case <-ctx.Done():
			return false
		}
	})
	utils.Info("StreamEventsHandler: subscriber disconnected", map[string]any{"auction_id": auctionID})
}
