// Package client talks to the bidding server's HTTP API.
package client

import (
	"bidding-core/internal/biddingerrors"
	model "bidding-core/internal/models"
	"bidding-core/services/bidding/helpers"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout = 10 * time.Second
	readRetries    = 2
	readRetryBase  = 100 * time.Millisecond
)

// Client is a small HTTP client for the bidding API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL. A nil httpClient uses one
// with a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// SubmitBid posts a bid. It is not retried: a lost response may still mean
// the bid was accepted.
func (c *Client) SubmitBid(ctx context.Context, auctionID string, req helpers.SubmitBidRequest) (model.Bid, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.Bid{}, fmt.Errorf("client: encode bid: %w", err)
	}

	var resp helpers.BidResponse
	if err := c.do(ctx, http.MethodPost, "/auctions/"+url.PathEscape(auctionID)+"/bids", body, &resp); err != nil {
		return model.Bid{}, err
	}
	return bidFromResponse(resp)
}

// GetAuction fetches the authoritative auction summary, retrying transient failures
func (c *Client) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	var resp helpers.AuctionResponse
	backoff := retry.WithMaxRetries(readRetries, retry.NewExponential(readRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, "/auctions/"+url.PathEscape(auctionID), nil, &resp)
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return model.Auction{}, err
	}
	return auctionFromResponse(resp)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		if res.StatusCode >= http.StatusBadRequest {
			return &StatusError{Code: res.StatusCode, Message: http.StatusText(res.StatusCode)}
		}
		return fmt.Errorf("client: decode %s %s (status %d): %w", method, path, res.StatusCode, err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		return responseError(res.StatusCode, env)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("client: decode %s %s data: %w", method, path, err)
	}
	return nil
}

// StatusError is a non-2xx reply that does not map to a bidding error
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.Code, e.Message)
}

func responseError(code int, env envelope) error {
	var reason error
	switch code {
	case http.StatusNotFound:
		reason = biddingerrors.ErrAuctionNotFound
	case http.StatusConflict:
		reason = biddingerrors.ErrBidTooLow
	case http.StatusGone:
		reason = biddingerrors.ErrAuctionEnded
	case http.StatusBadRequest:
		reason = biddingerrors.ErrInvalidBid
		if env.Message == "invalid bid amount" {
			reason = biddingerrors.ErrInvalidAmount
		}
	case http.StatusServiceUnavailable:
		if env.Message == helpers.MessageTimedOut {
			return &StatusError{Code: code, Message: env.Message}
		}
		reason = biddingerrors.ErrPersistenceFailure
	default:
		return &StatusError{Code: code, Message: env.Message}
	}

	var rejection helpers.RejectionData
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &rejection) == nil && rejection.CurrentBid != "" {
		if current, err := decimal.NewFromString(rejection.CurrentBid); err == nil {
			return biddingerrors.Reject(reason, rejection.AuctionID, current, env.Message)
		}
	}
	return fmt.Errorf("client: %s: %w", env.Message, reason)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= http.StatusInternalServerError
	}
	if errors.Is(err, biddingerrors.ErrPersistenceFailure) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func bidFromResponse(resp helpers.BidResponse) (model.Bid, error) {
	amount, err := decimal.NewFromString(resp.Amount)
	if err != nil {
		return model.Bid{}, fmt.Errorf("client: bad bid amount %q: %w", resp.Amount, err)
	}
	submittedAt, err := time.Parse(time.RFC3339Nano, resp.SubmittedAt)
	if err != nil {
		return model.Bid{}, fmt.Errorf("client: bad bid time %q: %w", resp.SubmittedAt, err)
	}
	return model.Bid{
		ID:                resp.BidID,
		AuctionID:         resp.AuctionID,
		BidderID:          resp.BidderID,
		BidderDisplayName: resp.BidderDisplayName,
		IsGuest:           resp.IsGuest,
		Amount:            amount,
		SubmittedAt:       submittedAt,
	}, nil
}

func auctionFromResponse(resp helpers.AuctionResponse) (model.Auction, error) {
	starting, err := decimal.NewFromString(resp.StartingBid)
	if err != nil {
		return model.Auction{}, fmt.Errorf("client: bad starting bid %q: %w", resp.StartingBid, err)
	}
	current, err := decimal.NewFromString(resp.CurrentBid)
	if err != nil {
		return model.Auction{}, fmt.Errorf("client: bad current bid %q: %w", resp.CurrentBid, err)
	}
	endTime, err := time.Parse(time.RFC3339, resp.EndTime)
	if err != nil {
		return model.Auction{}, fmt.Errorf("client: bad end time %q: %w", resp.EndTime, err)
	}
	return model.Auction{
		ID:          resp.AuctionID,
		Title:       resp.Title,
		StartingBid: starting,
		CurrentBid:  current,
		BidderCount: resp.BidderCount,
		EndTime:     endTime,
	}, nil
}
