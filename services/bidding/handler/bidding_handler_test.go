package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bidding-core/internal/biddingerrors"
	model "bidding-core/internal/models"
	"bidding-core/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

// decimalEq matches decimals by value rather than representation
type decimalEq struct{ want decimal.Decimal }

func (m decimalEq) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalEq) String() string { return "is decimal " + m.want.String() }

func amountEq(s string) gomock.Matcher { return decimalEq{want: decimal.RequireFromString(s)} }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAuction(id, current string, end time.Time) model.Auction {
	return model.Auction{
		ID:          id,
		Title:       id + " title",
		StartingBid: dec("100"),
		CurrentBid:  dec(current),
		BidderCount: 2,
		EndTime:     end,
	}
}

// newTestRouter builds a router with one route and its own mock controller
func newTestRouter(t *testing.T, method, path string, route func(h *BiddingHandler) gin.HandlerFunc) (*gin.Engine, *MockBiddingServiceInterface) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := NewMockBiddingServiceInterface(ctrl)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Handle(method, path, route(NewBiddingHandler(mockService)))
	return router, mockService
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// Test SubmitBidHandler
func TestSubmitBidHandler(t *testing.T) {
	t.Parallel()

	alice := model.Bidder{ID: "alice", DisplayName: "Alice"}

	tests := []struct {
		name           string
		auctionID      string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name:        "success_valid_bid",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "150.00"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("150")).
					Return(model.Bid{
						ID:                uuid.NewString(),
						AuctionID:         "auction1",
						BidderID:          "alice",
						BidderDisplayName: "Alice",
						Amount:            dec("150"),
						SubmittedAt:       testNow,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid accepted",
			validateData: func(t *testing.T, data map[string]any) {
				_, parseErr := uuid.Parse(data["bid_id"].(string))
				require.NoError(t, parseErr, "bid_id should be a valid UUID")
				require.Equal(t, "auction1", data["auction_id"])
				require.Equal(t, "alice", data["bidder_id"])
				require.Equal(t, "150.00", data["amount"])
				require.Equal(t, testNow.Format(time.RFC3339Nano), data["submitted_at"])
			},
		},
		{
			name:        "numeric_amount",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": 175.5},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("175.50")).
					Return(model.Bid{ID: uuid.NewString(), AuctionID: "auction1", BidderID: "alice", Amount: dec("175.5"), SubmittedAt: testNow}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid accepted",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "175.50", data["amount"])
			},
		},
		{
			name:        "guest_identified_by_email",
			auctionID:   "auction1",
			requestBody: map[string]any{"email": "guest@example.com", "display_name": "Guest", "is_guest": true, "amount": "120"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				guest := model.Bidder{
					ID:          utils.GuestBidderID("guest@example.com"),
					DisplayName: "Guest",
					Email:       "guest@example.com",
					IsGuest:     true,
				}
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", guest, amountEq("120")).
					Return(model.Bid{ID: uuid.NewString(), AuctionID: "auction1", BidderID: guest.ID, IsGuest: true, Amount: dec("120"), SubmittedAt: testNow}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid accepted",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, true, data["is_guest"])
				require.Equal(t, utils.GuestBidderID("GUEST@example.com"), data["bidder_id"])
			},
		},
		{
			name:           "invalid_json",
			auctionID:      "auction1",
			requestBody:    `{invalid json}`,
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_amount",
			auctionID:      "auction1",
			requestBody:    map[string]any{"bidder_id": "alice"},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "non_numeric_amount",
			auctionID:      "auction1",
			requestBody:    map[string]any{"bidder_id": "alice", "amount": "a lot"},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_bidder",
			auctionID:      "auction1",
			requestBody:    map[string]any{"amount": "150"},
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "service_bid_too_low",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "150"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("150")).
					Return(model.Bid{}, biddingerrors.Reject(biddingerrors.ErrBidTooLow, "auction1", dec("160"), ""))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "160.00", data["current_bid"])
				require.Equal(t, "auction1", data["auction_id"])
			},
		},
		{
			name:        "service_auction_ended",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "500"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("500")).
					Return(model.Bid{}, biddingerrors.Reject(biddingerrors.ErrAuctionEnded, "auction1", dec("300"), ""))
			},
			expectedStatus: http.StatusGone,
			expectedMsg:    "auction has ended",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "300.00", data["current_bid"])
			},
		},
		{
			name:        "service_invalid_amount",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "150.001"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("150.001")).
					Return(model.Bid{}, biddingerrors.Reject(biddingerrors.ErrInvalidAmount, "auction1", dec("100"), "too many decimal places"))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid bid amount",
		},
		{
			name:           "huge_exponent_rejected_before_service",
			auctionID:      "auction1",
			requestBody:    `{"bidder_id":"alice","amount":"1e999999999"}`,
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid bid amount",
		},
		{
			name:           "tiny_exponent_rejected_before_service",
			auctionID:      "auction1",
			requestBody:    `{"bidder_id":"alice","amount":1e-999999999}`,
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid bid amount",
		},
		{
			name:        "request_deadline_exceeded",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "150"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("150")).
					Return(model.Bid{}, fmt.Errorf("service: auction auction1: %w", context.DeadlineExceeded))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "request timed out",
		},
		{
			name:        "request_cancelled",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "150"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("150")).
					Return(model.Bid{}, fmt.Errorf("service: auction auction1: %w", context.Canceled))
			},
			expectedStatus: 499,
			expectedMsg:    "client closed request",
		},
		{
			name:        "service_auction_not_found",
			auctionID:   "missing",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "150"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "missing", alice, amountEq("150")).
					Return(model.Bid{}, fmt.Errorf("service: %w", biddingerrors.ErrAuctionNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name:        "service_persistence_failure",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "150"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("150")).
					Return(model.Bid{}, fmt.Errorf("service: %w after 4 attempts", biddingerrors.ErrPersistenceFailure))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "bid could not be recorded",
		},
		{
			name:        "service_generic_error",
			auctionID:   "auction1",
			requestBody: map[string]any{"bidder_id": "alice", "display_name": "Alice", "amount": "150"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SubmitBid(gomock.Any(), "auction1", alice, amountEq("150")).
					Return(model.Bid{}, errors.New("unexpected failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, http.MethodPost, "/auctions/:auction_id/bids",
				func(h *BiddingHandler) gin.HandlerFunc { return h.SubmitBidHandler })
			tc.mockSetup(mockService)

			var reqBody []byte
			switch v := tc.requestBody.(type) {
			case string:
				reqBody = []byte(v)
			default:
				var err error
				reqBody, err = json.Marshal(v)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/auctions/"+tc.auctionID+"/bids", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
			resp := decodeBody(t, w)
			require.Contains(t, resp["message"], tc.expectedMsg)

			if tc.validateData != nil {
				data := resp["data"].(map[string]any)
				tc.validateData(t, data)
			}
		})
	}
}

// Test GetBidsByAuctionHandler
func TestGetBidsByAuctionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		url            string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		expectedLen    int
	}{
		{
			name: "success_default_order",
			url:  "/auctions/auction1/bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "auction1", model.ListOptions{}).
					Return([]model.Bid{
						{ID: "b2", AuctionID: "auction1", BidderID: "bob", Amount: dec("150"), SubmittedAt: testNow},
						{ID: "b1", AuctionID: "auction1", BidderID: "alice", Amount: dec("120"), SubmittedAt: testNow.Add(-time.Minute)},
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			expectedLen:    2,
		},
		{
			name: "paging_parameters",
			url:  "/auctions/auction1/bids?order=asc&limit=5&offset=10",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "auction1", model.ListOptions{Order: model.OrderAsc, Limit: 5, Offset: 10}).
					Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			expectedLen:    0,
		},
		{
			name:           "bad_order",
			url:            "/auctions/auction1/bids?order=random",
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "negative_limit",
			url:            "/auctions/auction1/bids?limit=-1",
			mockSetup:      func(*MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "auction_not_found",
			url:  "/auctions/missing/bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "missing", gomock.Any()).
					Return(nil, biddingerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name: "service_generic_error",
			url:  "/auctions/auction1/bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "auction1", gomock.Any()).
					Return(nil, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, http.MethodGet, "/auctions/:auction_id/bids",
				func(h *BiddingHandler) gin.HandlerFunc { return h.GetBidsByAuctionHandler })
			tc.mockSetup(mockService)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.url, nil))

			require.Equal(t, tc.expectedStatus, w.Code)
			resp := decodeBody(t, w)
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusOK {
				data := resp["data"].([]any)
				require.Len(t, data, tc.expectedLen)
			}
		})
	}
}

// Test GetWinningBidHandler
func TestGetWinningBidHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		auctionID      string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:      "success",
			auctionID: "auction1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "auction1").
					Return(model.Bid{ID: "b1", AuctionID: "auction1", BidderID: "alice", Amount: dec("250"), SubmittedAt: testNow}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "winning bid retrieved successfully",
		},
		{
			name:      "no_bids",
			auctionID: "auction2",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "auction2").
					Return(model.Bid{}, fmt.Errorf("service: %w", biddingerrors.ErrNoBids))
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "no bids found for auction",
		},
		{
			name:      "auction_not_found",
			auctionID: "missing",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "missing").
					Return(model.Bid{}, biddingerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, http.MethodGet, "/auctions/:auction_id/winning",
				func(h *BiddingHandler) gin.HandlerFunc { return h.GetWinningBidHandler })
			tc.mockSetup(mockService)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/"+tc.auctionID+"/winning", nil))

			require.Equal(t, tc.expectedStatus, w.Code)
			resp := decodeBody(t, w)
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusOK {
				data := resp["data"].(map[string]any)
				require.Equal(t, "250.00", data["amount"])
				require.Equal(t, "alice", data["bidder_id"])
			}
		})
	}
}

func TestAuctionHandlers(t *testing.T) {
	t.Parallel()

	t.Run("get_auction_reports_status", func(t *testing.T) {
		t.Parallel()
		router, m := newTestRouter(t, http.MethodGet, "/auctions/:auction_id",
			func(h *BiddingHandler) gin.HandlerFunc { return h.GetAuctionHandler })
		m.EXPECT().Now().Return(testNow).AnyTimes()
		m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(testAuction("auction1", "175.5", testNow.Add(time.Hour)), nil)
		m.EXPECT().GetAuction(gomock.Any(), "done").Return(testAuction("done", "300", testNow), nil)
		m.EXPECT().GetAuction(gomock.Any(), "missing").Return(model.Auction{}, biddingerrors.ErrAuctionNotFound)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/auction1", nil))
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]any)
		require.Equal(t, "active", data["status"])
		require.Equal(t, "175.50", data["current_bid"])
		require.Equal(t, float64(2), data["bidder_count"])

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/done", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "ended", decodeBody(t, w)["data"].(map[string]any)["status"])

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/missing", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list_auctions", func(t *testing.T) {
		t.Parallel()
		router, m := newTestRouter(t, http.MethodGet, "/auctions",
			func(h *BiddingHandler) gin.HandlerFunc { return h.ListAuctionsHandler })
		m.EXPECT().Now().Return(testNow).AnyTimes()
		m.EXPECT().ListAuctions(gomock.Any()).Return([]model.Auction{
			testAuction("a1", "100", testNow.Add(time.Hour)),
			testAuction("a2", "200", testNow.Add(2*time.Hour)),
		}, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, decodeBody(t, w)["data"].([]any), 2)
	})

	t.Run("list_auctions_error", func(t *testing.T) {
		t.Parallel()
		router, m := newTestRouter(t, http.MethodGet, "/auctions",
			func(h *BiddingHandler) gin.HandlerFunc { return h.ListAuctionsHandler })
		m.EXPECT().ListAuctions(gomock.Any()).Return(nil, errors.New("database failure"))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions", nil))
		require.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

// Test GetAuctionsByBidderHandler
func TestGetAuctionsByBidderHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		bidderID       string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedLen    int
	}{
		{
			name:     "success",
			bidderID: "alice",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuctionsByBidder(gomock.Any(), "alice").
					Return([]model.Auction{testAuction("a1", "150", testNow.Add(time.Hour))}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    1,
		},
		{
			name:     "bidder_without_bids",
			bidderID: "bob",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuctionsByBidder(gomock.Any(), "bob").
					Return(nil, fmt.Errorf("service: %w", biddingerrors.ErrBidderNoBids))
			},
			expectedStatus: http.StatusOK,
			expectedLen:    0,
		},
		{
			name:     "service_generic_error",
			bidderID: "carol",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuctionsByBidder(gomock.Any(), "carol").
					Return(nil, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t, http.MethodGet, "/bidders/:bidder_id/auctions",
				func(h *BiddingHandler) gin.HandlerFunc { return h.GetAuctionsByBidderHandler })
			mockService.EXPECT().Now().Return(testNow).AnyTimes()
			tc.mockSetup(mockService)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bidders/"+tc.bidderID+"/auctions", nil))

			require.Equal(t, tc.expectedStatus, w.Code)
			if w.Code == http.StatusOK {
				require.Len(t, decodeBody(t, w)["data"].([]any), tc.expectedLen)
			}
		})
	}
}
