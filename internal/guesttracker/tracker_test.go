package guesttracker

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, store Store) *Tracker {
	t.Helper()
	tr, err := New(store)
	require.NoError(t, err)

	now := time.Date(2026, 7, 4, 15, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return tr
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// A guest recognizes their own standing from local records
func TestTracker_IsHighestBidder(t *testing.T) {
	t.Parallel()
	tr := newTestTracker(t, NewMemoryStore())

	_, err := tr.Record("auction1", "Guest@Example.com ", "Guest", dec("120"))
	require.NoError(t, err)
	_, err = tr.Record("auction1", "guest@example.com", "Guest", dec("140"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		auctionID  string
		email      string
		currentBid string
		want       bool
	}{
		{name: "own_bid_is_current", auctionID: "auction1", email: "guest@example.com", currentBid: "140", want: true},
		{name: "email_is_normalized", auctionID: "auction1", email: "  GUEST@example.com", currentBid: "140", want: true},
		{name: "outbid", auctionID: "auction1", email: "guest@example.com", currentBid: "150", want: false},
		{name: "other_guest", auctionID: "auction1", email: "someone@example.com", currentBid: "100", want: false},
		{name: "other_auction", auctionID: "auction2", email: "guest@example.com", currentBid: "0", want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tr.IsHighestBidder(tc.auctionID, tc.email, dec(tc.currentBid)))
		})
	}
}

func TestTracker_BidsForNewestFirst(t *testing.T) {
	t.Parallel()
	tr := newTestTracker(t, NewMemoryStore())

	for _, amount := range []string{"10", "20", "30"} {
		_, err := tr.Record("auction1", "guest@example.com", "Guest", dec(amount))
		require.NoError(t, err)
	}
	_, err := tr.Record("auction2", "guest@example.com", "Guest", dec("99"))
	require.NoError(t, err)

	records := tr.BidsFor("auction1")
	require.Len(t, records, 3)
	require.True(t, records[0].Amount.Equal(dec("30")))
	require.True(t, records[2].Amount.Equal(dec("10")))
	require.True(t, records[0].SubmittedAt.After(records[1].SubmittedAt))

	require.Empty(t, tr.BidsFor("unknown"))

	highest, ok := tr.HighestFor("auction1", "guest@example.com")
	require.True(t, ok)
	require.True(t, highest.Equal(dec("30")))
}

func TestTracker_BidsByOnlyShowsOwnBids(t *testing.T) {
	t.Parallel()
	tr := newTestTracker(t, NewMemoryStore())

	_, err := tr.Record("auction1", "ana@example.com", "Ana", dec("110"))
	require.NoError(t, err)
	_, err = tr.Record("auction1", "ben@example.com", "Ben", dec("120"))
	require.NoError(t, err)
	_, err = tr.Record("auction1", "Ana@Example.com", "Ana", dec("130"))
	require.NoError(t, err)
	_, err = tr.Record("auction2", "ana@example.com", "Ana", dec("50"))
	require.NoError(t, err)

	records := tr.BidsBy("auction1", "  ANA@example.com ")
	require.Len(t, records, 2)
	require.True(t, records[0].Amount.Equal(dec("130")))
	require.True(t, records[1].Amount.Equal(dec("110")))
	for _, rec := range records {
		require.Equal(t, "ana@example.com", rec.Email)
	}

	require.Len(t, tr.BidsBy("auction1", "ben@example.com"), 1)
	require.Empty(t, tr.BidsBy("auction1", "carol@example.com"))
	require.Len(t, tr.BidsFor("auction1"), 3)
}

func TestTracker_RecordValidation(t *testing.T) {
	t.Parallel()
	tr := newTestTracker(t, NewMemoryStore())

	tests := []struct {
		name      string
		auctionID string
		email     string
		amount    string
	}{
		{name: "missing_auction", auctionID: "", email: "guest@example.com", amount: "10"},
		{name: "missing_email", auctionID: "auction1", email: "   ", amount: "10"},
		{name: "zero_amount", auctionID: "auction1", email: "guest@example.com", amount: "0"},
		{name: "negative_amount", auctionID: "auction1", email: "guest@example.com", amount: "-1"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := tr.Record(tc.auctionID, tc.email, "Guest", dec(tc.amount))
			require.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestTracker_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	first := newTestTracker(t, store)
	rec, err := first.Record("auction1", "guest@example.com", "Guest", dec("75.50"))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	second := newTestTracker(t, store)
	records := second.BidsFor("auction1")
	require.Len(t, records, 1)
	require.Equal(t, rec.ID, records[0].ID)
	require.True(t, second.IsHighestBidder("auction1", "guest@example.com", dec("75.50")))
}

func TestTracker_SaveFailureKeepsState(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	tr := newTestTracker(t, store)

	_, err := tr.Record("auction1", "guest@example.com", "Guest", dec("10"))
	require.NoError(t, err)

	diskFull := errors.New("no space left on device")
	store.FailSaves(diskFull)

	_, err = tr.Record("auction1", "guest@example.com", "Guest", dec("20"))
	require.ErrorIs(t, err, diskFull)
	require.Len(t, tr.BidsFor("auction1"), 1)

	require.ErrorIs(t, tr.Forget("auction1"), diskFull)
	require.Len(t, tr.BidsFor("auction1"), 1)

	store.FailSaves(nil)
	require.NoError(t, tr.Forget("auction1"))
	require.Empty(t, tr.BidsFor("auction1"))
}
