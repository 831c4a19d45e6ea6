package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// guestNamespace scopes guest bidder identifiers derived from contact emails
var guestNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bidding-core/guest-bidders"))

// GuestBidderID derives a stable bidder identifier from a guest's email, so the
// same guest bids under the same identity across sessions without an account
func GuestBidderID(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	return "guest-" + uuid.NewSHA1(guestNamespace, []byte(normalized)).String()
}
