package domain

import (
	"encoding/json"
	"time"
)

// Topic names on the event transport. Consumers key off the auction id
// inside the payload, never off delivery order: the transport is
// at-least-once and may reorder.
const (
	TopicAuctionOpened        = "auction_opened"
	TopicAuctionClosed        = "auction_closed"
	TopicBidAccepted          = "bid_accepted"
	TopicBidRejected          = "bid_rejected"
	TopicAuctionSettled       = "auction_settled"
	TopicPaymentLinkIssued    = "payment_link_issued"
	TopicPaymentStatusChanged = "payment_status_changed"

	// AuctionTopicPrefix prefixes the per-auction broadcast topics
	// ("auction.events.<id>") that the interest router publishes to.
	// The dotted prefix keeps the pattern subscription from matching
	// the fixed auction_* lifecycle topics above.
	AuctionTopicPrefix = "auction.events."

	// AuctionTopicPattern matches every per-auction topic.
	AuctionTopicPattern = AuctionTopicPrefix + "*"
)

// AuctionTopic returns the per-auction broadcast topic for an auction id.
func AuctionTopic(auctionID string) string {
	return AuctionTopicPrefix + auctionID
}

type AuctionOpenedEvent struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

type AuctionClosedEvent struct {
	ID string `json:"id"`
}

type BidAcceptedEvent struct {
	AuctionID string    `json:"auction"`
	BidderID  string    `json:"bidder"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"ts"`
}

type BidRejectedEvent struct {
	AuctionID string    `json:"auction"`
	BidderID  string    `json:"bidder"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"ts"`
	Reason    string    `json:"reason"`
}

// AuctionSettledEvent declares the winner at close. Winner and Amount
// are nil when the auction closed without a single accepted bid.
type AuctionSettledEvent struct {
	AuctionID string   `json:"auction"`
	WinnerID  *string  `json:"winner"`
	Amount    *float64 `json:"amount"`
}

type PaymentLinkIssuedEvent struct {
	PaymentID string  `json:"payment_id"`
	AuctionID string  `json:"auction"`
	WinnerID  string  `json:"winner"`
	Link      string  `json:"link"`
	Amount    float64 `json:"amount"`
}

type PaymentStatusChangedEvent struct {
	PaymentID string  `json:"payment_id"`
	AuctionID string  `json:"auction"`
	WinnerID  string  `json:"winner"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	Details   string  `json:"details,omitempty"`
}

// Envelope wraps an event republished on a per-auction topic so the
// receiving side can tell bid updates from settlements.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
