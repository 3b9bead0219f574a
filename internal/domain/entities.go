package domain

import (
	"time"
)

type Auction struct {
	ID          string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Status      AuctionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type AuctionStatus int

const (
	AuctionScheduled AuctionStatus = iota
	AuctionOpen
	AuctionClosed
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionScheduled:
		return "scheduled"
	case AuctionOpen:
		return "open"
	case AuctionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Bid is a signed offer as submitted by a client. Signature is a
// base64-encoded RSA signature over the canonical bid payload.
type Bid struct {
	AuctionID string    `json:"auction"`
	BidderID  string    `json:"bidder"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"ts"`
	Signature string    `json:"signature"`
}

// LedgerEntry tracks the current highest accepted bid for one open
// auction. Zero HighestBidder means no bid has been accepted yet.
type LedgerEntry struct {
	AuctionID     string
	HighestBidder string
	HighestAmount float64
	UpdatedAt     time.Time
}

type Payment struct {
	ID        string
	AuctionID string
	WinnerID  string
	Amount    float64
	Status    PaymentStatus
	Link      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentDeclined PaymentStatus = "declined"
)

// Terminal reports whether the status can no longer change.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentApproved || s == PaymentDeclined
}
