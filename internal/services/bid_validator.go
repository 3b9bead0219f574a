package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"sync"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/infrastructure/signing"
	"auction-settlement/pkg/logger"
)

// Rejection reasons, reported in BidRejected events and to the caller.
const (
	ReasonMalformed        = "malformed payload"
	ReasonInvalidSignature = "invalid signature"
	ReasonUnknownAuction   = "unknown auction"
	ReasonNotActive        = "auction not active"
	ReasonAmountTooLow     = "amount too low"
)

type SubmitResult struct {
	Accepted bool
	Reason   string
}

// BidValidator checks signature and business rules on submitted bids
// and keeps the per-auction ledger of the current highest accepted
// bid. Each auction has its own ledger entry with its own lock, so
// distinct auctions validate fully in parallel while submissions for
// one auction are serialized.
type BidValidator struct {
	keys     domain.KeyRegistry
	eventPub domain.EventPublisher
	log      logger.Logger

	mutex  sync.RWMutex
	ledger map[string]*ledgerEntry
}

type ledgerEntry struct {
	mutex         sync.Mutex
	open          bool
	hasBid        bool
	highestBidder string
	highestAmount float64
	// settled holds the exact payload emitted at close, so a
	// redelivered close re-emits it unchanged instead of recomputing.
	settled *domain.AuctionSettledEvent
}

func NewBidValidator(keys domain.KeyRegistry, eventPub domain.EventPublisher,
	log logger.Logger) *BidValidator {
	return &BidValidator{
		keys:     keys,
		eventPub: eventPub,
		log:      log,
		ledger:   make(map[string]*ledgerEntry),
	}
}

// Start consumes auction lifecycle events until ctx is done.
func (v *BidValidator) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	v.log.Info("Starting bid validator")
	return subscriber.Subscribe(ctx, v.handleLifecycleEvent,
		domain.TopicAuctionOpened, domain.TopicAuctionClosed)
}

func (v *BidValidator) handleLifecycleEvent(topic string, payload []byte) error {
	switch topic {
	case domain.TopicAuctionOpened:
		var event domain.AuctionOpenedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		v.HandleAuctionOpened(event.ID)
		return nil

	case domain.TopicAuctionClosed:
		var event domain.AuctionClosedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		return v.HandleAuctionClosed(context.Background(), event.ID)
	}

	return nil
}

// HandleAuctionOpened creates a fresh ledger entry for the auction. A
// duplicate open, or an open redelivered after the auction already
// settled, is ignored.
func (v *BidValidator) HandleAuctionOpened(auctionID string) {
	if auctionID == "" {
		return
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	if _, exists := v.ledger[auctionID]; exists {
		v.log.Info("Ignoring duplicate auction open", "auction_id", auctionID)
		return
	}

	v.ledger[auctionID] = &ledgerEntry{open: true}
	v.log.Info("Auction opened for bidding", "auction_id", auctionID)
}

// Submit validates a signed bid and, on acceptance, atomically updates
// the auction's ledger entry and emits BidAccepted. Rejections emit
// BidRejected with the first failed check, in order: malformed
// payload, invalid signature, unknown or closed auction, amount not
// strictly greater than the current highest.
func (v *BidValidator) Submit(ctx context.Context, bid *domain.Bid) (*SubmitResult, error) {
	if reason, ok := v.checkWellFormed(bid); !ok {
		return v.reject(ctx, bid, reason)
	}

	if err := v.verifySignature(bid); err != nil {
		return v.reject(ctx, bid, ReasonInvalidSignature)
	}

	v.mutex.RLock()
	entry, exists := v.ledger[bid.AuctionID]
	v.mutex.RUnlock()

	if !exists {
		// A bid cannot pre-empt its auction's opening.
		return v.reject(ctx, bid, ReasonUnknownAuction)
	}

	entry.mutex.Lock()
	defer entry.mutex.Unlock()

	if !entry.open {
		// Close is the hard cutoff, even for a would-be highest bid.
		return v.reject(ctx, bid, ReasonNotActive)
	}

	if entry.hasBid && bid.Amount <= entry.highestAmount {
		return v.reject(ctx, bid, ReasonAmountTooLow)
	}

	entry.hasBid = true
	entry.highestBidder = bid.BidderID
	entry.highestAmount = bid.Amount

	event := domain.BidAcceptedEvent{
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Timestamp: bid.Timestamp,
	}
	if err := v.eventPub.Publish(ctx, domain.TopicBidAccepted, event); err != nil {
		v.log.Error("Failed to publish bid accepted", "auction_id", bid.AuctionID, "error", err)
	}

	v.log.Info("Bid accepted", "auction_id", bid.AuctionID,
		"bidder_id", bid.BidderID, "amount", bid.Amount)
	return &SubmitResult{Accepted: true}, nil
}

// HandleAuctionClosed freezes the ledger entry and emits the
// settlement. Winner and amount are null when no bid was ever
// accepted. Re-closing an already settled auction re-emits the same
// settlement payload.
func (v *BidValidator) HandleAuctionClosed(ctx context.Context, auctionID string) error {
	if auctionID == "" {
		return nil
	}

	v.mutex.Lock()
	entry, exists := v.ledger[auctionID]
	if !exists {
		// Closed without ever opening here; settle with no winner
		// rather than dropping the settlement.
		entry = &ledgerEntry{}
		v.ledger[auctionID] = entry
	}
	v.mutex.Unlock()

	entry.mutex.Lock()
	defer entry.mutex.Unlock()

	if entry.settled == nil {
		entry.open = false
		settled := &domain.AuctionSettledEvent{AuctionID: auctionID}
		if entry.hasBid {
			winner := entry.highestBidder
			amount := entry.highestAmount
			settled.WinnerID = &winner
			settled.Amount = &amount
		}
		entry.settled = settled

		v.log.Info("Auction settled", "auction_id", auctionID,
			"has_winner", entry.hasBid)
	} else {
		v.log.Info("Re-emitting settlement for duplicate close", "auction_id", auctionID)
	}

	return v.eventPub.Publish(ctx, domain.TopicAuctionSettled, entry.settled)
}

func (v *BidValidator) checkWellFormed(bid *domain.Bid) (string, bool) {
	if bid == nil || bid.AuctionID == "" || bid.BidderID == "" || bid.Signature == "" {
		return ReasonMalformed, false
	}
	if bid.Amount <= 0 || math.IsNaN(bid.Amount) || math.IsInf(bid.Amount, 0) {
		return ReasonMalformed, false
	}
	if bid.Timestamp.IsZero() {
		return ReasonMalformed, false
	}
	return "", true
}

func (v *BidValidator) verifySignature(bid *domain.Bid) error {
	payload, err := signing.CanonicalBidPayload(bid.AuctionID, bid.BidderID, bid.Amount, bid.Timestamp)
	if err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(bid.Signature)
	if err != nil {
		return err
	}

	return v.keys.Verify(bid.BidderID, payload, sig)
}

func (v *BidValidator) reject(ctx context.Context, bid *domain.Bid, reason string) (*SubmitResult, error) {
	event := domain.BidRejectedEvent{Reason: reason}
	if bid != nil {
		event.AuctionID = bid.AuctionID
		event.BidderID = bid.BidderID
		event.Amount = bid.Amount
		event.Timestamp = bid.Timestamp
	}

	if err := v.eventPub.Publish(ctx, domain.TopicBidRejected, event); err != nil {
		v.log.Error("Failed to publish bid rejected", "reason", reason, "error", err)
	}

	v.log.Info("Bid rejected", "auction_id", event.AuctionID,
		"bidder_id", event.BidderID, "reason", reason)
	return &SubmitResult{Accepted: false, Reason: reason}, nil
}
