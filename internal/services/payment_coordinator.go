package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"
)

var ErrInvalidPaymentStatus = errors.New("invalid payment status")

// PaymentCoordinator drives the payment saga: a settlement with a
// winner becomes a pending payment with a provider-issued link, and
// the provider's asynchronous callback moves the payment to its
// terminal status.
type PaymentCoordinator struct {
	repo        domain.PaymentRepository
	provider    domain.PaymentProvider
	eventPub    domain.EventPublisher
	callbackURL string
	log         logger.Logger

	mutex sync.Mutex
	// auction id -> payment id, so a redelivered settlement does not
	// open a second payment for the same auction.
	settled map[string]string
	// payment id -> its own lock, serializing the read-compare-write
	// of concurrent status reports for the same payment.
	paymentLocks map[string]*sync.Mutex
}

func NewPaymentCoordinator(repo domain.PaymentRepository, provider domain.PaymentProvider,
	eventPub domain.EventPublisher, callbackURL string, log logger.Logger) *PaymentCoordinator {
	return &PaymentCoordinator{
		repo:         repo,
		provider:     provider,
		eventPub:     eventPub,
		callbackURL:  callbackURL,
		log:          log,
		settled:      make(map[string]string),
		paymentLocks: make(map[string]*sync.Mutex),
	}
}

func (c *PaymentCoordinator) paymentLock(paymentID string) *sync.Mutex {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	lock, ok := c.paymentLocks[paymentID]
	if !ok {
		lock = &sync.Mutex{}
		c.paymentLocks[paymentID] = lock
	}
	return lock
}

func (c *PaymentCoordinator) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	c.log.Info("Starting payment coordinator")
	return subscriber.Subscribe(ctx, c.handleSettlement, domain.TopicAuctionSettled)
}

func (c *PaymentCoordinator) handleSettlement(topic string, payload []byte) error {
	var event domain.AuctionSettledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("parse settlement: %w", err)
	}
	return c.HandleAuctionSettled(context.Background(), &event)
}

// HandleAuctionSettled requests a payment link for the winner and
// emits PaymentLinkIssued. A settlement without a winner needs no
// payment and is ignored. Returning an error leaves the settlement
// unacknowledged so the transport redelivers it.
func (c *PaymentCoordinator) HandleAuctionSettled(ctx context.Context, event *domain.AuctionSettledEvent) error {
	if event.WinnerID == nil || event.Amount == nil {
		c.log.Info("Auction settled without winner, no payment to collect",
			"auction_id", event.AuctionID)
		return nil
	}

	// Claim the auction before calling out, so a settlement
	// redelivered mid-request cannot open a second payment.
	c.mutex.Lock()
	if paymentID, done := c.settled[event.AuctionID]; done {
		c.mutex.Unlock()
		c.log.Info("Ignoring duplicate settlement", "auction_id", event.AuctionID,
			"payment_id", paymentID)
		return nil
	}
	c.settled[event.AuctionID] = ""
	c.mutex.Unlock()

	// The in-memory claim does not survive a restart; the persisted
	// payment does, so a settlement redelivered across a restart must
	// not reach the provider again.
	if existing, err := c.repo.GetPaymentByAuction(ctx, event.AuctionID); err == nil {
		c.mutex.Lock()
		c.settled[event.AuctionID] = existing.ID
		c.mutex.Unlock()
		c.log.Info("Payment already opened for auction, ignoring redelivered settlement",
			"auction_id", event.AuctionID, "payment_id", existing.ID)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		c.mutex.Lock()
		delete(c.settled, event.AuctionID)
		c.mutex.Unlock()
		return fmt.Errorf("look up payment for auction %s: %w", event.AuctionID, err)
	}

	link, err := c.provider.RequestLink(ctx, event.AuctionID, *event.WinnerID, *event.Amount, c.callbackURL)
	if err != nil {
		// Settled but unpaid; surfaced for operator attention, the
		// settlement event stays eligible for redelivery.
		c.mutex.Lock()
		delete(c.settled, event.AuctionID)
		c.mutex.Unlock()
		c.log.Error("Payment link request failed after retry",
			"auction_id", event.AuctionID, "winner_id", *event.WinnerID, "error", err)
		return err
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:        link.PaymentID,
		AuctionID: event.AuctionID,
		WinnerID:  *event.WinnerID,
		Amount:    *event.Amount,
		Status:    domain.PaymentPending,
		Link:      link.Link,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.repo.CreatePayment(ctx, payment); err != nil {
		c.mutex.Lock()
		delete(c.settled, event.AuctionID)
		c.mutex.Unlock()
		return fmt.Errorf("record payment %s: %w", payment.ID, err)
	}

	c.mutex.Lock()
	c.settled[event.AuctionID] = payment.ID
	c.mutex.Unlock()

	issued := domain.PaymentLinkIssuedEvent{
		PaymentID: payment.ID,
		AuctionID: payment.AuctionID,
		WinnerID:  payment.WinnerID,
		Link:      payment.Link,
		Amount:    payment.Amount,
	}
	if err := c.eventPub.Publish(ctx, domain.TopicPaymentLinkIssued, issued); err != nil {
		c.log.Error("Failed to publish payment link issued",
			"payment_id", payment.ID, "error", err)
	}

	c.log.Info("Payment link issued", "payment_id", payment.ID,
		"auction_id", payment.AuctionID, "winner_id", payment.WinnerID)
	return nil
}

// ReportStatus is the inbound provider callback. Re-reporting the same
// terminal status is a no-op; a conflicting second terminal status is
// logged and the last write wins. Reports for one payment are
// serialized on a per-payment lock so concurrent duplicates cannot
// both read the stale status and both emit an event.
func (c *PaymentCoordinator) ReportStatus(ctx context.Context, paymentID, status, details string) (*domain.Payment, error) {
	newStatus, err := parseStatus(status)
	if err != nil {
		return nil, err
	}

	lock := c.paymentLock(paymentID)
	lock.Lock()
	defer lock.Unlock()

	payment, err := c.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status == newStatus {
		c.log.Info("Duplicate status report, ignoring",
			"payment_id", paymentID, "status", newStatus)
		return payment, nil
	}

	if payment.Status.Terminal() {
		c.log.Warn("Conflicting terminal status report, last write wins",
			"payment_id", paymentID, "previous", payment.Status, "reported", newStatus)
	}

	now := time.Now()
	if err := c.repo.UpdatePaymentStatus(ctx, paymentID, newStatus, now); err != nil {
		return nil, fmt.Errorf("update payment %s: %w", paymentID, err)
	}
	payment.Status = newStatus
	payment.UpdatedAt = now

	changed := domain.PaymentStatusChangedEvent{
		PaymentID: payment.ID,
		AuctionID: payment.AuctionID,
		WinnerID:  payment.WinnerID,
		Amount:    payment.Amount,
		Status:    string(newStatus),
		Details:   details,
	}
	if err := c.eventPub.Publish(ctx, domain.TopicPaymentStatusChanged, changed); err != nil {
		c.log.Error("Failed to publish payment status changed",
			"payment_id", paymentID, "error", err)
	}

	c.log.Info("Payment status changed", "payment_id", paymentID, "status", newStatus)
	return payment, nil
}

func parseStatus(status string) (domain.PaymentStatus, error) {
	switch strings.ToLower(status) {
	case string(domain.PaymentApproved):
		return domain.PaymentApproved, nil
	case string(domain.PaymentDeclined):
		return domain.PaymentDeclined, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, status)
	}
}
