package domain

import (
	"context"
	"time"
)

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	UpdateAuctionStatus(ctx context.Context, auctionID string, status AuctionStatus) error
	GetUnfinishedAuctions(ctx context.Context) ([]*Auction, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *Payment) error
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	// GetPaymentByAuction returns the payment opened for an auction,
	// or ErrNotFound when none was ever opened.
	GetPaymentByAuction(ctx context.Context, auctionID string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status PaymentStatus, updatedAt time.Time) error
	ListPayments(ctx context.Context) ([]*Payment, error)
}

// Event transport interfaces
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

type MessageHandler func(topic string, payload []byte) error

type EventSubscriber interface {
	// Subscribe blocks consuming the given topics until ctx is done.
	Subscribe(ctx context.Context, handler MessageHandler, topics ...string) error
	// SubscribePattern blocks consuming every topic matching pattern.
	SubscribePattern(ctx context.Context, pattern string, handler MessageHandler) error
}

// KeyRegistry holds the registered public key of each bidder and
// verifies detached signatures over canonical bid payloads.
type KeyRegistry interface {
	Register(bidderID string, publicKeyPEM []byte) error
	Verify(bidderID string, payload, signature []byte) error
}

// PaymentProvider is the external payment system boundary.
type PaymentProvider interface {
	RequestLink(ctx context.Context, auctionID, winnerID string, amount float64, callbackURL string) (*PaymentLink, error)
}

type PaymentLink struct {
	PaymentID string `json:"payment_id"`
	Link      string `json:"link"`
}

// Client push interfaces
type ClientConnection interface {
	Send(message interface{}) error
	Close() error
	ClientID() string
}

type ConnectionManager interface {
	RegisterConnection(clientID string, conn ClientConnection) error
	// UnregisterConnection removes the client's registration only when
	// conn is still the current connection, and reports whether it was.
	// A superseded connection tearing itself down must not remove the
	// connection that replaced it.
	UnregisterConnection(clientID string, conn ClientConnection) bool
	NotifyClient(clientID string, message interface{}) error
	NotifyClients(clientIDs []string, message interface{}) error
}
