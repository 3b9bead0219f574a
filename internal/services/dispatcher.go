package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"
)

// NotificationDispatcher delivers events to exactly the clients
// entitled to see them: auction updates to clients that registered
// interest in that auction, payment events privately to the winner.
type NotificationDispatcher struct {
	connManager domain.ConnectionManager
	log         logger.Logger

	mutex     sync.RWMutex
	interests map[string]*clientInterests
}

// clientInterests carries its own lock; only the owning client mutates
// its set, readers take the per-client lock, never a global one.
type clientInterests struct {
	mutex    sync.Mutex
	auctions map[string]struct{}
}

func NewNotificationDispatcher(connManager domain.ConnectionManager, log logger.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		connManager: connManager,
		log:         log,
		interests:   make(map[string]*clientInterests),
	}
}

// Connect attaches a client's push channel.
func (d *NotificationDispatcher) Connect(clientID string, conn domain.ClientConnection) error {
	return d.connManager.RegisterConnection(clientID, conn)
}

// Disconnect removes the client's channel and interest set so no
// future event attempts delivery to a dead channel. The departing
// connection must still be the client's current one; the teardown of a
// connection superseded by a reconnect leaves the live registration
// and the interest set untouched.
func (d *NotificationDispatcher) Disconnect(clientID string, conn domain.ClientConnection) {
	if !d.connManager.UnregisterConnection(clientID, conn) {
		return
	}

	d.mutex.Lock()
	delete(d.interests, clientID)
	d.mutex.Unlock()

	d.log.Info("Client disconnected", "client_id", clientID)
}

// RegisterInterest subscribes a client to one auction's updates.
// Registering twice is a no-op.
func (d *NotificationDispatcher) RegisterInterest(clientID, auctionID string) {
	if clientID == "" || auctionID == "" {
		return
	}

	d.mutex.Lock()
	ci, exists := d.interests[clientID]
	if !exists {
		ci = &clientInterests{auctions: make(map[string]struct{})}
		d.interests[clientID] = ci
	}
	d.mutex.Unlock()

	ci.mutex.Lock()
	ci.auctions[auctionID] = struct{}{}
	ci.mutex.Unlock()

	d.log.Info("Interest registered", "client_id", clientID, "auction_id", auctionID)
}

// CancelInterest removes one auction from a client's set. Cancelling
// an interest that was never registered is a no-op.
func (d *NotificationDispatcher) CancelInterest(clientID, auctionID string) {
	d.mutex.RLock()
	ci, exists := d.interests[clientID]
	d.mutex.RUnlock()

	if !exists {
		return
	}

	ci.mutex.Lock()
	delete(ci.auctions, auctionID)
	ci.mutex.Unlock()

	d.log.Info("Interest cancelled", "client_id", clientID, "auction_id", auctionID)
}

// HandleAuctionEvent consumes a per-auction topic message and
// broadcasts it to the clients interested in that auction.
func (d *NotificationDispatcher) HandleAuctionEvent(topic string, payload []byte) error {
	auctionID := strings.TrimPrefix(topic, domain.AuctionTopicPrefix)
	if auctionID == "" || auctionID == topic {
		return fmt.Errorf("not a per-auction topic: %s", topic)
	}

	var envelope domain.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("parse envelope on %s: %w", topic, err)
	}

	clients := d.interestedClients(auctionID)
	if len(clients) == 0 {
		return nil
	}

	message := map[string]interface{}{
		"type": envelope.Event,
		"data": envelope.Data,
	}
	return d.connManager.NotifyClients(clients, message)
}

// HandlePaymentEvent consumes payment events and delivers each only to
// the declared winner, regardless of who registered interest in the
// auction.
func (d *NotificationDispatcher) HandlePaymentEvent(topic string, payload []byte) error {
	var ref struct {
		WinnerID string `json:"winner"`
	}
	if err := json.Unmarshal(payload, &ref); err != nil {
		return fmt.Errorf("parse %s event: %w", topic, err)
	}
	if ref.WinnerID == "" {
		d.log.Warn("Payment event without winner, dropping", "topic", topic)
		return nil
	}

	message := map[string]interface{}{
		"type": topic,
		"data": json.RawMessage(payload),
	}
	return d.connManager.NotifyClient(ref.WinnerID, message)
}

// StartAuctionStream consumes every per-auction topic until ctx is done.
func (d *NotificationDispatcher) StartAuctionStream(ctx context.Context, subscriber domain.EventSubscriber) error {
	d.log.Info("Starting auction event stream")
	return subscriber.SubscribePattern(ctx, domain.AuctionTopicPattern, d.HandleAuctionEvent)
}

// StartPaymentStream consumes the payment topics until ctx is done.
func (d *NotificationDispatcher) StartPaymentStream(ctx context.Context, subscriber domain.EventSubscriber) error {
	d.log.Info("Starting payment event stream")
	return subscriber.Subscribe(ctx, d.HandlePaymentEvent,
		domain.TopicPaymentLinkIssued, domain.TopicPaymentStatusChanged)
}

func (d *NotificationDispatcher) interestedClients(auctionID string) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var clients []string
	for clientID, ci := range d.interests {
		ci.mutex.Lock()
		_, interested := ci.auctions[auctionID]
		ci.mutex.Unlock()
		if interested {
			clients = append(clients, clientID)
		}
	}
	return clients
}
