package services

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"

	"github.com/stretchr/testify/require"
)

// fakeConnManager records which client received which message.
type fakeConnManager struct {
	mutex      sync.Mutex
	registered map[string]domain.ClientConnection
	deliveries map[string][]interface{}
}

func newFakeConnManager() *fakeConnManager {
	return &fakeConnManager{
		registered: make(map[string]domain.ClientConnection),
		deliveries: make(map[string][]interface{}),
	}
}

func (m *fakeConnManager) RegisterConnection(clientID string, conn domain.ClientConnection) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.registered[clientID] = conn
	return nil
}

func (m *fakeConnManager) UnregisterConnection(clientID string, conn domain.ClientConnection) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if current, exists := m.registered[clientID]; !exists || current != conn {
		return false
	}
	delete(m.registered, clientID)
	return true
}

func (m *fakeConnManager) NotifyClient(clientID string, message interface{}) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.deliveries[clientID] = append(m.deliveries[clientID], message)
	return nil
}

func (m *fakeConnManager) NotifyClients(clientIDs []string, message interface{}) error {
	for _, clientID := range clientIDs {
		_ = m.NotifyClient(clientID, message)
	}
	return nil
}

func (m *fakeConnManager) deliveredTo(clientID string) []interface{} {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.deliveries[clientID]
}

type fakeClientConn struct {
	clientID string
}

func (c *fakeClientConn) Send(message interface{}) error { return nil }
func (c *fakeClientConn) Close() error                   { return nil }
func (c *fakeClientConn) ClientID() string               { return c.clientID }

func newTestDispatcher(t *testing.T) (*NotificationDispatcher, *fakeConnManager) {
	t.Helper()
	conns := newFakeConnManager()
	return NewNotificationDispatcher(conns, logger.NewNop()), conns
}

func auctionEnvelope(t *testing.T, event string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(domain.Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	return payload
}

func TestDispatcher_DeliversToInterestedClientsOnly(t *testing.T) {
	dispatcher, conns := newTestDispatcher(t)

	dispatcher.RegisterInterest("c1", "a1")
	dispatcher.RegisterInterest("c2", "a1")
	dispatcher.RegisterInterest("c3", "a2")

	payload := auctionEnvelope(t, domain.TopicBidAccepted,
		domain.BidAcceptedEvent{AuctionID: "a1", BidderID: "u1", Amount: 150})
	require.NoError(t, dispatcher.HandleAuctionEvent(domain.AuctionTopic("a1"), payload))

	require.Len(t, conns.deliveredTo("c1"), 1)
	require.Len(t, conns.deliveredTo("c2"), 1)
	require.Empty(t, conns.deliveredTo("c3"))
}

func TestDispatcher_CancelInterestStopsDelivery(t *testing.T) {
	dispatcher, conns := newTestDispatcher(t)

	dispatcher.RegisterInterest("c1", "a1")
	dispatcher.CancelInterest("c1", "a1")
	dispatcher.CancelInterest("c1", "a1")
	dispatcher.CancelInterest("never-registered", "a1")

	payload := auctionEnvelope(t, domain.TopicBidAccepted,
		domain.BidAcceptedEvent{AuctionID: "a1", BidderID: "u1", Amount: 10})
	require.NoError(t, dispatcher.HandleAuctionEvent(domain.AuctionTopic("a1"), payload))

	require.Empty(t, conns.deliveredTo("c1"))
}

func TestDispatcher_DisconnectClearsInterests(t *testing.T) {
	dispatcher, conns := newTestDispatcher(t)

	conn := &fakeClientConn{clientID: "c1"}
	require.NoError(t, dispatcher.Connect("c1", conn))
	dispatcher.RegisterInterest("c1", "a1")
	dispatcher.Disconnect("c1", conn)

	payload := auctionEnvelope(t, domain.TopicBidAccepted,
		domain.BidAcceptedEvent{AuctionID: "a1", BidderID: "u1", Amount: 10})
	require.NoError(t, dispatcher.HandleAuctionEvent(domain.AuctionTopic("a1"), payload))

	require.Empty(t, conns.deliveredTo("c1"))
}

func TestDispatcher_StaleTeardownKeepsReconnectedClient(t *testing.T) {
	dispatcher, conns := newTestDispatcher(t)

	first := &fakeClientConn{clientID: "c1"}
	require.NoError(t, dispatcher.Connect("c1", first))
	dispatcher.RegisterInterest("c1", "a1")

	// Reconnect supersedes the first connection; its reader loop then
	// tears down and must not take the live registration with it.
	second := &fakeClientConn{clientID: "c1"}
	require.NoError(t, dispatcher.Connect("c1", second))
	dispatcher.Disconnect("c1", first)

	payload := auctionEnvelope(t, domain.TopicBidAccepted,
		domain.BidAcceptedEvent{AuctionID: "a1", BidderID: "u1", Amount: 10})
	require.NoError(t, dispatcher.HandleAuctionEvent(domain.AuctionTopic("a1"), payload))
	require.Len(t, conns.deliveredTo("c1"), 1)

	winnerPayload, err := json.Marshal(domain.PaymentStatusChangedEvent{
		PaymentID: "pay-1", AuctionID: "a1", WinnerID: "c1", Amount: 10, Status: "approved",
	})
	require.NoError(t, err)
	require.NoError(t, dispatcher.HandlePaymentEvent(domain.TopicPaymentStatusChanged, winnerPayload))
	require.Len(t, conns.deliveredTo("c1"), 2)

	// Teardown of the current connection still cleans up fully.
	dispatcher.Disconnect("c1", second)
	require.NoError(t, dispatcher.HandleAuctionEvent(domain.AuctionTopic("a1"), payload))
	require.Len(t, conns.deliveredTo("c1"), 2)
}

func TestDispatcher_PaymentEventsGoToWinnerOnly(t *testing.T) {
	dispatcher, conns := newTestDispatcher(t)

	// Everyone watched the auction, but payment details are private.
	dispatcher.RegisterInterest("c1", "a1")
	dispatcher.RegisterInterest("u2", "a1")

	payload, err := json.Marshal(domain.PaymentLinkIssuedEvent{
		PaymentID: "pay-1",
		AuctionID: "a1",
		WinnerID:  "u2",
		Link:      "https://pay.example/pay-1",
		Amount:    300,
	})
	require.NoError(t, err)
	require.NoError(t, dispatcher.HandlePaymentEvent(domain.TopicPaymentLinkIssued, payload))

	require.Len(t, conns.deliveredTo("u2"), 1)
	require.Empty(t, conns.deliveredTo("c1"))
}

func TestDispatcher_PaymentEventWithoutWinnerIsDropped(t *testing.T) {
	dispatcher, conns := newTestDispatcher(t)
	dispatcher.RegisterInterest("c1", "a1")

	require.NoError(t, dispatcher.HandlePaymentEvent(domain.TopicPaymentStatusChanged, []byte(`{"payment_id":"pay-1"}`)))
	require.Empty(t, conns.deliveredTo("c1"))
}

func TestDispatcher_RejectsMalformedInput(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	require.Error(t, dispatcher.HandleAuctionEvent("bid_accepted", []byte("{}")))
	require.Error(t, dispatcher.HandleAuctionEvent(domain.AuctionTopic("a1"), []byte("not json")))
	require.Error(t, dispatcher.HandlePaymentEvent(domain.TopicPaymentLinkIssued, []byte("not json")))
}

func TestAuctionTopicPatternSkipsLifecycleTopics(t *testing.T) {
	// The pattern subscription must only ever see per-auction topics,
	// never the fixed lifecycle ones.
	for _, topic := range []string{
		domain.TopicAuctionOpened,
		domain.TopicAuctionClosed,
		domain.TopicAuctionSettled,
	} {
		require.False(t, strings.HasPrefix(topic, domain.AuctionTopicPrefix), topic)
	}
	require.True(t, strings.HasPrefix(domain.AuctionTopic("a1"), domain.AuctionTopicPrefix))
}

func TestDispatcher_MessageCarriesEventTypeAndData(t *testing.T) {
	dispatcher, conns := newTestDispatcher(t)
	dispatcher.RegisterInterest("c1", "a1")

	accepted := domain.BidAcceptedEvent{AuctionID: "a1", BidderID: "u1", Amount: 150}
	payload := auctionEnvelope(t, domain.TopicBidAccepted, accepted)
	require.NoError(t, dispatcher.HandleAuctionEvent(domain.AuctionTopic("a1"), payload))

	delivered := conns.deliveredTo("c1")
	require.Len(t, delivered, 1)

	message, ok := delivered[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, domain.TopicBidAccepted, message["type"])

	var data domain.BidAcceptedEvent
	raw, ok := message["data"].(json.RawMessage)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(raw, &data))
	require.Equal(t, accepted.AuctionID, data.AuctionID)
	require.Equal(t, accepted.BidderID, data.BidderID)
	require.Equal(t, accepted.Amount, data.Amount)
}
