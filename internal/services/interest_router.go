package services

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"
)

// InterestRouter republishes bid and settlement events on per-auction
// topics so only consumers subscribed to a specific auction receive
// them. No membership filtering happens here; that is the dispatcher's
// job on the receiving side.
type InterestRouter struct {
	eventPub domain.EventPublisher
	log      logger.Logger
}

func NewInterestRouter(eventPub domain.EventPublisher, log logger.Logger) *InterestRouter {
	return &InterestRouter{eventPub: eventPub, log: log}
}

func (r *InterestRouter) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	r.log.Info("Starting interest router")
	return subscriber.Subscribe(ctx, r.Route,
		domain.TopicBidAccepted, domain.TopicAuctionSettled)
}

// Route wraps the event in an envelope and republishes it on the
// auction's own topic. The topic is addressed before publishing, so an
// auction seen for the first time loses nothing.
func (r *InterestRouter) Route(topic string, payload []byte) error {
	var ref struct {
		AuctionID string `json:"auction"`
	}
	if err := json.Unmarshal(payload, &ref); err != nil {
		return fmt.Errorf("parse %s event: %w", topic, err)
	}
	if ref.AuctionID == "" {
		r.log.Warn("Event without auction id, dropping", "topic", topic)
		return nil
	}

	envelope := domain.Envelope{
		Event: topic,
		Data:  json.RawMessage(payload),
	}

	auctionTopic := domain.AuctionTopic(ref.AuctionID)
	if err := r.eventPub.Publish(context.Background(), auctionTopic, envelope); err != nil {
		return fmt.Errorf("republish %s on %s: %w", topic, auctionTopic, err)
	}

	r.log.Debug("Routed event", "event", topic, "topic", auctionTopic)
	return nil
}
