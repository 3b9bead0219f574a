package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type EventPublisher struct {
	client *redis.Client
	log    logger.Logger
}

func NewEventPublisher(client *redis.Client, log logger.Logger) *EventPublisher {
	return &EventPublisher{client: client, log: log}
}

// Publish sends the JSON-encoded payload on the given topic. A failed
// publish is retried once before the error is surfaced to the caller,
// who must leave the triggering message unacknowledged so the
// transport redelivers it.
func (p *EventPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", topic, err)
	}

	if err := p.client.Publish(ctx, topic, data).Err(); err != nil {
		p.log.Warn("Publish failed, retrying", "topic", topic, "error", err)
		if err := p.client.Publish(ctx, topic, data).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	}

	return nil
}

type EventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewEventSubscriber(client *redis.Client, log logger.Logger) *EventSubscriber {
	return &EventSubscriber{client: client, log: log}
}

func (s *EventSubscriber) Subscribe(ctx context.Context, handler domain.MessageHandler, topics ...string) error {
	pubsub := s.client.Subscribe(ctx, topics...)
	defer pubsub.Close()

	s.log.Info("Subscribed to topics", "topics", topics)
	return s.consume(ctx, pubsub, handler)
}

func (s *EventSubscriber) SubscribePattern(ctx context.Context, pattern string, handler domain.MessageHandler) error {
	pubsub := s.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	s.log.Info("Subscribed to pattern", "pattern", pattern)
	return s.consume(ctx, pubsub, handler)
}

func (s *EventSubscriber) consume(ctx context.Context, pubsub *redis.PubSub, handler domain.MessageHandler) error {
	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handler(msg.Channel, []byte(msg.Payload)); err != nil {
				// Handler errors are not fatal to the consumer loop;
				// the message stays eligible for redelivery upstream.
				s.log.Error("Failed to handle event", "topic", msg.Channel, "error", err)
			}

		case <-ctx.Done():
			s.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}
