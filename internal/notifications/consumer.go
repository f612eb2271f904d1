package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/redis"
)

const (
	orderConfirmedEventName = "order.confirmed"
	consumerDedupeScope     = "notification-consumer"
	consumerDedupeTTL       = 7 * 24 * time.Hour
)

// Consumer watches order lifecycle events and turns confirmations into
// notification feed rows.
type Consumer struct {
	repo         Repository
	subscription *pubsub.Subscriber
	dedupe       redis.IdempotencyStore
	logg         *logger.Logger
}

// NewConsumer builds an order notification consumer.
func NewConsumer(repo Repository, subscription *pubsub.Subscriber, dedupe redis.IdempotencyStore, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("dedupe store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		dedupe:       dedupe,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) processResult {
	eventType := attributes["event"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event":      eventType,
	})

	if eventType != orderConfirmedEventName {
		c.logg.Info(logCtx, "skipping unhandled event")
		return processResult{ack: true}
	}

	var event orderConfirmedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logg.Error(logCtx, "failed to decode event", err)
		return processResult{ack: true}
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		c.logg.Error(logCtx, "invalid user id", err)
		return processResult{ack: true}
	}
	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		c.logg.Error(logCtx, "invalid order id", err)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithOrderNumber(logCtx, event.OrderNumber)

	// Dedupe on the order id so republished events settle to one row.
	dedupeKey := c.dedupe.IdempotencyKey(consumerDedupeScope, event.OrderID)
	fresh, err := c.dedupe.SetNX(ctx, dedupeKey, "1", consumerDedupeTTL)
	if err != nil {
		c.logg.Error(logCtx, "dedupe check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notification := &models.Notification{
		UserID:  userID,
		OrderID: &orderID,
		Kind:    orderConfirmedEventName,
		Title:   "Order confirmed",
		Body:    fmt.Sprintf("Your order %s has been confirmed.", event.OrderNumber),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		c.logg.Error(logCtx, "failed to record notification", err)
		_ = c.dedupe.Del(ctx, dedupeKey)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "order notification recorded")
	return processResult{ack: true}
}
