package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

const publishTimeout = 15 * time.Second

// messagePublisher is the slice of the Pub/Sub publisher this package needs.
type messagePublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// orderConfirmedEvent is the payload published when an order is confirmed.
// Downstream consumers (email, SMS) key off the event attribute.
type orderConfirmedEvent struct {
	Event       string    `json:"event"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	UserEmail   string    `json:"user_email"`
	TotalCents  int64     `json:"total_cents"`
	Currency    string    `json:"currency"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Publisher pushes order lifecycle events onto the notification topic. It is
// strictly best-effort: publish failures are logged and never surfaced to the
// request that triggered them.
type Publisher struct {
	topic  messagePublisher
	logger *logger.Logger
}

// NewPublisher wires the notification publisher.
func NewPublisher(topic messagePublisher, logg *logger.Logger) (*Publisher, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Publisher{topic: topic, logger: logg}, nil
}

// OrderConfirmed publishes an order.confirmed event. It returns immediately;
// the publish happens on its own goroutine with its own deadline.
func (p *Publisher) OrderConfirmed(ctx context.Context, user *models.User, order *models.Order) {
	if user == nil || order == nil {
		return
	}

	confirmedAt := order.CreatedAt
	if order.ConfirmedAt != nil {
		confirmedAt = *order.ConfirmedAt
	}
	payload, err := json.Marshal(orderConfirmedEvent{
		Event:       "order.confirmed",
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      user.ID.String(),
		UserName:    user.Name,
		UserEmail:   user.Email,
		TotalCents:  order.TotalCents,
		Currency:    string(order.Currency),
		ConfirmedAt: confirmedAt,
	})
	if err != nil {
		p.logger.Error(ctx, "marshaling order notification", err)
		return
	}

	logCtx := p.logger.WithOrderNumber(context.WithoutCancel(ctx), order.OrderNumber)
	go func() {
		publishCtx, cancel := context.WithTimeout(logCtx, publishTimeout)
		defer cancel()

		result := p.topic.Publish(publishCtx, &pubsub.Message{
			Data:       payload,
			Attributes: map[string]string{"event": "order.confirmed"},
		})
		if _, err := result.Get(publishCtx); err != nil {
			p.logger.Error(publishCtx, "publishing order notification", err)
			return
		}
		p.logger.Info(publishCtx, "order notification published")
	}()
}
