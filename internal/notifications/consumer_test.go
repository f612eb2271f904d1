package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  order_id TEXT,
  kind TEXT NOT NULL,
  title TEXT NOT NULL,
  body TEXT NOT NULL,
  read INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

type fakeDedupeStore struct {
	keys map[string]bool
}

func newFakeDedupeStore() *fakeDedupeStore {
	return &fakeDedupeStore{keys: map[string]bool{}}
}

func (s *fakeDedupeStore) Get(ctx context.Context, key string) (string, error) {
	return "", nil
}

func (s *fakeDedupeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *fakeDedupeStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (s *fakeDedupeStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func newTestConsumer(t *testing.T) (*Consumer, Repository, *fakeDedupeStore) {
	t.Helper()
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	dedupe := newFakeDedupeStore()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return &Consumer{repo: repo, dedupe: dedupe, logg: logg}, repo, dedupe
}

func confirmedEventPayload(t *testing.T, userID, orderID uuid.UUID, orderNumber string) []byte {
	t.Helper()
	payload, err := json.Marshal(orderConfirmedEvent{
		Event:       orderConfirmedEventName,
		OrderID:     orderID.String(),
		OrderNumber: orderNumber,
		UserID:      userID.String(),
		TotalCents:  950,
		Currency:    "INR",
		ConfirmedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return payload
}

func TestConsumerRecordsConfirmedOrder(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)
	userID := uuid.New()
	orderID := uuid.New()

	result := consumer.process(
		context.Background(),
		"msg-1",
		map[string]string{"event": orderConfirmedEventName},
		confirmedEventPayload(t, userID, orderID, "ORD-260828-00001"),
	)
	assert.True(t, result.ack)
	assert.False(t, result.nack)

	notifications, err := repo.ListByUser(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, orderConfirmedEventName, notifications[0].Kind)
	assert.Contains(t, notifications[0].Body, "ORD-260828-00001")
	require.NotNil(t, notifications[0].OrderID)
	assert.Equal(t, orderID, *notifications[0].OrderID)
	assert.False(t, notifications[0].Read)
}

func TestConsumerSkipsUnhandledEvent(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)
	userID := uuid.New()

	result := consumer.process(
		context.Background(),
		"msg-1",
		map[string]string{"event": "order.cancelled"},
		confirmedEventPayload(t, userID, uuid.New(), "ORD-260828-00002"),
	)
	assert.True(t, result.ack)

	notifications, err := repo.ListByUser(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestConsumerDeduplicatesReplays(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)
	userID := uuid.New()
	orderID := uuid.New()
	payload := confirmedEventPayload(t, userID, orderID, "ORD-260828-00003")
	attributes := map[string]string{"event": orderConfirmedEventName}

	first := consumer.process(context.Background(), "msg-1", attributes, payload)
	assert.True(t, first.ack)

	replay := consumer.process(context.Background(), "msg-2", attributes, payload)
	assert.True(t, replay.ack)

	notifications, err := repo.ListByUser(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestConsumerAcksMalformedPayload(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)

	result := consumer.process(
		context.Background(),
		"msg-1",
		map[string]string{"event": orderConfirmedEventName},
		[]byte("{not json"),
	)
	assert.True(t, result.ack)
	assert.False(t, result.nack)

	notifications, err := repo.ListByUser(context.Background(), uuid.New(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestMarkReadScopedToUser(t *testing.T) {
	_, repo, _ := newTestConsumer(t)
	owner := uuid.New()
	intruder := uuid.New()

	notification := &models.Notification{
		UserID: owner,
		Kind:   orderConfirmedEventName,
		Title:  "Order confirmed",
		Body:   "Your order ORD-260828-00004 has been confirmed.",
	}
	require.NoError(t, repo.Create(context.Background(), notification))

	err := repo.MarkRead(context.Background(), intruder, notification.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.MarkRead(context.Background(), owner, notification.ID))

	notifications, err := repo.ListByUser(context.Background(), owner, 10, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.True(t, notifications[0].Read)
}
