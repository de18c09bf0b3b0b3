package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

type recordingDeliverer struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingDeliverer) Deliver(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingDeliverer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
}

func TestDispatchDropsWhenQueueIsFull(t *testing.T) {
	t.Parallel()

	d, err := NewDispatcher(DispatcherParams{Deliverer: &recordingDeliverer{}, Logger: testLogger(), QueueSize: 2})
	require.NoError(t, err)

	ctx := context.Background()
	msg := Message{UserID: uuid.New(), Type: enums.NotificationOrderPlaced}
	require.True(t, d.Dispatch(ctx, msg))
	require.True(t, d.Dispatch(ctx, msg))
	require.False(t, d.Dispatch(ctx, msg))
	require.Equal(t, 2, d.Pending())
}

func TestRunDeliversAndDrainsOnShutdown(t *testing.T) {
	t.Parallel()

	rec := &recordingDeliverer{err: errors.New("push down")}
	d, err := NewDispatcher(DispatcherParams{Deliverer: rec, Logger: testLogger(), QueueSize: 16, Workers: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 5; i++ {
		require.True(t, d.Dispatch(ctx, Message{UserID: uuid.New(), Type: enums.NotificationOrderStatusChanged}))
	}
	require.Eventually(t, func() bool { return rec.count() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, 0, d.Pending())
}

func TestOutboxDelivererWritesNotificationAndEvent(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	publisher := outbox.NewService(outbox.NewRepository(conn), testLogger())
	deliverer, err := NewOutboxDeliverer(db.Wrap(conn), NewRepository(conn), publisher)
	require.NoError(t, err)

	orderID := uuid.New()
	userID := uuid.New()
	err = deliverer.Deliver(context.Background(), Message{
		UserID:  userID,
		Type:    enums.NotificationPaymentCompleted,
		OrderID: &orderID,
		Payload: map[string]string{KeyTotalDisplay: "INR 295.00", KeyPaymentStatus: "completed"},
	})
	require.NoError(t, err)

	var row models.Notification
	require.NoError(t, conn.First(&row, "user_id = ?", userID).Error)
	require.Equal(t, "Payment received", row.Title)
	require.Contains(t, row.Message, "INR 295.00")

	var event models.OutboxEvent
	require.NoError(t, conn.First(&event, "aggregate_id = ?", row.ID).Error)
	require.Equal(t, enums.EventNotificationRequested, event.EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(event.Payload, &envelope))
	var payload payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.Equal(t, orderID, *payload.OrderID)
	require.Equal(t, "completed", payload.Data[KeyPaymentStatus])

	err = deliverer.Deliver(context.Background(), Message{UserID: userID, Type: "carrier_pigeon"})
	require.Error(t, err)
}

func TestInboxListAndMarkRead(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Notification{UserID: userID, Type: enums.NotificationOrderPlaced, Title: "t", Message: "m"}))
	}
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: uuid.New(), Type: enums.NotificationOrderPlaced, Title: "t", Message: "m"}))

	page, err := svc.List(ctx, ListParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.Cursor)

	require.NoError(t, svc.MarkRead(ctx, userID, page.Items[0].ID))
	count, err := svc.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	unread, err := svc.List(ctx, ListParams{UserID: userID, UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, unread.Items)
}
