package tracking

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

func TestAppendAssignsSequentialNumbers(t *testing.T) {
	t.Parallel()

	log := NewLog(dbtest.Open(t))
	ctx := context.Background()
	orderID := uuid.New()
	actor := &authz.Actor{UserID: uuid.New(), Role: enums.RoleVendor}
	hub := "Pune hub"

	for _, typ := range []enums.TrackingEventType{enums.TrackingOrderPlaced, enums.TrackingPacked, enums.TrackingShipped} {
		_, err := log.Append(ctx, AppendInput{OrderID: orderID, Type: typ, Actor: actor, Location: &hub})
		require.NoError(t, err)
	}
	_, err := log.Append(ctx, AppendInput{OrderID: uuid.New(), Type: enums.TrackingOrderPlaced})
	require.NoError(t, err)

	events, err := log.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, event := range events {
		require.Equal(t, int64(i+1), event.Sequence)
		require.NotNil(t, event.ActorRole)
		require.Equal(t, enums.RoleVendor, *event.ActorRole)
	}
	require.Equal(t, enums.TrackingShipped, events[2].Type)

	latest, err := log.Latest(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, int64(3), latest.Sequence)
}

func TestAppendConcurrentWritersKeepUniqueSequences(t *testing.T) {
	t.Parallel()

	log := NewLog(dbtest.Open(t))
	ctx := context.Background()
	orderID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Append(ctx, AppendInput{OrderID: orderID, Type: enums.TrackingPaymentCompleted})
			assertNoErr(t, err)
		}()
	}
	wg.Wait()

	events, err := log.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, events, 6)
	seen := map[int64]bool{}
	for _, event := range events {
		require.False(t, seen[event.Sequence])
		seen[event.Sequence] = true
	}
}

func assertNoErr(t *testing.T, err error) {
	if err != nil {
		t.Errorf("append: %v", err)
	}
}

func TestAppendValidatesInput(t *testing.T) {
	t.Parallel()

	log := NewLog(dbtest.Open(t))
	_, err := log.Append(context.Background(), AppendInput{Type: enums.TrackingPacked})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = log.Append(context.Background(), AppendInput{OrderID: uuid.New(), Type: "teleported"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = log.Latest(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeriveStatusIgnoresPaymentEvents(t *testing.T) {
	t.Parallel()

	events := []models.TrackingEvent{
		{Sequence: 1, Type: enums.TrackingOrderPlaced},
		{Sequence: 2, Type: enums.TrackingPacked},
		{Sequence: 3, Type: enums.TrackingPaymentCompleted},
	}
	status, ok := DeriveStatus(events)
	require.True(t, ok)
	require.Equal(t, enums.OrderStatusPacked, status)

	_, ok = DeriveStatus([]models.TrackingEvent{{Sequence: 1, Type: enums.TrackingRefunded}})
	require.False(t, ok)

	event, ok := EventForStatus(enums.OrderStatusOutForDelivery)
	require.True(t, ok)
	require.Equal(t, enums.TrackingOutForDelivery, event)
}
